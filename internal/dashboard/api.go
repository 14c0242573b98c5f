package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/middleware"
	"github.com/rpattn/unitdash/pkg/validator"
)

type filterRequest struct {
	domain.FilterState
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type filterResponse struct {
	Summary     domain.UnitSummary         `json:"summary"`
	SummaryText string                     `json:"summary_text"`
	Columns     []string                   `json:"columns"`
	Controls    []filter.Control           `json:"controls"`
	Total       int                        `json:"total"`
	Offset      int                        `json:"offset"`
	Rows        []map[string]any           `json:"rows"`
	Validation  validator.ValidationResult `json:"validation"`
}

// handleAPIFilter filters the dataset with a filter state posted as JSON. The
// session is not touched.
func (s *Server) handleAPIFilter(w http.ResponseWriter, r *http.Request) {
	req := filterRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if req.Columns == nil {
		req.Columns = append([]string(nil), domain.DefaultFilterColumns...)
	}

	table := s.dataset.Table()
	validation := s.validator.ValidateFilterState(table, req.FilterState)
	if !validation.IsValid {
		writeJSON(w, http.StatusBadRequest, validation)
		return
	}

	result, err := filter.Apply(table, req.FilterState)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, filter.ErrInvalidPattern) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	total := result.Table.Len()
	end := offset + limit
	if end > total {
		end = total
	}
	rows := []int{}
	for i := offset; i < end; i++ {
		rows = append(rows, i)
	}

	writeJSON(w, http.StatusOK, filterResponse{
		Summary:     result.Summary,
		SummaryText: result.Summary.String(),
		Columns:     result.Columns,
		Controls:    result.Controls,
		Total:       total,
		Offset:      offset,
		Rows:        result.Table.Take(rows).Records(),
		Validation:  validation,
	})
}

// handleAPIImage serves one cropped figure as PNG. The unit key is read from the
// query string using the dataset column names.
func (s *Server) handleAPIImage(w http.ResponseWriter, r *http.Request) {
	drawType, err := url.PathUnescape(chi.URLParam(r, "drawType"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid draw type"})
		return
	}
	key, err := parseUnitKey(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var fig gallery.Figure
	if loader := middleware.ImageLoaderFromContext(r.Context()); loader != nil {
		fig, err = loader.Load(r.Context(), drawType, key)
	} else {
		fig, err = s.gallery.Fetch(r.Context(), drawType, key)
	}
	if err != nil {
		if errors.Is(err, gallery.ErrUnknownDrawType) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("figure fetch failed", "draw_type", drawType, "unit", key.ID(), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "figure store unavailable"})
		return
	}
	if !fig.Found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fig.Message})
		return
	}

	data, err := gallery.EncodePNG(fig.Image)
	if err != nil {
		s.serverError(w, r, "failed to encode figure", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
