package dashboard

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
)

type selectionView struct {
	Source string
	Keys   []domain.UnitKey
}

type unitsPage struct {
	AllColumns     []string
	FilterColumns  []string
	Controls       []filter.Control
	FilterError    string
	Summary        string
	Total          int
	Header         []string
	Rows           [][]string
	RowIDs         []string
	TableSelection map[string]bool
	Selections     []selectionView
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	state, err := s.sessions.Load(r.Context())
	if err != nil {
		s.serverError(w, r, "failed to load session", err)
		return
	}

	result, filterErr := s.applyState(state)
	page := unitsPage{
		AllColumns:     result.Columns,
		FilterColumns:  state.Filter.Columns,
		Controls:       result.Controls,
		Summary:        result.Summary.String(),
		Total:          result.Table.Len(),
		Header:         result.Table.ColumnNames(),
		TableSelection: map[string]bool{},
	}
	if filterErr != nil {
		page.FilterError = filterErr.Error()
	}

	shown := result.Table.Len()
	if shown > s.pageSize {
		shown = s.pageSize
	}
	for row := 0; row < shown; row++ {
		cells := make([]string, len(result.Table.Columns))
		for i, col := range result.Table.Columns {
			cells[i] = domain.FormatValue(col.Values[row])
		}
		page.Rows = append(page.Rows, cells)

		key, err := domain.UnitKeyFromRow(result.Table, row)
		if err != nil {
			s.serverError(w, r, "failed to read unit keys", err)
			return
		}
		page.RowIDs = append(page.RowIDs, key.ID())
	}

	for _, source := range domain.SelectSources {
		keys := state.Selection(source)
		page.Selections = append(page.Selections, selectionView{Source: source, Keys: keys})
		if source == domain.SelectSourceTable {
			for _, k := range keys {
				page.TableSelection[k.ID()] = true
			}
		}
	}

	if err := s.renderer.render(w, r, "units.html", PageData{
		Title:  "Units",
		Source: s.dataset.Source(),
		Data:   page,
	}); err != nil {
		s.serverError(w, r, "failed to render page", err)
	}
}

func (s *Server) handleUpdateFilters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	kinds := filter.Kinds(s.dataset.Table())
	_, err := s.sessions.Update(r.Context(), func(state *domain.SessionState) error {
		applyFilterForm(&state.Filter, r.PostForm, kinds)
		return nil
	})
	if err != nil {
		s.serverError(w, r, "failed to save filters", err)
		return
	}
	http.Redirect(w, r, "/units", http.StatusSeeOther)
}

// handleSelectRows stores the ticked rows of the filtered table as the "table"
// source. Rows are matched by unit key, so a filter change between rendering
// and submitting only drops rows that are no longer shown.
func (s *Server) handleSelectRows(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ticked := map[string]struct{}{}
	for _, id := range r.PostForm["unit"] {
		ticked[id] = struct{}{}
	}

	_, err := s.sessions.Update(r.Context(), func(state *domain.SessionState) error {
		result, _ := s.applyState(*state)
		keys, err := domain.UnitKeys(result.Table)
		if err != nil {
			return err
		}
		selected := make([]domain.UnitKey, 0, len(ticked))
		for _, k := range keys {
			if _, ok := ticked[k.ID()]; ok {
				selected = append(selected, k)
			}
		}
		state.Select(domain.SelectSourceTable, selected)
		return nil
	})
	if err != nil {
		s.serverError(w, r, "failed to save selection", err)
		return
	}
	http.Redirect(w, r, "/units", http.StatusSeeOther)
}

// handleSelectFiltered snapshots every filtered unit as the "filter" source.
func (s *Server) handleSelectFiltered(w http.ResponseWriter, r *http.Request) {
	_, err := s.sessions.Update(r.Context(), func(state *domain.SessionState) error {
		result, _ := s.applyState(*state)
		keys, err := domain.UnitKeys(result.Table)
		if err != nil {
			return err
		}
		state.Select(domain.SelectSourceFilter, keys)
		return nil
	})
	if err != nil {
		s.serverError(w, r, "failed to save selection", err)
		return
	}
	http.Redirect(w, r, "/units", http.StatusSeeOther)
}

var errUnknownSource = errors.New("unknown selection source")

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	_, err := s.sessions.Update(r.Context(), func(state *domain.SessionState) error {
		if !isSelectSource(source) {
			return errUnknownSource
		}
		state.ClearSelection(source)
		return nil
	})
	if errors.Is(err, errUnknownSource) {
		http.Error(w, "unknown selection source", http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, "failed to clear selection", err)
		return
	}
	http.Redirect(w, r, "/units", http.StatusSeeOther)
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	column := chi.URLParam(r, "column")
	state, err := s.sessions.Load(r.Context())
	if err != nil {
		s.serverError(w, r, "failed to load session", err)
		return
	}
	result, _ := s.applyState(state)
	for _, control := range result.Controls {
		if control.Column != column || control.Kind != filter.KindNumeric {
			continue
		}
		png, err := renderHistogram(control)
		if err != nil {
			s.serverError(w, r, "failed to render histogram", err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
		return
	}
	http.Error(w, "no numeric control for column", http.StatusNotFound)
}

func isSelectSource(source string) bool {
	for _, s := range domain.SelectSources {
		if s == source {
			return true
		}
	}
	return false
}
