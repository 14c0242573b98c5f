package export

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
)

// TableSource produces the table a request downloads.
type TableSource func(r *http.Request) (domain.Table, error)

// FormatFunc extracts the requested format from a request.
type FormatFunc func(r *http.Request) string

type Handler struct {
	source   TableSource
	format   FormatFunc
	baseName string
	logger   *slog.Logger
	now      func() time.Time
}

// NewHTTPHandler serves downloads of whatever table source returns.
func NewHTTPHandler(source TableSource, format FormatFunc, baseName string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{source: source, format: format, baseName: baseName, logger: logger, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := ParseFormat(h.format(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	table, err := h.source(r)
	if err != nil {
		h.logger.Error("export failed", "error", err)
		http.Error(w, "failed to build export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(h.baseName, format, h.now())))
	if err := Write(w, format, table); err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("export write failed", "format", format, "error", err)
	}
}
