package ingestion

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Handler exposes dataset upload as an HTTP endpoint.
type Handler struct {
	service *Service
	dataset *Dataset
}

// NewHTTPHandler wraps the service with a POST endpoint that replaces the dataset.
func NewHTTPHandler(service *Service, dataset *Dataset) http.Handler {
	return &Handler{service: service, dataset: dataset}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	req := Request{
		FileName: header.Filename,
		Data:     file,
	}
	if raw := strings.TrimSpace(r.FormValue("headerRow")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid headerRow: %v", err), http.StatusBadRequest)
			return
		}
		req.HeaderRowIndex = &idx
	}

	table, err := h.service.Load(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.dataset.Replace(table, header.Filename)

	writeJSON(w, http.StatusOK, Summarize(header.Filename, table))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
