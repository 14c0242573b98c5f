package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/imageloader"
	"github.com/rpattn/unitdash/internal/middleware"
)

type figureView struct {
	DrawType string
	Found    bool
	Message  string
	Src      template.URL
}

type panelView struct {
	Caption template.HTML
	Figures []figureView
}

type galleryPage struct {
	Settings  domain.GallerySettings
	DrawTypes []string
	Sources   []sourceOption
	Drawn     bool
	Loaded    int
	Requested int
	Columns   [][]panelView
	ColumnPct float64
	DrawError string
}

type sourceOption struct {
	Source string
	Count  int
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, err := s.sessions.Load(r.Context())
	if err != nil {
		s.serverError(w, r, "failed to load session", err)
		return
	}

	if q.Has("apply") {
		state.Gallery = parseGallerySettings(q, s.gallery.DrawTypes())
		if err := s.sessions.Save(r.Context(), state); err != nil {
			s.serverError(w, r, "failed to save gallery settings", err)
			return
		}
	}
	settings := state.Gallery.Normalize()

	page := galleryPage{
		Settings:  settings,
		DrawTypes: s.gallery.DrawTypes(),
		ColumnPct: 100 / float64(settings.NumCols),
	}
	for _, source := range domain.SelectSources {
		page.Sources = append(page.Sources, sourceOption{Source: source, Count: len(state.Selection(source))})
	}

	if q.Has("draw") || settings.AutoDraw {
		keys := state.Selection(settings.Source)
		page.Drawn = true
		page.Requested = len(keys)
		panels, err := s.drawPanels(r.Context(), keys, settings.DrawTypes, func(done, total int) {
			page.Loaded = done
			s.logger.Debug("drawing units", "done", done, "total", total)
		})
		if err != nil {
			s.logger.Error("gallery draw failed", "error", err)
			page.DrawError = err.Error()
		}
		page.Columns = make([][]panelView, settings.NumCols)
		for i, p := range panels {
			col := i % settings.NumCols
			page.Columns[col] = append(page.Columns[col], p)
		}
	}

	if err := s.renderer.render(w, r, "gallery.html", PageData{
		Title:  "Gallery",
		Source: s.dataset.Source(),
		Data:   page,
	}); err != nil {
		s.serverError(w, r, "failed to render page", err)
	}
}

// parseGallerySettings reads the settings form. Unknown draw types are dropped.
func parseGallerySettings(q url.Values, known []string) domain.GallerySettings {
	settings := domain.GallerySettings{
		Source:    q.Get("source"),
		AutoDraw:  q.Get("auto_draw") != "",
		DrawTypes: []string{},
	}
	if !isSelectSource(settings.Source) {
		settings.Source = domain.SelectSourceTable
	}
	if n, err := strconv.Atoi(q.Get("num_cols")); err == nil {
		settings.NumCols = n
	}
	for _, dt := range q["draw_type"] {
		if contains(known, dt) && !contains(settings.DrawTypes, dt) {
			settings.DrawTypes = append(settings.DrawTypes, dt)
		}
	}
	return settings.Normalize()
}

// drawPanels fetches the figures of each unit in turn. Lookups go through the
// request's loader when there is one.
func (s *Server) drawPanels(ctx context.Context, keys []domain.UnitKey, drawTypes []string, progress gallery.ProgressFunc) ([]panelView, error) {
	var figures []gallery.Figure
	if len(drawTypes) == 0 {
		return buildPanels(keys, drawTypes, nil), nil
	}
	if loader := middleware.ImageLoaderFromContext(ctx); loader != nil {
		for i, key := range keys {
			batch := make([]imageloader.Key, len(drawTypes))
			for j, dt := range drawTypes {
				batch[j] = imageloader.Key{DrawType: dt, Unit: key}
			}
			loaded, err := loader.LoadMany(ctx, batch)
			if err != nil {
				return buildPanels(keys[:i], drawTypes, figures), err
			}
			figures = append(figures, loaded...)
			progress(i+1, len(keys))
		}
	} else {
		drawn, err := s.gallery.Draw(ctx, keys, drawTypes, progress)
		figures = drawn
		if err != nil {
			return buildPanels(keys[:len(drawn)/max(len(drawTypes), 1)], drawTypes, figures), err
		}
	}
	return buildPanels(keys, drawTypes, figures), nil
}

// buildPanels groups the key-major figures into one panel per unit.
func buildPanels(keys []domain.UnitKey, drawTypes []string, figures []gallery.Figure) []panelView {
	panels := make([]panelView, 0, len(keys))
	for i, key := range keys {
		panel := panelView{Caption: renderMarkdown("##### " + key.Caption())}
		for j := range drawTypes {
			idx := i*len(drawTypes) + j
			if idx >= len(figures) {
				break
			}
			panel.Figures = append(panel.Figures, figureViewOf(figures[idx]))
		}
		panels = append(panels, panel)
	}
	return panels
}

func figureViewOf(fig gallery.Figure) figureView {
	view := figureView{DrawType: fig.DrawType, Found: fig.Found, Message: fig.Message}
	if !fig.Found || fig.Image == nil {
		view.Found = false
		if view.Message == "" {
			view.Message = fig.DrawType + " fetch error"
		}
		return view
	}
	data, err := gallery.EncodePNG(fig.Image)
	if err != nil {
		view.Found = false
		view.Message = fmt.Sprintf("%s fetch error", fig.DrawType)
		return view
	}
	view.Src = pngDataURI(data)
	return view
}
