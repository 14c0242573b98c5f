package dashboard

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

//go:embed templates/*
var templatesFS embed.FS

// renderer clones the base layout and parses one page into it per request, so
// the pages' "content" blocks never collide.
type renderer struct {
	baseTemplate *template.Template
}

// PageData is passed to every page.
type PageData struct {
	Title       string
	CurrentPath string
	Source      string
	Data        any
}

func newRenderer() *renderer {
	base := template.Must(template.New("").
		Funcs(templateFuncs()).
		ParseFS(templatesFS, "templates/base.html"))
	return &renderer{baseTemplate: base}
}

func (r *renderer) render(w http.ResponseWriter, req *http.Request, name string, page PageData) error {
	page.CurrentPath = req.URL.Path

	tmpl, err := r.baseTemplate.Clone()
	if err != nil {
		return fmt.Errorf("clone template: %w", err)
	}
	if _, err := tmpl.ParseFS(templatesFS, "templates/"+name); err != nil {
		return fmt.Errorf("parse page template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", page); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

var (
	markdownRenderer = goldmark.New()
	htmlPolicy       = bluemonday.UGCPolicy()
)

// renderMarkdown converts markdown to sanitized HTML.
func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(htmlPolicy.SanitizeBytes(buf.Bytes()))
}

func pngDataURI(data []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"number":     formatNumber,
		"exact":      formatExact,
		"contains":   contains,
		"pathEscape": url.PathEscape,
	}
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

// formatExact round-trips through strconv.ParseFloat. Form values use it.
func formatExact(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

