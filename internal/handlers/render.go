package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes the embedded page templates.
type Renderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewRenderer parses the embedded templates
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl, logger: logger}, nil
}

// Render writes a page. The status is set before the body so error pages can
// carry a non-200 code.
func (rd *Renderer) Render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := rd.templates.ExecuteTemplate(w, name, data); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("template", name),
			slog.Any("error", err),
		)
	}
}
