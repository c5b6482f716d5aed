package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/yuin/goldmark"
)

//go:embed templates
var templateFS embed.FS

// pageData is what page.html renders.
type pageData struct {
	Intro template.HTML
	State workflow.State
}

// loadTemplates parses the page template and renders the Markdown intro.
func loadTemplates() (*template.Template, template.HTML, error) {
	page, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, "", fmt.Errorf("parse page template: %w", err)
	}

	src, err := templateFS.ReadFile("templates/intro.md")
	if err != nil {
		return nil, "", fmt.Errorf("read intro: %w", err)
	}
	var buf bytes.Buffer
	if err := goldmark.New().Convert(src, &buf); err != nil {
		return nil, "", fmt.Errorf("render intro: %w", err)
	}
	// The intro is a compiled-in asset, not user input.
	return page, template.HTML(buf.String()), nil
}

func (s *Server) render(w http.ResponseWriter, st workflow.State) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, pageData{Intro: s.intro, State: st}); err != nil {
		s.log.Error("failed to render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
