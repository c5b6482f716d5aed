package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/stockclass/internal/selection"
	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/go-chi/chi/v5"
)

// handlePage renders the filter. The classification payload is fetched on
// the first view of a session; a failed load is only retried through
// POST /load.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	if wf.State().LoadStatus == workflow.StatusIdle {
		// Errors are reflected in the rendered state.
		_ = wf.Load(r.Context())
	}
	s.render(w, wf.State())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	_ = wf.Load(r.Context())
	backToPage(w, r)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	level, err := selection.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	wf := sessionFrom(r.Context()).Workflow
	switch err := wf.Select(level, r.FormValue("value")); {
	case errors.Is(err, workflow.ErrNotLoaded):
		jsonError(w, "classifications are not loaded", http.StatusConflict)
		return
	case errors.Is(err, selection.ErrLevelDisabled):
		jsonError(w, "select the "+prerequisite(level)+" first", http.StatusConflict)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	backToPage(w, r)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	_ = wf.Search(r.Context())
	backToPage(w, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r.Context()).Workflow
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(wf.State())
}

func prerequisite(level selection.Level) string {
	switch level {
	case selection.LevelSector:
		return "macro-economic sector"
	case selection.LevelIndustry:
		return "sector"
	default:
		return "industry"
	}
}

// backToPage answers a form post with a redirect to the page.
func backToPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
