package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/stockclass/internal/classapi"
)

// statsSource is implemented by clients that track request latency.
type statsSource interface {
	Stats() classapi.StatsSnapshot
}

func (s *Server) handleUpstreamStats(w http.ResponseWriter, r *http.Request) {
	src, ok := s.client.(statsSource)
	if !ok {
		jsonError(w, "upstream stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"api_base_url": s.cfg.APIBaseURL,
		"sessions":     s.sessions.Len(),
		"stats":        src.Stats(),
	})
}
