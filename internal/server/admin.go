package server

import (
	"log/slog"
	"net/http"

	"github.com/campushq/campus/internal/circuitbreaker"
	"github.com/campushq/campus/internal/relcache"
)

type cacheReport struct {
	Name          string         `json:"name"`
	Counts        int            `json:"counts"`
	Relationships int            `json:"relationships"`
	Stats         relcache.Stats `json:"stats"`
}

func (s *server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	out := make([]cacheReport, 0, len(s.deps.Caches))
	for _, c := range s.deps.Caches {
		counts, rels := c.Len()
		out = append(out, cacheReport{Name: c.Name(), Counts: counts, Relationships: rels, Stats: c.Stats()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": out})
}

// handleCachePurge clears every cache. Each Clear is broadcast to the other
// instances through the cache's invalidation hook.
func (s *server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.deps.Caches {
		c.Clear()
	}
	slog.LogAttrs(r.Context(), slog.LevelInfo, "caches purged",
		slog.Int("count", len(s.deps.Caches)),
		slog.String("user_id", caller(r).UserID),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleBackendStates(w http.ResponseWriter, _ *http.Request) {
	states := map[string]circuitbreaker.State{}
	if s.deps.Breakers != nil {
		states = s.deps.Breakers.States()
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": states})
}
