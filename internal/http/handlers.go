package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady pings every registered dependency concurrently.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.deps.Ready))
	for name := range s.deps.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var eg errgroup.Group
	for i, name := range names {
		eg.Go(func() error {
			if err := s.deps.Ready[name].Ping(ctx); err != nil {
				results[i] = "failed: " + err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	failed := eg.Wait() != nil

	checks := make(map[string]any, len(names)+1)
	for i, name := range names {
		checks[name] = results[i]
	}
	if s.deps.Sessions != nil {
		checks["sessions"] = map[string]any{"active": s.deps.Sessions.Len(), "status": "ok"}
	}

	status, code := "ready", http.StatusOK
	if failed {
		status, code = "not_ready", http.StatusServiceUnavailable
		s.logger.WarnContext(r.Context(), "Readiness check failed", "checks", checks)
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
