package api

import (
	"net/http"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operations":   s.stats.Snapshot(),
		"sessions":     s.sessions.Count(),
		"save_queue":   s.saver.QueueDepth(),
		"save_pending": s.saver.Pending(),
	})
}
