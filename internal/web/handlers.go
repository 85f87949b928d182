package web

import (
	"net/http"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleHealth reports liveness and import queue usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

// handleListTables returns every registered destination.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]TableResponse, len(defs))
	for i, def := range defs {
		out[i] = toTableResponse(def)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetTable describes one destination.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	def, err := core.Lookup(chi.URLParam(r, "tableKey"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(def))
}

// handleTableHistory lists recorded runs for one destination.
func (s *Server) handleTableHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, chi.URLParam(r, "tableKey"))
}

// handleHistory lists recorded runs for every destination.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, "")
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, tableKey string) {
	limit := parseIntParam(r, "limit", 50)
	runs, err := s.service.History(r.Context(), tableKey, limit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleImportQueueStatus reports the import limiter state.
func (s *Server) handleImportQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}
