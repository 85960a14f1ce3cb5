package routes

import (
	"net/http"

	"vidcrush/history"
	"vidcrush/logger"
	"vidcrush/transcode"
)

// HistoryQueryHandler returns the record of a finished job.
func (s *Server) HistoryQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	id = transcode.NormalizeJobID(id)
	record, err := s.History.Get(id)
	if err != nil {
		logger.Errorf("Failed to query history for job %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"job_id":  id,
			"status":  "not_found",
			"message": "No record found for this job",
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HistoryListHandler lists records, optionally filtered with ?status=.
func (s *Server) HistoryListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := history.Status(r.URL.Query().Get("status"))
	switch status {
	case "", history.StatusSuccess, history.StatusFailure:
	default:
		http.Error(w, "status must be success or failure", http.StatusBadRequest)
		return
	}

	records, err := s.History.List(status)
	if err != nil {
		logger.Errorf("Failed to list history: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
