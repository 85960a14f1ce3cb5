package routes

import (
	"errors"
	"fmt"
	"net/http"

	"vidcrush/logger"
	"vidcrush/transcode"
)

// CancelHandler cancels a pending or running job by id.
func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Cancel job request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodDelete {
		logger.Warnf("Invalid method for cancel endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	logger.Infof("Attempting to cancel job: %s", id)
	if err := s.Controller.Cancel(id); err != nil {
		logger.Warnf("Failed to cancel job %s: %v", id, err)
		if errors.Is(err, transcode.ErrJobNotFound) {
			http.Error(w, fmt.Sprintf("Job not found: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Cannot cancel job: %v", err), http.StatusConflict)
		}
		return
	}

	logger.Infof("Job cancellation requested: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
