// Package routes exposes the compression pipeline over HTTP.
package routes

import (
	"encoding/json"
	"net/http"

	"vidcrush/auth"
	"vidcrush/blobs"
	"vidcrush/credentials"
	"vidcrush/history"
	"vidcrush/logger"
	"vidcrush/transcode"
)

// Server holds the dependencies shared by the handlers.
type Server struct {
	Controller  *transcode.Controller
	Blobs       *blobs.Registry
	Credentials *credentials.Store
	History     *history.Store
	Auth        auth.Verifier

	BaseURL        string // public origin used in link receipts; derived from the request when empty
	DefaultDeliver string // used when neither the query nor the token names a sink
	MaxUpload      int64
}

// Register mounts every handler on mux.
func (s *Server) Register(mux *http.ServeMux) {
	handle := func(path string, h http.HandlerFunc) {
		mux.Handle(path, Instrument(path, h))
	}
	handle("/pick", s.PickHandler)
	handle("/drop", s.DropHandler)
	handle("/quality", s.QualityHandler)
	handle("/status", s.StatusHandler)
	handle("/cancel", s.CancelHandler)
	handle("/download/", s.DownloadHandler)
	handle("/credentials", s.RegisterCredentialsHandler)
	handle("/history", s.HistoryQueryHandler)
	handle("/history/list", s.HistoryListHandler)
	handle("/health", s.HealthHandler)
	handle("/version", VersionHandler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
