package routes

import (
	"encoding/json"
	"net/http"

	"vidcrush/delivery"
	"vidcrush/logger"
)

// RegisterCredentialsHandler stores storage-backend credentials and returns
// the key to pass as storageKey on uploads.
func (s *Server) RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Auth.FromRequest(r); err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	creds := make(map[string]string)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if t := creds["type"]; t != "" && !delivery.IsBackend(t) {
		http.Error(w, "Unknown backend type", http.StatusBadRequest)
		return
	}

	key, err := s.Credentials.Register(creds)
	if err != nil {
		logger.Errorf("Failed to store credentials: %v", err)
		http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_key": key})
}
