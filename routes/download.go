package routes

import (
	"net/http"
	"strings"

	"vidcrush/delivery"
	"vidcrush/logger"
	"vidcrush/metrics"
)

// DownloadHandler serves a transient blob created by the link sink. Once
// served, the blob is released after the registry's release delay.
func (s *Server) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/download/")
	if token == "" || strings.Contains(token, "/") {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	if s.Blobs == nil {
		http.Error(w, "Download not found or expired", http.StatusNotFound)
		return
	}
	blob, err := s.Blobs.Get(token)
	if err != nil {
		http.Error(w, "Download not found or expired", http.StatusNotFound)
		return
	}

	delivery.WriteAttachment(w, delivery.Artifact{
		Name:        blob.Name,
		ContentType: blob.ContentType,
		Data:        blob.Data,
	})
	s.Blobs.Served(token)
	metrics.BlobsLive.Set(float64(s.Blobs.Len()))
	logger.Debugf("Served blob %s (%s)", token, blob.Name)
}
