package delivery

import (
	"context"
	"mime"
	"net/http"
	"strconv"

	"vidcrush/logger"
)

// Download writes the artifact as an attachment on an HTTP response. The
// write returning is the acknowledgement that the bytes were handed over.
type Download struct {
	W http.ResponseWriter
}

func (d Download) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := checkArtifact(a); err != nil {
		return Receipt{}, err
	}
	WriteAttachment(d.W, a)
	return Receipt{Sink: "download", Location: a.Name}, nil
}

// WriteAttachment sends the artifact with download headers.
func WriteAttachment(w http.ResponseWriter, a Artifact) {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Data); err != nil {
		logger.Warnf("Client did not receive %s: %v", a.Name, err)
	}
}
