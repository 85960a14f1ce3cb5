package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"vidcrush/auth"
	"vidcrush/delivery"
	"vidcrush/engine"
	"vidcrush/intake"
	"vidcrush/logger"
	"vidcrush/transcode"
)

const (
	SinkDownload = "download"
	SinkLink     = "link"
)

// multipart parts above this size spill to temporary files
const maxFormMemory = 32 << 20

var (
	errBadItems    = errors.New("invalid items field")
	errBadDelivery = errors.New("invalid delivery target")
)

// UploadResponse is returned for every sink except download, which answers
// with the file itself.
type UploadResponse struct {
	JobID      string `json:"job_id"`
	Source     string `json:"source"`
	Output     string `json:"output"`
	Tier       string `json:"tier"`
	CRF        string `json:"crf"`
	InputSize  int64  `json:"input_size"`
	OutputSize int64  `json:"output_size"`
	Sink       string `json:"sink"`
	Location   string `json:"location"`
}

// dropItem is one entry of the "items" form field. Index points into the
// "files" parts for kind "file".
type dropItem struct {
	Kind  string `json:"kind"`
	Index *int   `json:"index,omitempty"`
}

type runFunc func(ctx context.Context, req transcode.Request, form *multipart.Form) (transcode.Result, error)

// PickHandler compresses the first file of the "file" field.
func (s *Server) PickHandler(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, "pick", func(ctx context.Context, req transcode.Request, form *multipart.Form) (transcode.Result, error) {
		return s.Controller.Pick(ctx, req, candidates(form.File["file"]))
	})
}

// DropHandler compresses the first video of a drop. The optional "items"
// field is a JSON list describing the drop; without it the "files" parts are
// scanned directly.
func (s *Server) DropHandler(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, "drop", func(ctx context.Context, req transcode.Request, form *multipart.Form) (transcode.Result, error) {
		files := candidates(form.File["files"])
		items, err := parseItems(form.Value["items"], files)
		if err != nil {
			return transcode.Result{}, err
		}
		return s.Controller.Drop(ctx, req, items, files)
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, entry string, run runFunc) {
	logger.Debugf("%s request: method=%s, remoteAddr=%s", entry, r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, err := s.Auth.FromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	if s.MaxUpload > 0 {
		if r.ContentLength > s.MaxUpload {
			http.Error(w, intake.InvalidInputMessage, http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, intake.InvalidInputMessage, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	d, sink, err := s.deliverer(w, r, claims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := transcode.Request{
		JobID:           jobIDFrom(r),
		Deliverer:       d,
		Sink:            sink,
		CallbackURL:     claims.CallbackURL,
		CallbackHeaders: claims.CallbackHeaders,
	}
	res, err := run(r.Context(), req, r.MultipartForm)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	if sink == SinkDownload {
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		JobID:      res.JobID,
		Source:     res.Source,
		Output:     res.Output,
		Tier:       string(res.Tier),
		CRF:        res.CRF,
		InputSize:  res.InputSize,
		OutputSize: res.OutputSize,
		Sink:       res.Receipt.Sink,
		Location:   res.Receipt.Location,
	})
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, intake.ErrNoFile), errors.Is(err, errBadItems), errors.Is(err, transcode.ErrInvalidJobID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, transcode.ErrBusy), errors.Is(err, transcode.ErrDuplicateJob):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled):
		http.Error(w, "Job cancelled", http.StatusConflict)
	case s.Controller.EngineState() == engine.StateFailed:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, fmt.Sprintf("Compression failed: %v", err), http.StatusInternalServerError)
	}
}

// deliverer picks the sink from the query, then the token, then the server
// default.
func (s *Server) deliverer(w http.ResponseWriter, r *http.Request, claims *auth.Claims) (delivery.Deliverer, string, error) {
	q := r.URL.Query()
	name := firstNonEmpty(q.Get("deliver"), claims.Deliver, s.DefaultDeliver, SinkDownload)

	switch {
	case name == SinkDownload:
		return delivery.Download{W: w}, name, nil
	case name == SinkLink:
		if s.Blobs == nil {
			return nil, "", fmt.Errorf("%w: links are not enabled", errBadDelivery)
		}
		return delivery.Link{Registry: s.Blobs, BaseURL: s.baseURL(r)}, name, nil
	case delivery.IsBackend(name):
		key := firstNonEmpty(q.Get("storageKey"), claims.StorageKey)
		folder := firstNonEmpty(q.Get("subDir"), claims.SubDir)

		var info map[string]string
		if key != "" {
			if s.Credentials == nil {
				return nil, "", fmt.Errorf("%w: credentials store unavailable", errBadDelivery)
			}
			creds, err := s.Credentials.Get(key)
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", errBadDelivery, err)
			}
			info = creds
		} else if name != delivery.BackendDirectServe {
			return nil, "", fmt.Errorf("%w: storageKey required for %s", errBadDelivery, name)
		}
		return delivery.Backend{Type: name, AccessInfo: info, Folder: folder}, name, nil
	}
	return nil, "", fmt.Errorf("%w: unknown sink %q", errBadDelivery, name)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func jobIDFrom(r *http.Request) string {
	if id := r.FormValue("id"); id != "" {
		return id
	}
	return r.Header.Get("X-Job-ID")
}

// candidates wraps uploaded parts, sniffing the type of untyped ones.
func candidates(headers []*multipart.FileHeader) []intake.Candidate {
	out := make([]intake.Candidate, 0, len(headers))
	for _, fh := range headers {
		out = append(out, intake.ResolveType(intake.Candidate{
			Name: fh.Filename,
			Type: fh.Header.Get("Content-Type"),
			Size: fh.Size,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		}))
	}
	return out
}

// parseItems decodes the items field. No field means nil items, so the drop
// falls back to the files list.
func parseItems(values []string, files []intake.Candidate) ([]intake.Item, error) {
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return nil, nil
	}
	var raw []dropItem
	if err := json.Unmarshal([]byte(values[0]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadItems, err)
	}

	items := make([]intake.Item, 0, len(raw))
	for i, it := range raw {
		item := intake.Item{Kind: it.Kind}
		if it.Kind == "file" {
			if it.Index == nil || *it.Index < 0 || *it.Index >= len(files) {
				return nil, fmt.Errorf("%w: item %d has no matching file part", errBadItems, i)
			}
			f := files[*it.Index]
			item.File = &f
		}
		items = append(items, item)
	}
	return items, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
