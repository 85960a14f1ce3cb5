package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidcrush/auth"
	"vidcrush/blobs"
	"vidcrush/config"
	"vidcrush/credentials"
	"vidcrush/engine/enginetest"
	"vidcrush/history"
	"vidcrush/intake"
	"vidcrush/transcode"
)

type testEnv struct {
	server *Server
	mux    *http.ServeMux
	engine *enginetest.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("Failed to open history store: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	creds, err := credentials.Open(filepath.Join(dir, "credentials.db"))
	if err != nil {
		t.Fatalf("Failed to open credentials store: %v", err)
	}
	t.Cleanup(func() { creds.Close() })

	fake := enginetest.New()
	ctrl := transcode.New(transcode.Options{
		Engine:    fake,
		Policy:    intake.DefaultPolicy(),
		Admission: config.AdmissionReject,
		History:   hist,
	})
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s := &Server{
		Controller:     ctrl,
		Blobs:          blobs.NewRegistry(20*time.Millisecond, time.Minute),
		Credentials:    creds,
		History:        hist,
		DefaultDeliver: SinkDownload,
	}
	mux := http.NewServeMux()
	s.Register(mux)
	return &testEnv{server: s, mux: mux, engine: fake}
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

type part struct {
	field, name, contentType, content string
}

func multipartRequest(t *testing.T, target string, parts []part, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.name))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart failed: %v", err)
		}
		io.WriteString(pw, p.content)
	}
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, target, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestPickDownload(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "frames"}}, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename=compressed_clip.mp4`) {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Expected video/mp4, got %q", ct)
	}
	if w.Body.String() != "frames" {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

func TestPickMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/pick", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestPickWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(multipartRequest(t, "/pick", nil, map[string]string{"note": "x"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestDropInvalidFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, "/drop", []part{{"files", "clip.avi", "video/x-msvideo", "x"}}, nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != intake.InvalidInputMessage {
		t.Errorf("Unexpected message %q", got)
	}
	if len(env.engine.Runs) != 0 {
		t.Error("Engine should not run")
	}
}

func TestDropTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.server.MaxUpload = 1024

	big := strings.Repeat("x", 4096)
	w := env.do(multipartRequest(t, "/drop", []part{{"files", "clip.mp4", "video/mp4", big}}, nil))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}

func TestDropItemsFirstVideoWins(t *testing.T) {
	env := newTestEnv(t)

	parts := []part{
		{"files", "notes.txt", "text/plain", "hello"},
		{"files", "first.mov", "video/quicktime", "one"},
		{"files", "second.mp4", "video/mp4", "two"},
	}
	items := `[{"kind":"string"},{"kind":"file","index":0},{"kind":"file","index":1},{"kind":"file","index":2}]`
	w := env.do(multipartRequest(t, "/drop", parts, map[string]string{"items": items}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "one" {
		t.Errorf("Expected first video content, got %q", w.Body.String())
	}
	if len(env.engine.Runs) != 1 {
		t.Errorf("Expected one run, got %d", len(env.engine.Runs))
	}
}

func TestDropBadItems(t *testing.T) {
	env := newTestEnv(t)
	parts := []part{{"files", "clip.mp4", "video/mp4", "x"}}

	for _, items := range []string{`not json`, `[{"kind":"file","index":5}]`, `[{"kind":"file"}]`} {
		w := env.do(multipartRequest(t, "/drop", parts, map[string]string{"items": items}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("items %s: expected 400, got %d", items, w.Code)
		}
	}
}

func TestLinkDelivery(t *testing.T) {
	env := newTestEnv(t)
	env.server.BaseURL = "https://vid.example"

	w := env.do(multipartRequest(t, "/pick?deliver=link", []part{{"file", "clip.mp4", "video/mp4", "frames"}}, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	decode(t, w, &resp)
	if resp.Sink != SinkLink || resp.Output != "compressed_clip.mp4" || resp.Tier != "high" || resp.CRF != "18" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if !strings.HasPrefix(resp.Location, "https://vid.example/download/") {
		t.Fatalf("Unexpected location %s", resp.Location)
	}

	path := strings.TrimPrefix(resp.Location, "https://vid.example")
	dl := env.do(httptest.NewRequest(http.MethodGet, path, nil))
	if dl.Code != http.StatusOK || dl.Body.String() != "frames" {
		t.Fatalf("Download failed: %d %q", dl.Code, dl.Body.String())
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, "compressed_clip.mp4") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.server.Blobs.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if gone := env.do(httptest.NewRequest(http.MethodGet, path, nil)); gone.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after release, got %d", gone.Code)
	}
}

func TestLinkBaseURLFromRequest(t *testing.T) {
	env := newTestEnv(t)

	r := multipartRequest(t, "/pick?deliver=link", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil)
	r.Host = "localhost:8080"
	w := env.do(r)
	var resp UploadResponse
	decode(t, w, &resp)
	if !strings.HasPrefix(resp.Location, "http://localhost:8080/download/") {
		t.Errorf("Unexpected location %s", resp.Location)
	}
}

func TestDownloadUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(httptest.NewRequest(http.MethodGet, "/download/deadbeef", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/download/", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestDirectServeDelivery(t *testing.T) {
	serveDir := t.TempDir()
	t.Setenv("VIDCRUSH_SERVE_DIR", serveDir)
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, "/pick?deliver=directServe&subDir=team", []part{{"file", "clip.mp4", "video/mp4", "frames"}}, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	decode(t, w, &resp)
	if resp.Location != "/files/team/compressed_clip.mp4" {
		t.Errorf("Unexpected location %s", resp.Location)
	}
	data, err := os.ReadFile(filepath.Join(serveDir, "team", "compressed_clip.mp4"))
	if err != nil || string(data) != "frames" {
		t.Errorf("Expected written file, got %q, %v", data, err)
	}
}

func TestBackendRequiresStorageKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartRequest(t, "/pick?deliver=s3", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	w = env.do(multipartRequest(t, "/pick?deliver=s3&storageKey=missing", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown key, got %d", w.Code)
	}
	w = env.do(multipartRequest(t, "/pick?deliver=carrier-pigeon", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown sink, got %d", w.Code)
	}
	if len(env.engine.Runs) != 0 {
		t.Error("Engine should not run without a valid sink")
	}
}

func TestQualityHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/quality", nil))
	var resp QualityResponse
	decode(t, w, &resp)
	if resp.Tier != "high" || resp.CRF != "18" || len(resp.Tiers) != 4 {
		t.Errorf("Unexpected default %+v", resp)
	}

	w = env.do(httptest.NewRequest(http.MethodPut, "/quality", strings.NewReader(`{"tier":"deep-fried"}`)))
	decode(t, w, &resp)
	if resp.Tier != "deep-fried" || resp.CRF != "51" {
		t.Errorf("Unexpected after PUT %+v", resp)
	}

	w = env.do(httptest.NewRequest(http.MethodPut, "/quality?tier=medium", nil))
	decode(t, w, &resp)
	if resp.CRF != "23" {
		t.Errorf("Unexpected after query PUT %+v", resp)
	}

	w = env.do(httptest.NewRequest(http.MethodPut, "/quality", strings.NewReader(`{"tier":"ultra"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	// The selected tier drives the next job.
	env.do(multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil))
	args := env.engine.LastRun()
	if len(args) < 6 || args[5] != "23" {
		t.Errorf("Expected crf 23 in %v", args)
	}
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	var resp StatusResponse
	decode(t, w, &resp)
	if resp.Loading || resp.Engine != "ready" || resp.Source != nil {
		t.Errorf("Unexpected initial status %+v", resp)
	}

	id := "0b6f2c1a-3d4e-4f50-8a9b-7c6d5e4f3a2b"
	env.do(multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, map[string]string{"id": id}))

	w = env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	resp = StatusResponse{}
	decode(t, w, &resp)
	if resp.Loading || resp.Source == nil || resp.Source.Name != "clip.mp4" {
		t.Errorf("Unexpected status %+v", resp)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/status?id="+id, nil))
	var job JobStatusResponse
	decode(t, w, &job)
	if job.State != "completed" {
		t.Errorf("Expected completed, got %s", job.State)
	}

	if w := env.do(httptest.NewRequest(http.MethodGet, "/status?id=nope", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestDownloadWithoutRegistry(t *testing.T) {
	s := &Server{}
	w := httptest.NewRecorder()
	s.DownloadHandler(w, httptest.NewRequest(http.MethodGet, "/download/deadbeef", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestJobLookupAcceptsUppercaseID(t *testing.T) {
	env := newTestEnv(t)
	id := "3F6A9C2E-1B4D-4E7F-8A0B-5C6D7E8F9A0B"
	w := env.do(multipartRequest(t, "/pick?deliver=link", []part{{"file", "clip.mp4", "video/mp4", "x"}}, map[string]string{"id": id}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/status?id="+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from status, got %d", w.Code)
	}
	var job JobStatusResponse
	decode(t, w, &job)
	if job.State != "completed" || job.JobID != strings.ToLower(id) {
		t.Errorf("Unexpected job status %+v", job)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/history?id="+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from history, got %d", w.Code)
	}
	var rec history.Record
	decode(t, w, &rec)
	if rec.Status != history.StatusSuccess {
		t.Errorf("Unexpected record %+v", rec)
	}

	if w := env.do(httptest.NewRequest(http.MethodDelete, "/cancel?id="+id, nil)); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for finished job, got %d", w.Code)
	}
}

func TestCancelHandler(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(httptest.NewRequest(http.MethodGet, "/cancel?id=x", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodDelete, "/cancel", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodDelete, "/cancel?id=unknown", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	id := "5d1c7e2b-8f3a-4b6c-9d0e-1f2a3b4c5d6e"
	env.do(multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, map[string]string{"id": id}))
	if w := env.do(httptest.NewRequest(http.MethodDelete, "/cancel?id="+id, nil)); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for finished job, got %d", w.Code)
	}
}

func TestCredentialsAndHistory(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/credentials",
		strings.NewReader(`{"type":"s3","bucket":"videos","region":"eu-west-1"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var reg map[string]string
	decode(t, w, &reg)
	creds, err := env.server.Credentials.Get(reg["access_key"])
	if err != nil || creds["bucket"] != "videos" {
		t.Errorf("Credentials not stored: %v, %v", creds, err)
	}

	if w := env.do(httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(`{"type":"ftp"}`))); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}

	id := "9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c6b"
	env.do(multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, map[string]string{"id": id}))
	env.do(multipartRequest(t, "/drop", []part{{"files", "bad.avi", "video/x-msvideo", "x"}}, nil))

	w = env.do(httptest.NewRequest(http.MethodGet, "/history?id="+id, nil))
	var rec history.Record
	decode(t, w, &rec)
	if rec.Status != history.StatusSuccess || rec.Output != "compressed_clip.mp4" {
		t.Errorf("Unexpected record %+v", rec)
	}

	if w := env.do(httptest.NewRequest(http.MethodGet, "/history?id=missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/history/list?status=success", nil))
	var list struct {
		Records []history.Record `json:"records"`
		Count   int              `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 success record, got %d", list.Count)
	}

	if w := env.do(httptest.NewRequest(http.MethodGet, "/history/list?status=maybe", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	secret := []byte("routes-test-secret-at-least-32-bytes-long")
	env.server.Auth = auth.Verifier{Secret: secret}

	r := multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil)
	if w := env.do(r); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	token, err := auth.Sign(secret, &auth.Claims{Subject: "u", Deliver: SinkLink})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	r = multipartRequest(t, "/pick", []part{{"file", "clip.mp4", "video/mp4", "x"}}, nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := env.do(r)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	decode(t, w, &resp)
	if resp.Sink != SinkLink {
		t.Errorf("Expected sink from token, got %s", resp.Sink)
	}
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	decode(t, w, &health)
	if w.Code != http.StatusOK || health.Status != "healthy" || health.Engine != "ready" {
		t.Errorf("Unexpected health %d %+v", w.Code, health)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	var v VersionResponse
	decode(t, w, &v)
	if v.Version == "" || v.GoVersion == "" {
		t.Errorf("Unexpected version %+v", v)
	}
}

func TestWriteUploadErrorStatus(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		err  error
		code int
	}{
		{&intake.ValidationError{Message: intake.InvalidInputMessage}, http.StatusBadRequest},
		{intake.ErrNoFile, http.StatusBadRequest},
		{fmt.Errorf("x: %w", transcode.ErrInvalidJobID), http.StatusBadRequest},
		{transcode.ErrBusy, http.StatusConflict},
		{fmt.Errorf("encode: %w", context.Canceled), http.StatusConflict},
		{errors.New("encode: exit status 1"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		env.server.writeUploadError(w, tt.err)
		if w.Code != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, w.Code)
		}
	}
}
