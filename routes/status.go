package routes

import (
	"fmt"
	"net/http"

	"vidcrush/logger"
	"vidcrush/quality"
	"vidcrush/transcode"
)

// JobStatusResponse is the state of a single job.
type JobStatusResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// SourceInfo describes the current input video.
type SourceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// StatusResponse is the controller-wide view: what a UI needs to render.
type StatusResponse struct {
	Loading bool        `json:"loading"`
	Engine  string      `json:"engine"`
	Tier    string      `json:"tier"`
	CRF     string      `json:"crf"`
	Source  *SourceInfo `json:"source,omitempty"`
}

// StatusHandler reports the controller state, or one job's state with ?id=.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		id = transcode.NormalizeJobID(id)
		state, ok := s.Controller.JobState(id)
		if !ok {
			http.Error(w, fmt.Sprintf("Job %s not found", id), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, JobStatusResponse{JobID: id, State: state.String()})
		return
	}

	tier := s.Controller.Quality().Get()
	resp := StatusResponse{
		Loading: s.Controller.Loading(),
		Engine:  s.Controller.EngineState().String(),
		Tier:    string(tier),
		CRF:     quality.CRF(tier),
	}
	if src, ok := s.Controller.Source(); ok {
		resp.Source = &SourceInfo{Name: src.Name, Type: src.Type, Size: src.Size}
	}
	writeJSON(w, http.StatusOK, resp)
}
