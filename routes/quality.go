package routes

import (
	"encoding/json"
	"net/http"

	"vidcrush/logger"
	"vidcrush/quality"
)

// QualityResponse describes the current tier and the available choices.
type QualityResponse struct {
	Tier  string   `json:"tier"`
	CRF   string   `json:"crf"`
	Tiers []string `json:"tiers"`
}

type qualityRequest struct {
	Tier string `json:"tier"`
}

// QualityHandler reads (GET) or selects (PUT) the quality tier used by the
// next compression.
func (s *Server) QualityHandler(w http.ResponseWriter, r *http.Request) {
	sel := s.Controller.Quality()

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPost:
		name := r.URL.Query().Get("tier")
		if name == "" {
			var body qualityRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			name = body.Tier
		}
		tier, err := quality.ParseTier(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sel.Set(tier)
		logger.Infof("Quality tier set to %s", tier)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tier := sel.Get()
	tiers := make([]string, 0, len(quality.Tiers))
	for _, t := range quality.Tiers {
		tiers = append(tiers, string(t))
	}
	writeJSON(w, http.StatusOK, QualityResponse{
		Tier:  string(tier),
		CRF:   quality.CRF(tier),
		Tiers: tiers,
	})
}
