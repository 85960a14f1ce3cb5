// Package quality maps user-facing quality tiers onto x264 rate-control values.
package quality

import (
	"fmt"
	"strings"
	"sync"
)

// Tier is a named compression preset.
type Tier string

const (
	Low       Tier = "low"
	Medium    Tier = "medium"
	High      Tier = "high"
	DeepFried Tier = "deep-fried"
)

// Default is the tier in effect until the user picks another one.
const Default = High

// FallbackCRF is used for any tier the mapping does not know.
const FallbackCRF = "23"

// Tiers lists every selectable tier in display order.
var Tiers = []Tier{Low, Medium, High, DeepFried}

// CRF returns the constant-rate-factor for a tier. Lower means better quality
// and larger output; deep-fried is deliberately the most aggressive setting.
func CRF(t Tier) string {
	switch t {
	case Low:
		return "28"
	case Medium:
		return "23"
	case High:
		return "18"
	case DeepFried:
		return "51"
	default:
		return FallbackCRF
	}
}

// ParseTier validates user input. Matching ignores case and surrounding space.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown quality tier %q", s)
}

// Selector holds the currently selected tier.
type Selector struct {
	mu   sync.RWMutex
	tier Tier
}

// NewSelector returns a Selector set to Default.
func NewSelector() *Selector {
	return &Selector{tier: Default}
}

func (s *Selector) Set(t Tier) {
	s.mu.Lock()
	s.tier = t
	s.mu.Unlock()
}

func (s *Selector) Get() Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}
