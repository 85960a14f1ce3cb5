// Package blobs keeps compressed outputs behind short-lived, revocable tokens
// so a client can fetch them with a plain GET.
package blobs

import (
	"errors"
	"sync"
	"time"

	"vidcrush/logger"
	"vidcrush/utils"
)

// ReleaseDelay is how long a blob stays available after it has been served.
// The server cannot observe when a client has finished saving the bytes, so
// this is a heuristic grace period, not a guarantee.
const ReleaseDelay = 1000 * time.Millisecond

// DefaultTTL bounds how long an unfetched blob is kept.
const DefaultTTL = 10 * time.Minute

var ErrNotFound = errors.New("blob not found or already released")

type Blob struct {
	Name        string
	ContentType string
	Data        []byte
	Created     time.Time
}

type entry struct {
	blob    Blob
	fetched bool
	timer   *time.Timer
}

// Registry maps tokens to blobs.
type Registry struct {
	mu           sync.Mutex
	entries      map[string]*entry
	releaseDelay time.Duration
	ttl          time.Duration
	now          func() time.Time
}

// NewRegistry returns an empty registry. Zero durations select the defaults.
func NewRegistry(releaseDelay, ttl time.Duration) *Registry {
	if releaseDelay <= 0 {
		releaseDelay = ReleaseDelay
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		entries:      make(map[string]*entry),
		releaseDelay: releaseDelay,
		ttl:          ttl,
		now:          time.Now,
	}
}

// Put stores a blob and returns its token.
func (r *Registry) Put(name, contentType string, data []byte) (string, error) {
	token, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.entries[token] = &entry{blob: Blob{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Created:     r.now(),
	}}
	r.mu.Unlock()
	return token, nil
}

func (r *Registry) Get(token string) (Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return e.blob, nil
}

// Served marks a blob as delivered and schedules its release after the
// release delay. Repeated calls keep the first schedule.
func (r *Registry) Served(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok || e.fetched {
		return
	}
	e.fetched = true
	e.timer = time.AfterFunc(r.releaseDelay, func() {
		if r.Revoke(token) {
			logger.Debugf("released blob %s after delivery", token)
		}
	})
}

// Revoke drops a blob. It reports whether the token was live.
func (r *Registry) Revoke(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.entries, token)
	return true
}

// Sweep releases blobs that were never fetched within the TTL.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for token, e := range r.entries {
		if !e.fetched && e.blob.Created.Before(cutoff) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
