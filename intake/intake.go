// Package intake turns picked or dropped files into a validated SourceVideo.
package intake

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize is the exclusive upper bound on accepted input size (200 MiB).
const MaxSize int64 = 209715200

// InvalidInputMessage is shown to the user when a file is rejected.
const InvalidInputMessage = "Invalid file type or size. Please drop a valid video file (MP4 or MOV) under 200MB."

var (
	ErrNoFile  = errors.New("no file selected")
	ErrNoVideo = errors.New("no video file found")

	extensionPattern = regexp.MustCompile(`(?i)\.(mp4|mov)$`)
)

// Candidate is a file offered by the user, not yet accepted.
type Candidate struct {
	Name string
	Type string // declared MIME type, may be empty
	Size int64
	Open func() (io.ReadCloser, error)
}

// Item is an entry of a structured drop list. Only Kind "file" carries a file.
type Item struct {
	Kind string
	File *Candidate
}

// SourceVideo is the accepted input for one compression run.
type SourceVideo struct {
	Name string
	Type string
	Size int64
	open func() (io.ReadCloser, error)
}

// ReadAll loads the full content of the source.
func (s SourceVideo) ReadAll() ([]byte, error) {
	if s.open == nil {
		return nil, fmt.Errorf("source %s has no content", s.Name)
	}
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Name, err)
	}
	return data, nil
}

// Accept converts a candidate into a SourceVideo without validating it.
func Accept(c Candidate) SourceVideo {
	return SourceVideo{Name: c.Name, Type: c.Type, Size: c.Size, open: c.Open}
}

// ValidationError reports why a candidate was rejected. Message is user-facing.
type ValidationError struct {
	Name    string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected %q: %s", e.Name, e.Reason)
}

func isVideoType(t string) bool {
	return strings.HasPrefix(t, "video/")
}

// ResolveType fills in a missing or generic declared type by sniffing content.
func ResolveType(c Candidate) Candidate {
	if c.Type != "" && c.Type != "application/octet-stream" {
		return c
	}
	if c.Open == nil {
		return c
	}
	rc, err := c.Open()
	if err != nil {
		return c
	}
	defer rc.Close()

	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return c
	}
	c.Type = mt.String()
	return c
}

// SelectFromItems returns the first file item with a video type.
func SelectFromItems(items []Item) (Candidate, bool) {
	for _, item := range items {
		if item.Kind != "file" || item.File == nil {
			continue
		}
		if isVideoType(item.File.Type) {
			return *item.File, true
		}
	}
	return Candidate{}, false
}

// SelectFromFiles is the plain file-list variant of SelectFromItems.
func SelectFromFiles(files []Candidate) (Candidate, bool) {
	for _, f := range files {
		if isVideoType(f.Type) {
			return f, true
		}
	}
	return Candidate{}, false
}

// SelectDropped prefers the structured item list and falls back to files.
func SelectDropped(items []Item, files []Candidate) (Candidate, bool) {
	if items != nil {
		return SelectFromItems(items)
	}
	return SelectFromFiles(files)
}

// Policy decides which candidates are accepted.
type Policy struct {
	MaxSize   int64
	TrustPick bool // pick path only checks the MIME type, like a browser picker filter
}

// DefaultPolicy validates both entry paths identically.
func DefaultPolicy() Policy {
	return Policy{MaxSize: MaxSize}
}

func (p Policy) reject(c Candidate, reason string) error {
	return &ValidationError{Name: c.Name, Reason: reason, Message: InvalidInputMessage}
}

// Validate applies the full check: video MIME type, 0 < size < MaxSize and
// an .mp4 or .mov extension.
func (p Policy) Validate(c Candidate) error {
	limit := p.MaxSize
	if limit <= 0 {
		limit = MaxSize
	}
	if !isVideoType(c.Type) {
		return p.reject(c, fmt.Sprintf("type %q is not video/*", c.Type))
	}
	if c.Size <= 0 || c.Size >= limit {
		return p.reject(c, fmt.Sprintf("size %d outside (0, %d)", c.Size, limit))
	}
	if !extensionPattern.MatchString(c.Name) {
		return p.reject(c, "extension is not .mp4 or .mov")
	}
	return nil
}

// ValidatePick checks an explicitly picked file.
func (p Policy) ValidatePick(c Candidate) error {
	if p.TrustPick {
		if !isVideoType(c.Type) {
			return p.reject(c, fmt.Sprintf("type %q is not video/*", c.Type))
		}
		return nil
	}
	return p.Validate(c)
}
