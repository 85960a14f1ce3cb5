// Package engine drives the media encoder. The encoder works on a private
// workspace that plays the role of a virtual filesystem: inputs are written
// into it by name, the encode command refers to those names, and outputs are
// read back out of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// State is the load state of an engine.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotReady    = errors.New("engine is not loaded")
	ErrInvalidName = errors.New("invalid workspace file name")
)

// Engine is the contract the transcode controller relies on. All methods may
// block and may fail.
type Engine interface {
	// Load prepares the engine. At most one load attempt ever runs; callers
	// that arrive while it is in flight wait for its outcome.
	Load(ctx context.Context) error
	State() State

	WriteFile(ctx context.Context, name string, data []byte) error
	Run(ctx context.Context, args ...string) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Remove(name string) error
}

// CompressArgs builds the H.264 re-encode command line for staged files.
func CompressArgs(input, output, crf string) []string {
	return []string{
		"-i", input,
		"-vcodec", "libx264",
		"-crf", crf,
		output,
	}
}

// CheckName rejects names that would escape the workspace.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
