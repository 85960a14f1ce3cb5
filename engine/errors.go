package engine

import (
	"fmt"
	"strings"
)

// RunError is returned when ffmpeg exits unsuccessfully.
type RunError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	if line := lastLine(e.Stderr); line != "" {
		return fmt.Sprintf("ffmpeg failed: %s", line)
	}
	return fmt.Sprintf("ffmpeg failed: %v", e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// lastLine picks the final non-empty stderr line; ffmpeg puts the cause there.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
