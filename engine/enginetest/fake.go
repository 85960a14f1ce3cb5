// Package enginetest provides an in-memory Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"vidcrush/engine"
)

// Fake is an in-memory engine. Run copies the "-i" input to the last argument
// unless RunFunc is set.
type Fake struct {
	mu    sync.Mutex
	files map[string][]byte
	state engine.State

	LoadErr  error
	WriteErr error
	ReadErr  error
	RunFunc  func(ctx context.Context, files map[string][]byte, args []string) error

	Loads   int
	Runs    [][]string
	Removed []string
}

func New() *Fake {
	return &Fake{files: make(map[string][]byte)}
}

func (f *Fake) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Loads++
	if f.state == engine.StateReady {
		return nil
	}
	if f.LoadErr != nil {
		f.state = engine.StateFailed
		return fmt.Errorf("failed to load ffmpeg: %w", f.LoadErr)
	}
	f.state = engine.StateReady
	return nil
}

func (f *Fake) State() engine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) WriteFile(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != engine.StateReady {
		return engine.ErrNotReady
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.files[name] = append([]byte(nil), data...)
	return nil
}

func (f *Fake) ReadFile(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != engine.StateReady {
		return nil, engine.ErrNotReady
	}
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (f *Fake) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	f.Removed = append(f.Removed, name)
	return nil
}

func (f *Fake) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	if f.state != engine.StateReady {
		f.mu.Unlock()
		return engine.ErrNotReady
	}
	f.Runs = append(f.Runs, append([]string(nil), args...))
	run := f.RunFunc
	f.mu.Unlock()

	if run != nil {
		// RunFunc may block; it works on a copy that is merged back afterwards.
		f.mu.Lock()
		snapshot := make(map[string][]byte, len(f.files))
		for k, v := range f.files {
			snapshot[k] = v
		}
		f.mu.Unlock()

		if err := run(ctx, snapshot, args); err != nil {
			return err
		}
		f.mu.Lock()
		for k, v := range snapshot {
			f.files[k] = v
		}
		f.mu.Unlock()
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var input string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			input = args[i+1]
		}
	}
	data, ok := f.files[input]
	if !ok {
		return fmt.Errorf("ffmpeg failed: %s: No such file or directory", input)
	}
	f.files[args[len(args)-1]] = append([]byte(nil), data...)
	return nil
}

// Files lists the names currently staged.
func (f *Fake) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	return names
}

// LastRun returns the arguments of the most recent Run call.
func (f *Fake) LastRun() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Runs) == 0 {
		return nil
	}
	return f.Runs[len(f.Runs)-1]
}
