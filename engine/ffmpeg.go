package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"vidcrush/logger"
)

// FFmpeg runs the ffmpeg binary against a private workspace directory.
type FFmpeg struct {
	binary  string
	baseDir string

	mu        sync.Mutex
	state     State
	loadErr   error
	loaded    chan struct{}
	path      string
	version   string
	workspace string
}

// NewFFmpeg returns an unloaded engine. binary is looked up in PATH when it is
// not a path; baseDir is where the workspace is created ("" = os.TempDir).
func NewFFmpeg(binary, baseDir string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, baseDir: baseDir}
}

func (f *FFmpeg) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Version is the first line of `ffmpeg -version`, empty before load.
func (f *FFmpeg) Version() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// Workspace returns the workspace directory, empty before load.
func (f *FFmpeg) Workspace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workspace
}

// Load resolves and probes the binary and creates the workspace. A failed
// load is final: later calls return the same error.
func (f *FFmpeg) Load(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case StateReady:
		f.mu.Unlock()
		return nil
	case StateFailed:
		err := f.loadErr
		f.mu.Unlock()
		return err
	case StateLoading:
		wait := f.loaded
		f.mu.Unlock()
		select {
		case <-wait:
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.loadErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.state = StateLoading
	f.loaded = make(chan struct{})
	f.mu.Unlock()

	path, version, workspace, err := f.load(ctx)

	f.mu.Lock()
	if err != nil {
		f.state = StateFailed
		f.loadErr = fmt.Errorf("failed to load ffmpeg: %w", err)
	} else {
		f.state = StateReady
		f.path, f.version, f.workspace = path, version, workspace
	}
	close(f.loaded)
	err = f.loadErr
	f.mu.Unlock()

	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	logger.Infof("ffmpeg loaded: %s (workspace %s)", version, workspace)
	return nil
}

func (f *FFmpeg) load(ctx context.Context) (string, string, string, error) {
	path, err := exec.LookPath(f.binary)
	if err != nil {
		return "", "", "", err
	}

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", "", "", fmt.Errorf("probe %s: %w", path, err)
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")

	if f.baseDir != "" {
		if err := os.MkdirAll(f.baseDir, 0755); err != nil {
			return "", "", "", fmt.Errorf("create workspace parent: %w", err)
		}
	}
	workspace, err := os.MkdirTemp(f.baseDir, "vidcrush-ws-")
	if err != nil {
		return "", "", "", fmt.Errorf("create workspace: %w", err)
	}
	return path, version, workspace, nil
}

// resolve returns the absolute workspace path of name once the engine is ready.
func (f *FFmpeg) resolve(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateReady {
		return "", ErrNotReady
	}
	return filepath.Join(f.workspace, name), nil
}

func (f *FFmpeg) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (f *FFmpeg) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes a workspace file. Missing files are not an error.
func (f *FFmpeg) Remove(name string) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Run executes ffmpeg inside the workspace so args can refer to staged names.
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	ready := f.state == StateReady
	path, workspace := f.path, f.workspace
	f.mu.Unlock()
	if !ready {
		return ErrNotReady
	}

	full := append([]string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, path, full...)
	cmd.Dir = workspace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debugf("running ffmpeg %s", strings.Join(full, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return &RunError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// Close removes the workspace. The engine cannot be used afterwards.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.workspace == "" {
		return nil
	}
	err := os.RemoveAll(f.workspace)
	f.workspace = ""
	f.state = StateFailed
	f.loadErr = fmt.Errorf("engine closed: %w", ErrNotReady)
	return err
}
