package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"vidcrush/logger"
)

// WriteDirectServe stores the object under baseDir so the HTTP server can
// serve it from /files/.
func WriteDirectServe(ctx context.Context, info map[string]string, reader io.Reader) (string, error) {
	baseDir := info["baseDir"]
	folder := info["folder"]
	filename := info["filename"]

	if baseDir == "" || filename == "" {
		return "", fmt.Errorf("missing baseDir or filename")
	}
	if strings.Contains(folder, "..") || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("refusing path outside serve dir: %s/%s", folder, filename)
	}

	fullDir := filepath.Join(baseDir, filepath.FromSlash(folder))
	fullPath := filepath.Join(fullDir, filename)

	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	defer file.Close()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}

	logger.Infof("Saved '%s' to '%s'", filename, fullPath)
	return "/files/" + path.Join(folder, filename), nil
}
