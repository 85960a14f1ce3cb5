package config

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the directory where vidcrush keeps its databases.
// Priority: loaded config > VIDCRUSH_DATA_DIR > "./data".
func GetDataDir() string {
	if cfg := Current(); cfg != nil && cfg.DataDir != "" {
		return cfg.DataDir
	}
	if dir := os.Getenv("VIDCRUSH_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetHistoryDBPath returns the path of the job history database.
// Path: {DATA_DIR}/history.db
func GetHistoryDBPath() string {
	return filepath.Join(GetDataDir(), "history.db")
}

// GetCredentialsDBPath returns the path of the storage credentials database.
// Path: {DATA_DIR}/credentials.db
func GetCredentialsDBPath() string {
	return filepath.Join(GetDataDir(), "credentials.db")
}

// GetDirectServeBaseDir returns the base directory for the directServe backend.
// Only server administrators can move it, via VIDCRUSH_SERVE_DIR.
func GetDirectServeBaseDir() string {
	if cfg := Current(); cfg != nil && cfg.ServeDir != "" {
		return cfg.ServeDir
	}
	if dir := os.Getenv("VIDCRUSH_SERVE_DIR"); dir != "" {
		return dir
	}
	return "./serve"
}
