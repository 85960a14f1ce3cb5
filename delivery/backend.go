package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"vidcrush/config"
)

// Backend types accepted by WriteObject.
const (
	BackendDirectServe = "directServe"
	BackendS3          = "s3"
	BackendGCS         = "gcs"
	BackendSFTP        = "sftp"
)

// IsBackend reports whether name is a storage backend type.
func IsBackend(name string) bool {
	switch name {
	case BackendDirectServe, BackendS3, BackendGCS, BackendSFTP:
		return true
	}
	return false
}

// Backend writes artifacts to a storage backend. AccessInfo holds the
// backend's credentials and settings; Folder is an optional sub-directory.
type Backend struct {
	Type       string
	AccessInfo map[string]string
	Folder     string
}

func (b Backend) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := checkArtifact(a); err != nil {
		return Receipt{}, err
	}

	info := b.prepareAccessInfo(a.Name)
	location, err := WriteObject(ctx, b.Type, info, bytes.NewReader(a.Data))
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Sink: b.Type, Location: location}, nil
}

// prepareAccessInfo copies the credentials and adds per-object keys.
func (b Backend) prepareAccessInfo(filename string) map[string]string {
	info := make(map[string]string, len(b.AccessInfo)+3)
	for k, v := range b.AccessInfo {
		info[k] = v
	}
	info["filename"] = filename
	info["folder"] = b.Folder
	if b.Type == BackendDirectServe {
		info["baseDir"] = config.GetDirectServeBaseDir()
	}
	return info
}

// objectKey joins folder and filename with forward slashes.
func objectKey(info map[string]string) string {
	return path.Join(info["folder"], info["filename"])
}

// WriteObject dispatches to the backend implementation and returns the
// location of the written object.
func WriteObject(ctx context.Context, backendType string, info map[string]string, reader io.Reader) (string, error) {
	switch backendType {
	case BackendDirectServe:
		loc, err := WriteDirectServe(ctx, info, reader)
		if err != nil {
			return "", fmt.Errorf("failed to write to direct serve: %w", err)
		}
		return loc, nil
	case BackendS3:
		loc, err := UploadToS3(ctx, info, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to S3: %w", err)
		}
		return loc, nil
	case BackendGCS:
		loc, err := UploadToGCS(ctx, info, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to GCS: %w", err)
		}
		return loc, nil
	case BackendSFTP:
		loc, err := UploadToSFTP(ctx, info, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to SFTP: %w", err)
		}
		return loc, nil
	default:
		return "", fmt.Errorf("unknown backend type: %s", backendType)
	}
}
