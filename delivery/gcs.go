package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"vidcrush/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCS streams the object to Google Cloud Storage using a service
// account key given as raw JSON or base64 encoded JSON.
func UploadToGCS(ctx context.Context, info map[string]string, reader io.Reader) (string, error) {
	bucketName := info["bucket"]
	if bucketName == "" || info["credentialsJSON"] == "" {
		return "", fmt.Errorf("missing required accessInfo keys: bucket, credentialsJSON")
	}
	objectName := objectKey(info)

	credentialsJSON, err := base64.StdEncoding.DecodeString(info["credentialsJSON"])
	if err != nil {
		credentialsJSON = []byte(info["credentialsJSON"])
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return "", fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = "video/mp4"

	if _, err := io.Copy(wc, reader); err != nil {
		wc.Close()
		return "", fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}
