package delivery

import (
	"context"
	"fmt"
	"io"

	"vidcrush/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3 streams the object to S3 with static credentials. An optional
// "endpoint" targets S3-compatible stores and switches to path-style URLs.
func UploadToS3(ctx context.Context, info map[string]string, reader io.Reader) (string, error) {
	bucket := info["bucket"]
	if bucket == "" || info["accessKey"] == "" || info["secretKey"] == "" {
		return "", fmt.Errorf("missing required accessInfo keys: bucket, accessKey, secretKey")
	}
	key := objectKey(info)

	opts := s3.Options{
		Region:      info["region"],
		Credentials: credentials.NewStaticCredentialsProvider(info["accessKey"], info["secretKey"], ""),
	}
	if endpoint := info["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	uploader := manager.NewUploader(s3.New(opts))

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Uploaded object '%s' to bucket '%s'", key, bucket)
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
