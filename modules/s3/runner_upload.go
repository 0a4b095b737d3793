package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/vk/elgrid/internal/ctxlog"
)

// UploadInput defines the arguments for the s3_upload runner.
type UploadInput struct {
	SourcePath  string `bggo:"source_path"`
	Bucket      string `bggo:"bucket"`
	Key         string `bggo:"key"`
	Replace     bool   `bggo:"replace"`
	ContentType string `bggo:"content_type"`
}

// OnRunS3Upload copies a local file to bucket/key. With replace set, an
// existing object is overwritten, so a re-run leaves exactly one object.
func OnRunS3Upload(ctx context.Context, deps *Deps, input *UploadInput) (*Location, error) {
	logger := ctxlog.FromContext(ctx).With("bucket", input.Bucket, "key", input.Key)
	if deps.Client == nil {
		return nil, fmt.Errorf("s3 client dependency was not injected")
	}

	if !input.Replace {
		exists, err := objectExists(ctx, deps.Client, input.Bucket, input.Key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("s3://%s/%s: %w", input.Bucket, input.Key, ErrObjectExists)
		}
	}

	file, err := os.Open(input.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file '%s': %w", input.SourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for '%s': %w", input.SourcePath, err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(input.SourcePath))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	logger.Info("Uploading file to S3", "source", input.SourcePath, "size", stat.Size(), "contentType", contentType)
	out, err := deps.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(input.Bucket),
		Key:           aws.String(input.Key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading to s3://%s/%s: %w", input.Bucket, input.Key, err)
	}
	logger.Info("Successfully uploaded file", "etag", aws.ToString(out.ETag))

	return &Location{Bucket: input.Bucket, Key: input.Key}, nil
}

// objectExists reports whether bucket/key holds an object. Any error other
// than not-found is returned.
func objectExists(ctx context.Context, client ObjectStore, bucket, key string) (bool, error) {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking s3://%s/%s: %w", bucket, key, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
