package s3

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vk/elgrid/internal/ctxlog"
)

// ETagCheckInput defines the arguments for the s3_etag_check runner.
type ETagCheckInput struct {
	SourcePath string `bggo:"source_path"`
	Bucket     string `bggo:"bucket"`
	Key        string `bggo:"key"`
}

// OnRunS3ETagCheck compares the stored object's ETag with the MD5 digest of
// the local file and passes the coordinates through when they agree.
//
// Multipart uploads have ETags of the form "<md5-of-md5s>-<parts>", which
// never equal a plain MD5; they are reported as a mismatch.
func OnRunS3ETagCheck(ctx context.Context, deps *Deps, input *ETagCheckInput) (*Location, error) {
	logger := ctxlog.FromContext(ctx).With("bucket", input.Bucket, "key", input.Key)
	if deps.Client == nil {
		return nil, fmt.Errorf("s3 client dependency was not injected")
	}

	head, err := deps.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(input.Bucket),
		Key:    aws.String(input.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("reading metadata of s3://%s/%s: %w", input.Bucket, input.Key, err)
	}
	etag := strings.Trim(aws.ToString(head.ETag), `"`)

	digest, err := fileMD5(input.SourcePath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Comparing ETag with local digest.", "etag", etag, "md5", digest)

	if etag != digest {
		if strings.Contains(etag, "-") {
			logger.Debug("ETag has the multipart form and cannot match a plain MD5.", "etag", etag)
		}
		return nil, fmt.Errorf("%w: s3://%s/%s has ETag %q, %s has MD5 %q",
			ErrChecksumMismatch, input.Bucket, input.Key, etag, input.SourcePath, digest)
	}

	logger.Info("ETag matches local file", "etag", etag)
	return &Location{Bucket: input.Bucket, Key: input.Key}, nil
}

// fileMD5 streams a file through MD5 and returns the hex digest.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source file '%s': %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing '%s': %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
