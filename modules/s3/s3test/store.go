// Package s3test provides an in-memory object store for tests.
package s3test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type object struct {
	data []byte
	etag string
}

// Store keeps objects in memory and computes ETags the way S3 does for
// single-part uploads.
type Store struct {
	mu      sync.Mutex
	objects map[string]*object
	puts    int
	// HeadErr, when set, is returned by every HeadObject call.
	HeadErr error
	// Mangle, when set, rewrites every body before it is stored, as a
	// transfer that corrupts data would.
	Mangle func(data []byte) []byte
}

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]*object)}
}

func path(bucket, key string) string {
	return bucket + "/" + key
}

// PutObject stores the body, replacing any existing object.
func (s *Store) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if s.Mangle != nil {
		data = s.Mangle(data)
	}
	sum := md5.Sum(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path(aws.ToString(in.Bucket), aws.ToString(in.Key))] = &object{data: data, etag: etag}
	s.puts++
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

// HeadObject returns the object's ETag and size, or *types.NotFound.
func (s *Store) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HeadErr != nil {
		return nil, s.HeadErr
	}
	obj, ok := s.objects[path(aws.ToString(in.Bucket), aws.ToString(in.Key))]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("Not Found")}
	}
	return &s3.HeadObjectOutput{
		ETag:          aws.String(obj.etag),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

// Object returns a copy of the stored bytes.
func (s *Store) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// SetETag overrides the stored ETag, e.g. to mimic a multipart upload.
func (s *Store) SetETag(bucket, key, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[path(bucket, key)]; ok {
		obj.etag = etag
	}
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Puts returns the number of PutObject calls that succeeded.
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
