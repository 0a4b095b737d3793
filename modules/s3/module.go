// Package s3 provides a shared S3 client asset and the runners that upload a
// local file and verify the stored object against it.
package s3

import (
	"context"
	"errors"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vk/elgrid/internal/registry"
)

var (
	// ErrObjectExists is returned by s3_upload when replace is false and
	// the key is already taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrChecksumMismatch is returned by s3_etag_check when the stored
	// object's ETag differs from the local file's MD5 digest.
	ErrChecksumMismatch = errors.New("object ETag does not match local MD5")
)

// ObjectStore is the part of the S3 API the runners use. *s3.Client
// satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Location is the output of both runners: where the object lives.
type Location struct {
	Bucket string `cty:"s3_bucket"`
	Key    string `cty:"s3_key"`
}

// Deps is injected from a step's `uses` block.
type Deps struct {
	Client ObjectStore `bggo:"client"`
}

// Module implements the registry.Module interface. It's the main entrypoint
// for the s3 module.
type Module struct {
	// NewClient builds the store behind an s3_client resource. Nil means
	// a real client from the default AWS configuration.
	NewClient func(ctx context.Context, in *ClientInput) (ObjectStore, error)
}

// Register registers the module's asset and runners with the registry.
func (m *Module) Register(r *registry.Registry) {
	newClient := m.NewClient
	if newClient == nil {
		newClient = newAWSClient
	}

	r.RegisterAssetHandler("CreateS3Client", &registry.RegisteredAsset{
		NewInput: func() any { return new(ClientInput) },
		CreateFn: func(ctx context.Context, in *ClientInput) (ObjectStore, error) {
			return createClient(ctx, in, newClient)
		},
	})
	r.RegisterAssetHandler("DestroyS3Client", &registry.RegisteredAsset{
		DestroyFn: destroyClient,
	})
	r.RegisterAssetInterface("s3_client", reflect.TypeOf((*ObjectStore)(nil)).Elem())

	r.RegisterRunner("OnRunS3Upload", &registry.RegisteredRunner{
		NewInput: func() any { return new(UploadInput) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunS3Upload,
	})
	r.RegisterRunner("OnRunS3ETagCheck", &registry.RegisteredRunner{
		NewInput: func() any { return new(ETagCheckInput) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunS3ETagCheck,
	})
}
