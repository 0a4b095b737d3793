package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vk/elgrid/internal/ctxlog"
)

// ClientInput defines the arguments for creating an s3_client resource.
type ClientInput struct {
	Region       string `bggo:"region"`
	Endpoint     string `bggo:"endpoint"`
	UsePathStyle bool   `bggo:"use_path_style"`
}

func createClient(ctx context.Context, in *ClientInput, newClient func(context.Context, *ClientInput) (ObjectStore, error)) (ObjectStore, error) {
	ctxlog.FromContext(ctx).Debug("Creating S3 client.", "region", in.Region, "endpoint", in.Endpoint, "path_style", in.UsePathStyle)
	client, err := newClient(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}
	return client, nil
}

// newAWSClient loads credentials from the default chain: environment,
// shared config files and instance roles.
func newAWSClient(ctx context.Context, in *ClientInput) (ObjectStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if in.Region != "" {
		opts = append(opts, awsconfig.WithRegion(in.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if in.Endpoint != "" {
			o.BaseEndpoint = aws.String(in.Endpoint)
		}
		o.UsePathStyle = in.UsePathStyle
	}), nil
}

// destroyClient is a no-op; the SDK client holds no resources that need
// explicit release.
func destroyClient(ctx context.Context, _ ObjectStore) error {
	ctxlog.FromContext(ctx).Debug("Releasing S3 client.")
	return nil
}
