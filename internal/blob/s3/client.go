// Package s3blob ships audit archives to S3-compatible object storage.
// It works against AWS S3 itself as well as MinIO, Cloudflare R2, and
// similar providers that expose a custom endpoint.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds connection parameters for an S3-compatible object
// store.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for compatible providers.
	// Leave empty for standard AWS S3.
	Endpoint string

	// Region is the AWS region or the provider's equivalent.
	Region string

	// Bucket receives every object this process writes.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL selects the scheme when Endpoint carries none.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path instead of the
	// subdomain. Most non-AWS providers require it.
	ForcePathStyle bool
}

// Client wraps the AWS SDK S3 client together with the target bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a Client from the given configuration. Credentials are
// static; IAM role resolution is not used.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := withScheme(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Health verifies bucket access with a HeadBucket call.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK's HTTP client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}

// S3 returns the underlying SDK client for the writer.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// withScheme prepends http:// or https:// when the endpoint has no
// scheme of its own.
func withScheme(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
