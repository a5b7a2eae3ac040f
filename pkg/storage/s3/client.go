package s3

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fathomlabs/stratus/pkg/storage"
)

// Client implements storage.Client for AWS S3 and S3-compatible storage.
type Client struct {
	client   *awss3.Client
	bucket   string
	endpoint string
	maxKeys  int
}

var _ storage.Client = (*Client)(nil)

// New creates a new S3 client with the given configuration.
//
// The client uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &storage.StorageError{
			Op:        "New",
			Backend:   storage.BackendS3,
			Container: cfg.Bucket,
			Err:       err,
		}
	}

	s3Opts := []func(*awss3.Options){
		func(o *awss3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	if maxKeys > MaxAllowedKeys {
		maxKeys = MaxAllowedKeys
	}

	return &Client{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: resolveEndpoint(cfg.Endpoint, awsCfg.Region),
		maxKeys:  maxKeys,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	return awsCfg, nil
}

// resolveEndpoint returns the public endpoint used for location URLs.
//
// Locations use path-style addressing so the bucket lands in the URL
// path and round-trips through the shared URL parser.
func resolveEndpoint(endpoint, region string) string {
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/")
	}
	if region == "" {
		region = DefaultAWSRegion
	}
	return "https://s3." + region + ".amazonaws.com"
}

// List returns a page of objects with the given prefix.
func (c *Client) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	maxKeys := opts.MaxResults
	if maxKeys <= 0 || maxKeys > c.maxKeys {
		maxKeys = c.maxKeys
	}

	input := &awss3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Marker != "" {
		input.ContinuationToken = aws.String(opts.Marker)
	}

	output, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, c.wrapError("List", "", err)
	}

	objects := make([]storage.ObjectSummary, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, storage.ObjectSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	result := &storage.ListResult{
		Objects:     objects,
		IsTruncated: aws.ToBool(output.IsTruncated),
	}
	if output.NextContinuationToken != nil {
		result.NextMarker = *output.NextContinuationToken
	}
	return result, nil
}

// Download opens a streaming download, passing conditional-read headers
// through. A 304 response maps to storage.ErrNotModified.
func (c *Client) Download(ctx context.Context, path string, cond storage.Conditions) (*storage.Download, error) {
	input := &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	}
	if cond.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(cond.IfNoneMatch)
	}
	if !cond.IfModifiedSince.IsZero() {
		since := cond.IfModifiedSince
		input.IfModifiedSince = &since
	}

	output, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, c.wrapError("Download", path, err)
	}

	return &storage.Download{
		Body:          output.Body,
		ETag:          cleanETag(aws.ToString(output.ETag)),
		LastModified:  aws.ToTime(output.LastModified),
		ContentLength: aws.ToInt64(output.ContentLength),
	}, nil
}

// Endpoint returns the public endpoint used for location URLs.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// AccountName returns the authority component of the endpoint.
// S3 has no account concept comparable to a storage account name.
func (c *Client) AccountName() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.endpoint, "https://"), "http://")
}

// Container returns the bucket name this client is bound to.
func (c *Client) Container() string {
	return c.bucket
}

// Close releases any resources held by the client.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (c *Client) Close() error {
	return nil
}

// wrapError converts S3 errors to storage errors with appropriate
// sentinel errors.
func (c *Client) wrapError(op, path string, err error) error {
	wrapped := &storage.StorageError{
		Op:        op,
		Backend:   storage.BackendS3,
		Container: c.bucket,
		Path:      path,
		Err:       err,
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = storage.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = storage.ErrContainerNotFound
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotModified", "304":
			wrapped.Err = storage.ErrNotModified
		case "NoSuchKey", "NotFound":
			wrapped.Err = storage.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = storage.ErrContainerNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = storage.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = storage.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = storage.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = storage.ErrUnavailable
		}
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NotModified") || strings.Contains(errMsg, "304"):
		wrapped.Err = storage.ErrNotModified
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = storage.ErrNotFound
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = storage.ErrContainerNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = storage.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = storage.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = storage.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = storage.ErrUnavailable
	}

	return wrapped
}

// cleanETag removes surrounding quotes from an ETag value.
// S3 returns ETags with quotes, e.g., "d41d8cd98f00b204e9800998ecf8427e".
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}
