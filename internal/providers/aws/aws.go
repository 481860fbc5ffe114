// Package aws implements buckets.Provider on Amazon S3.
//
// A Provider keeps one S3 client per region. Requests start on the client of
// the default region; when S3 answers with a permanent redirect the request
// is sent once more through the client of the bucket's region, which is
// created on first use and cached.
package aws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"cloudbuckets/internal/buckets"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

const ID = "aws"

const defaultMaxAttempts = 3

// s3API is the subset of *s3.Client used by the provider.
type s3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketWebsite(ctx context.Context, params *s3.GetBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.GetBucketWebsiteOutput, error)
	PutBucketWebsite(ctx context.Context, params *s3.PutBucketWebsiteInput, optFns ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error)
	GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
	DeleteBucketEncryption(ctx context.Context, params *s3.DeleteBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketEncryptionOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Provider is safe for concurrent use.
type Provider struct {
	region    string
	newClient func(region string) s3API
	log       zerolog.Logger

	mu      sync.Mutex
	clients map[string]s3API
}

var _ buckets.Provider = (*Provider)(nil)

// New loads the default AWS configuration chain for the requested region.
// Static credentials in opts take precedence over the chain.
func New(ctx context.Context, opts *buckets.ProviderOptions) (*Provider, error) {
	if opts == nil {
		opts = &buckets.ProviderOptions{}
	}
	endpoint, err := normalizeEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	if opts.AccessKey != "" && opts.SecretKey == "" {
		return nil, &buckets.ConfigError{Field: "secret_key", Message: "secret key is required with an access key"}
	}

	region := opts.EffectiveRegion()
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(defaultMaxAttempts),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &buckets.ProviderError{Provider: ID, Op: "LoadConfig", Message: err.Error(), Cause: err}
	}

	usePathStyle := opts.UsePathStyle
	newClient := func(region string) s3API {
		return s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.Region = region
			o.UseARNRegion = true
			o.UsePathStyle = usePathStyle
			if endpoint != "" {
				o.BaseEndpoint = awssdk.String(endpoint)
			}
		})
	}
	return newProvider(region, newClient, opts.Logger), nil
}

func newProvider(region string, newClient func(string) s3API, log zerolog.Logger) *Provider {
	return &Provider{
		region:    region,
		newClient: newClient,
		log:       log.With().Str("provider", ID).Logger(),
		clients:   make(map[string]s3API),
	}
}

func normalizeEndpoint(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", &buckets.ConfigError{Field: "endpoint", Value: endpoint, Message: "endpoint must be a valid http(s) URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &buckets.ConfigError{Field: "endpoint", Value: endpoint, Message: "endpoint must use http or https"}
	}
	return strings.TrimRight(endpoint, "/"), nil
}

func (p *Provider) ID() string { return ID }

func (p *Provider) Close() error { return nil }

// Region returns the default region.
func (p *Provider) Region() string { return p.region }

// client returns the cached client for region, creating it on first use.
// The lock is never held across a request.
func (p *Provider) client(region string) s3API {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[region]; ok {
		return c
	}
	c := p.newClient(region)
	p.clients[region] = c
	p.log.Debug().Str("region", region).Msg("created s3 client")
	return c
}

func (p *Provider) defaultClient() s3API {
	return p.client(p.region)
}

// invoke runs call on the default client and, if S3 redirects the request
// to another region, exactly once more on that region's client.
func invoke[T any](ctx context.Context, p *Provider, call func(s3API) (T, error)) (T, error) {
	out, err := call(p.defaultClient())
	if err == nil {
		return out, nil
	}
	region, ok := redirectRegion(err)
	if !ok || region == p.region || ctx.Err() != nil {
		return out, err
	}
	p.log.Debug().Str("region", region).Msg("retrying request in bucket region")
	return call(p.client(region))
}

// fail converts an SDK error into a ProviderError.
func (p *Provider) fail(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	var ce *buckets.ConfigError
	if errors.As(err, &ce) {
		return err
	}
	pe := &buckets.ProviderError{Provider: ID, Op: op, Bucket: bucket, Key: key, Cause: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
		pe.Message = apiErr.ErrorMessage()
	}
	if status := statusCode(err); status != 0 {
		pe.StatusCode = status
	}
	if pe.Code == "" && buckets.IsTimeout(err) {
		pe.Code = buckets.CodeTimeout
	}
	return pe
}

func statusCode(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.ResponseError != nil && re.Response != nil && re.Response.Response != nil {
		return re.HTTPStatusCode()
	}
	return 0
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	switch errorCode(err) {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return true
	case "":
		return statusCode(err) == 404
	default:
		return false
	}
}

func streamError(op, bucket, key string, err error) error {
	return &buckets.ProviderError{
		Provider: ID,
		Op:       op,
		Bucket:   bucket,
		Key:      key,
		Code:     buckets.CodeStreamReadError,
		Message:  fmt.Sprintf("read object body: %v", err),
		Cause:    err,
	}
}
