// Package minio implements buckets.Provider on MinIO and other S3-compatible
// servers through minio-go.
//
// Usage:
//
//	p, err := minio.New(ctx, &buckets.ProviderOptions{
//		Endpoint:  "localhost:9000",
//		AccessKey: "minioadmin",
//		SecretKey: "minioadmin",
//	})
//	if err != nil { ... }
//	defer p.Close()
//
// Website hosting has no MinIO equivalent; those operations fail with an
// error matched by buckets.IsUnsupported.
package minio

import (
	"context"
	"io"
	"net/url"
	"strings"

	"cloudbuckets/internal/buckets"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/sse"
	"github.com/rs/zerolog"
)

const ID = "minio"

// objectAPI is the subset of *miniogo.Client used by the provider.
type objectAPI interface {
	ListBuckets(ctx context.Context) ([]miniogo.BucketInfo, error)
	MakeBucket(ctx context.Context, bucketName string, opts miniogo.MakeBucketOptions) error
	RemoveBucket(ctx context.Context, bucketName string) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	GetBucketPolicy(ctx context.Context, bucketName string) (string, error)
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	GetBucketVersioning(ctx context.Context, bucketName string) (miniogo.BucketVersioningConfiguration, error)
	SetBucketVersioning(ctx context.Context, bucketName string, config miniogo.BucketVersioningConfiguration) error
	GetBucketEncryption(ctx context.Context, bucketName string) (*sse.Configuration, error)
	SetBucketEncryption(ctx context.Context, bucketName string, config *sse.Configuration) error
	RemoveBucketEncryption(ctx context.Context, bucketName string) error
	ListObjects(ctx context.Context, bucketName string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts miniogo.RemoveObjectOptions) error
}

// objectReader is the part of *miniogo.Object read by GetFile.
type objectReader interface {
	io.ReadCloser
	Stat() (miniogo.ObjectInfo, error)
}

// Provider is safe for concurrent use by multiple goroutines.
type Provider struct {
	client objectAPI
	open   func(ctx context.Context, bucket, key string, opts miniogo.GetObjectOptions) (objectReader, error)
	region string
	log    zerolog.Logger
}

var _ buckets.Provider = (*Provider)(nil)

// New builds a client for opts.Endpoint. The endpoint may be a bare
// host:port or an http(s) URL; a URL scheme overrides opts.UseSSL. No request
// is sent until the first operation.
func New(_ context.Context, opts *buckets.ProviderOptions) (*Provider, error) {
	if opts == nil {
		opts = &buckets.ProviderOptions{}
	}
	endpoint, secure, err := parseEndpoint(opts.Endpoint, opts.UseSSL)
	if err != nil {
		return nil, err
	}

	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, opts.SessionToken)
	} else {
		creds = credentials.NewEnvMinio()
	}

	lookup := miniogo.BucketLookupAuto
	if opts.UsePathStyle {
		lookup = miniogo.BucketLookupPath
	}
	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       strings.TrimSpace(opts.Region),
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, &buckets.ProviderError{Provider: ID, Op: "New", Message: "create minio client", Cause: err}
	}

	p := newProvider(client, opts.EffectiveRegion(), opts.Logger)
	p.open = func(ctx context.Context, bucket, key string, o miniogo.GetObjectOptions) (objectReader, error) {
		return client.GetObject(ctx, bucket, key, o)
	}
	return p, nil
}

func newProvider(client objectAPI, region string, log zerolog.Logger) *Provider {
	return &Provider{
		client: client,
		region: region,
		log:    log.With().Str("provider", ID).Logger(),
	}
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", false, &buckets.ConfigError{Field: "endpoint", Message: "endpoint is required"}
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, &buckets.ConfigError{Field: "endpoint", Value: endpoint, Message: "endpoint must be host:port or a valid http(s) URL"}
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, &buckets.ConfigError{Field: "endpoint", Value: endpoint, Message: "endpoint must use http or https"}
	}
}

func (p *Provider) ID() string { return ID }

// Close is a no-op: the SDK client holds no resources that need releasing.
func (p *Provider) Close() error { return nil }

func (p *Provider) ListBuckets(ctx context.Context, _ *buckets.ListOptions) (*buckets.BucketList, error) {
	raw, err := p.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError("ListBuckets", "", "", err)
	}
	list := &buckets.BucketList{Buckets: make([]buckets.Bucket, len(raw))}
	for i, b := range raw {
		list.Buckets[i] = buckets.Bucket{Name: b.Name, CreationDate: b.CreationDate.UTC()}
	}
	return list, nil
}

// CreateBucket makes the bucket, then applies the canned public-read policy
// when requested. A failed policy request leaves the bucket in place.
func (p *Provider) CreateBucket(ctx context.Context, bucket string, opts *buckets.CreateBucketOptions) error {
	if opts == nil {
		opts = &buckets.CreateBucketOptions{}
	}
	policy, err := buckets.CannedPolicy(opts.Access, bucket)
	if err != nil {
		return err
	}
	region := strings.TrimSpace(opts.Location)
	if region == "" {
		region = p.region
	}

	if err := p.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: region}); err != nil {
		return mapError("MakeBucket", bucket, "", err)
	}
	p.log.Info().Str("bucket", bucket).Str("region", region).Msg("bucket created")

	if policy == "" {
		return nil
	}
	if err := p.client.SetBucketPolicy(ctx, bucket, policy); err != nil {
		p.log.Warn().Err(err).Str("bucket", bucket).Msg("bucket created without public-read policy")
		return mapError("SetBucketPolicy", bucket, "", err)
	}
	return nil
}

func (p *Provider) DeleteBucket(ctx context.Context, bucket string) error {
	return mapError("RemoveBucket", bucket, "", p.client.RemoveBucket(ctx, bucket))
}

func (p *Provider) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := p.client.BucketExists(ctx, bucket)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError("BucketExists", bucket, "", err)
	}
	return ok, nil
}

func (p *Provider) GetWebsiteConfiguration(_ context.Context, bucket string) (*buckets.BucketWebsiteConfiguration, error) {
	return nil, buckets.Unsupported(ID, "GetWebsiteConfiguration", bucket)
}

func (p *Provider) SetWebsiteConfiguration(_ context.Context, bucket string, cfg buckets.BucketWebsiteConfiguration) (*buckets.BucketWebsiteConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, buckets.Unsupported(ID, "SetWebsiteConfiguration", bucket)
}

func (p *Provider) GetWebsiteDomain(_ context.Context, bucket string) (string, error) {
	return "", buckets.Unsupported(ID, "GetWebsiteDomain", bucket)
}

func (p *Provider) GetPolicy(ctx context.Context, bucket string) (buckets.Policy, error) {
	raw, err := p.client.GetBucketPolicy(ctx, bucket)
	if err != nil {
		return nil, mapError("GetBucketPolicy", bucket, "", err)
	}
	policy, err := buckets.ParsePolicy(raw)
	if err != nil {
		return nil, &buckets.ProviderError{Provider: ID, Op: "GetBucketPolicy", Bucket: bucket, Code: buckets.CodeInvalidRequest, Message: err.Error(), Cause: err}
	}
	return policy, nil
}

func (p *Provider) SetPolicy(ctx context.Context, bucket string, policy buckets.Policy) error {
	raw, err := buckets.EncodePolicy(policy)
	if err != nil {
		return err
	}
	return mapError("SetBucketPolicy", bucket, "", p.client.SetBucketPolicy(ctx, bucket, raw))
}

// DeletePolicy sets an empty policy, which minio-go sends as a delete.
func (p *Provider) DeletePolicy(ctx context.Context, bucket string) error {
	return mapError("SetBucketPolicy", bucket, "", p.client.SetBucketPolicy(ctx, bucket, ""))
}

func (p *Provider) SetVersioning(ctx context.Context, bucket string, enabled bool) error {
	status := miniogo.Suspended
	if enabled {
		status = miniogo.Enabled
	}
	err := p.client.SetBucketVersioning(ctx, bucket, miniogo.BucketVersioningConfiguration{Status: status})
	return mapError("SetBucketVersioning", bucket, "", err)
}

func (p *Provider) GetVersioning(ctx context.Context, bucket string) (bool, error) {
	cfg, err := p.client.GetBucketVersioning(ctx, bucket)
	if err != nil {
		return false, mapError("GetBucketVersioning", bucket, "", err)
	}
	return cfg.Enabled(), nil
}

// SetEncryption configures SSE-S3 or SSE-KMS. MinIO has no bucket key, so
// the disableBucketKey option is accepted and ignored.
func (p *Provider) SetEncryption(ctx context.Context, bucket string, enabled bool, opts *buckets.SetEncryptionOptions) error {
	if !enabled {
		return mapError("RemoveBucketEncryption", bucket, "", p.client.RemoveBucketEncryption(ctx, bucket))
	}
	settings, err := buckets.ResolveEncryption(opts)
	if err != nil {
		return err
	}
	cfg := sse.NewConfigurationSSES3()
	if settings.Algorithm == buckets.AlgorithmKMS {
		cfg = sse.NewConfigurationSSEKMS(settings.KeyID)
	}
	return mapError("SetBucketEncryption", bucket, "", p.client.SetBucketEncryption(ctx, bucket, cfg))
}

func (p *Provider) GetEncryption(ctx context.Context, bucket string) (*buckets.EncryptionSettings, error) {
	cfg, err := p.client.GetBucketEncryption(ctx, bucket)
	if err != nil {
		if errorCode(err) == encryptionNotConfigured {
			return nil, nil
		}
		return nil, mapError("GetBucketEncryption", bucket, "", err)
	}
	if cfg == nil || len(cfg.Rules) == 0 {
		return nil, nil
	}
	rule := cfg.Rules[0].Apply
	return &buckets.EncryptionSettings{Algorithm: rule.SSEAlgorithm, KeyID: rule.KmsMasterKeyID}, nil
}

func (p *Provider) DeleteFile(ctx context.Context, bucket, filePath string) error {
	err := p.client.RemoveObject(ctx, bucket, filePath, miniogo.RemoveObjectOptions{})
	return mapError("RemoveObject", bucket, filePath, err)
}
