// Package local implements buckets.Provider on a directory tree. Each bucket
// is a directory below the root holding one content file per object. The
// object keys themselves, with upload headers and bucket settings, live in
// <root>/.meta/<bucket>.json, so any key an object store accepts is valid
// here, including "a" next to "a/b" and folder markers ending in "/".
package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cloudbuckets/internal/buckets"

	"github.com/rs/zerolog"
)

const ID = "local"

// Provider is safe for concurrent use. Metadata updates are serialised by a
// single lock; object files are written through rename.
type Provider struct {
	root   string
	region string
	log    zerolog.Logger
	mu     sync.RWMutex
}

var _ buckets.Provider = (*Provider)(nil)

// New opens or creates the storage directory opts.Root.
func New(_ context.Context, opts *buckets.ProviderOptions) (*Provider, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, &buckets.ConfigError{Field: "root", Message: "storage directory is required"}
	}
	root := filepath.Clean(strings.TrimSpace(opts.Root))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Provider{
		root:   root,
		region: opts.EffectiveRegion(),
		log:    opts.Logger.With().Str("provider", ID).Logger(),
	}, nil
}

func (p *Provider) ID() string { return ID }

func (p *Provider) Close() error { return nil }

func (p *Provider) bucketPath(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || bucket == metaDirName || strings.ContainsAny(bucket, `/\`) {
		return "", &buckets.ConfigError{Field: "bucket", Value: bucket, Message: "invalid bucket name"}
	}
	return filepath.Join(p.root, bucket), nil
}

// requireBucket fails with NoSuchBucket when the bucket directory is absent.
func (p *Provider) requireBucket(op, bucket string) error {
	dir, err := p.bucketPath(bucket)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p.notFound(op, bucket, "", "NoSuchBucket")
		}
		return p.ioError(op, bucket, "", err)
	}
	if !info.IsDir() {
		return p.notFound(op, bucket, "", "NoSuchBucket")
	}
	return nil
}

func (p *Provider) ListBuckets(_ context.Context, _ *buckets.ListOptions) (*buckets.BucketList, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, p.ioError("ListBuckets", "", "", err)
	}
	list := &buckets.BucketList{Buckets: []buckets.Bucket{}}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == metaDirName {
			continue
		}
		meta, err := p.readMeta(e.Name())
		if err != nil {
			return nil, p.ioError("ListBuckets", e.Name(), "", err)
		}
		created := meta.CreatedAt
		if created.IsZero() {
			if info, err := e.Info(); err == nil {
				created = info.ModTime()
			}
		}
		list.Buckets = append(list.Buckets, buckets.Bucket{Name: e.Name(), CreationDate: created.UTC()})
	}
	sort.Slice(list.Buckets, func(i, j int) bool { return list.Buckets[i].Name < list.Buckets[j].Name })
	return list, nil
}

// CreateBucket records the canned public-read policy in the bucket metadata
// so GetPolicy reports it the way a remote service would.
func (p *Provider) CreateBucket(_ context.Context, bucket string, opts *buckets.CreateBucketOptions) error {
	if opts == nil {
		opts = &buckets.CreateBucketOptions{}
	}
	canned, err := buckets.CannedPolicy(opts.Access, bucket)
	if err != nil {
		return err
	}
	policy, err := buckets.ParsePolicy(canned)
	if err != nil {
		return err
	}
	dir, err := p.bucketPath(bucket)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return &buckets.ProviderError{Provider: ID, Op: "CreateBucket", Bucket: bucket, Code: "BucketAlreadyOwnedByYou", Message: "bucket already exists", StatusCode: http.StatusConflict}
		}
		return p.ioError("CreateBucket", bucket, "", err)
	}
	region := strings.TrimSpace(opts.Location)
	if region == "" {
		region = p.region
	}
	meta := bucketMeta{Region: region, CreatedAt: time.Now().UTC(), Policy: policy}
	if err := p.writeMeta(bucket, meta); err != nil {
		return p.ioError("CreateBucket", bucket, "", err)
	}
	p.log.Info().Str("bucket", bucket).Str("region", region).Msg("bucket created")
	return nil
}

// DeleteBucket removes an empty bucket and its metadata.
func (p *Provider) DeleteBucket(_ context.Context, bucket string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireBucket("DeleteBucket", bucket); err != nil {
		return err
	}
	meta, err := p.readMeta(bucket)
	if err != nil {
		return p.ioError("DeleteBucket", bucket, "", err)
	}
	if len(meta.Objects) > 0 {
		return &buckets.ProviderError{Provider: ID, Op: "DeleteBucket", Bucket: bucket, Code: "BucketNotEmpty", Message: "bucket is not empty", StatusCode: http.StatusConflict}
	}
	dir, _ := p.bucketPath(bucket)
	if err := os.RemoveAll(dir); err != nil {
		return p.ioError("DeleteBucket", bucket, "", err)
	}
	if err := os.Remove(p.metaPath(bucket)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return p.ioError("DeleteBucket", bucket, "", err)
	}
	return nil
}

func (p *Provider) BucketExists(_ context.Context, bucket string) (bool, error) {
	err := p.requireBucket("BucketExists", bucket)
	switch {
	case err == nil:
		return true, nil
	case buckets.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (p *Provider) GetWebsiteConfiguration(_ context.Context, bucket string) (*buckets.BucketWebsiteConfiguration, error) {
	meta, err := p.viewMeta("GetBucketWebsite", bucket)
	if err != nil {
		return nil, err
	}
	if meta.Website == nil {
		return nil, p.notFound("GetBucketWebsite", bucket, "", "NoSuchWebsiteConfiguration")
	}
	cfg := *meta.Website
	return &cfg, nil
}

func (p *Provider) SetWebsiteConfiguration(_ context.Context, bucket string, cfg buckets.BucketWebsiteConfiguration) (*buckets.BucketWebsiteConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	err := p.updateMeta("PutBucketWebsite", bucket, func(m *bucketMeta) error {
		stored := cfg
		m.Website = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetWebsiteDomain is unsupported: files on disk have no public endpoint.
func (p *Provider) GetWebsiteDomain(_ context.Context, bucket string) (string, error) {
	return "", buckets.Unsupported(ID, "GetWebsiteDomain", bucket)
}

func (p *Provider) GetPolicy(_ context.Context, bucket string) (buckets.Policy, error) {
	meta, err := p.viewMeta("GetBucketPolicy", bucket)
	if err != nil {
		return nil, err
	}
	return meta.Policy, nil
}

func (p *Provider) SetPolicy(_ context.Context, bucket string, policy buckets.Policy) error {
	raw, err := buckets.EncodePolicy(policy)
	if err != nil {
		return err
	}
	stored, err := buckets.ParsePolicy(raw)
	if err != nil {
		return err
	}
	return p.updateMeta("PutBucketPolicy", bucket, func(m *bucketMeta) error {
		m.Policy = stored
		return nil
	})
}

func (p *Provider) DeletePolicy(_ context.Context, bucket string) error {
	return p.updateMeta("DeleteBucketPolicy", bucket, func(m *bucketMeta) error {
		m.Policy = nil
		return nil
	})
}

// SetVersioning records the flag only; files keep a single version.
func (p *Provider) SetVersioning(_ context.Context, bucket string, enabled bool) error {
	return p.updateMeta("PutBucketVersioning", bucket, func(m *bucketMeta) error {
		m.Versioning = enabled
		return nil
	})
}

func (p *Provider) GetVersioning(_ context.Context, bucket string) (bool, error) {
	meta, err := p.viewMeta("GetBucketVersioning", bucket)
	if err != nil {
		return false, err
	}
	return meta.Versioning, nil
}

func (p *Provider) SetEncryption(_ context.Context, bucket string, enabled bool, opts *buckets.SetEncryptionOptions) error {
	if !enabled {
		return p.updateMeta("DeleteBucketEncryption", bucket, func(m *bucketMeta) error {
			m.Encryption = nil
			return nil
		})
	}
	settings, err := buckets.ResolveEncryption(opts)
	if err != nil {
		return err
	}
	return p.updateMeta("PutBucketEncryption", bucket, func(m *bucketMeta) error {
		m.Encryption = &settings
		return nil
	})
}

func (p *Provider) GetEncryption(_ context.Context, bucket string) (*buckets.EncryptionSettings, error) {
	meta, err := p.viewMeta("GetBucketEncryption", bucket)
	if err != nil {
		return nil, err
	}
	return meta.Encryption, nil
}

func (p *Provider) notFound(op, bucket, key, code string) *buckets.ProviderError {
	return &buckets.ProviderError{
		Provider:   ID,
		Op:         op,
		Bucket:     bucket,
		Key:        key,
		Code:       code,
		StatusCode: http.StatusNotFound,
	}
}

func (p *Provider) ioError(op, bucket, key string, err error) error {
	return &buckets.ProviderError{Provider: ID, Op: op, Bucket: bucket, Key: key, Cause: err}
}
