// Package buckets defines the provider-agnostic bucket and file contract.
//
// Callers obtain a Provider from the providers package and depend only on
// this package. Every operation may fail with a *ProviderError; invalid
// caller input fails with a *ConfigError before any request is sent.
package buckets

import (
	"bytes"
	"context"
	"io"
)

type Provider interface {
	// ID returns the registry identifier of the provider, e.g. "aws".
	ID() string

	// ListBuckets returns the buckets visible to the caller. Providers whose
	// service does not paginate bucket listings ignore opts.Offset and
	// opts.Limit and always return a single page.
	ListBuckets(ctx context.Context, opts *ListOptions) (*BucketList, error)
	CreateBucket(ctx context.Context, bucket string, opts *CreateBucketOptions) error
	DeleteBucket(ctx context.Context, bucket string) error
	// BucketExists returns false, not an error, when the bucket is missing.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	GetWebsiteConfiguration(ctx context.Context, bucket string) (*BucketWebsiteConfiguration, error)
	SetWebsiteConfiguration(ctx context.Context, bucket string, cfg BucketWebsiteConfiguration) (*BucketWebsiteConfiguration, error)
	GetWebsiteDomain(ctx context.Context, bucket string) (string, error)

	// GetPolicy returns nil when the service reports an empty policy. A
	// missing policy is an error on services that signal it as one.
	GetPolicy(ctx context.Context, bucket string) (Policy, error)
	SetPolicy(ctx context.Context, bucket string, policy Policy) error
	DeletePolicy(ctx context.Context, bucket string) error

	SetVersioning(ctx context.Context, bucket string, enabled bool) error
	GetVersioning(ctx context.Context, bucket string) (bool, error)
	ListFileVersions(ctx context.Context, bucket, filePath string, opts *ListOptions) (*FileVersionList, error)

	// SetEncryption enables default encryption when enabled is true and
	// removes any default encryption configuration otherwise.
	SetEncryption(ctx context.Context, bucket string, enabled bool, opts *SetEncryptionOptions) error
	// GetEncryption returns nil when no default encryption is configured.
	GetEncryption(ctx context.Context, bucket string) (*EncryptionSettings, error)

	ListFiles(ctx context.Context, bucket string, opts *ListFilesOptions) (*BucketFileList, error)
	PutFile(ctx context.Context, bucket, filePath string, body io.Reader, opts *PutFileOptions) error
	GetFile(ctx context.Context, bucket, filePath string, opts *GetFileOptions) (*BucketFile, error)
	// GetFileStream returns the object content. The caller must close it.
	GetFileStream(ctx context.Context, bucket, filePath string, opts *GetFileOptions) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, bucket, filePath string) error
	// GetFileMetadata returns nil, not an error, when the file is missing.
	GetFileMetadata(ctx context.Context, bucket, filePath string) (*BucketFileMetadata, error)

	Close() error
}

// Factory constructs a Provider from construction options.
type Factory func(ctx context.Context, opts *ProviderOptions) (Provider, error)

// PutBytes uploads an in-memory payload.
func PutBytes(ctx context.Context, p Provider, bucket, filePath string, data []byte, opts *PutFileOptions) error {
	return p.PutFile(ctx, bucket, filePath, bytes.NewReader(data), opts)
}
