package buckets

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Access string

const (
	AccessPrivate    Access = "private"
	AccessPublicRead Access = "public-read"
)

// Normalize returns the effective access level. The zero value is private.
func (a Access) Normalize() Access {
	if strings.TrimSpace(string(a)) == "" {
		return AccessPrivate
	}
	return Access(strings.TrimSpace(string(a)))
}

func (a Access) Validate() error {
	switch a.Normalize() {
	case AccessPrivate, AccessPublicRead:
		return nil
	default:
		return &ConfigError{Field: "access", Value: string(a), Message: "access must be private or public-read"}
	}
}

const (
	AlgorithmAES256 = "AES256"
	AlgorithmKMS    = "aws:kms"
)

// ProviderOptionDisableBucketKey turns off the KMS bucket key when set to
// true in SetEncryptionOptions.ProviderOptions.
const ProviderOptionDisableBucketKey = "disableBucketKey"

// Options carries provider-specific settings that have no generic field.
type Options struct {
	ProviderOptions map[string]any
}

// Bool reads a boolean passthrough option. Missing keys and non-boolean
// values read as false.
func (o Options) Bool(key string) bool {
	if o.ProviderOptions == nil {
		return false
	}
	switch v := o.ProviderOptions[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// ListOptions drives paginated listings. Offset is the continuation token
// returned as Next by a previous page. Limit <= 0 means no limit.
type ListOptions struct {
	Options
	Offset string
	Limit  int
}

type ListFilesOptions struct {
	ListOptions
	Recursive bool
	Folder    string
}

type CreateBucketOptions struct {
	Options
	Location string
	Access   Access
}

type PutFileOptions struct {
	Options
	ContentType     string
	ContentEncoding string
	Redirect        string
	Access          Access
	StorageClass    string
	Expires         time.Time
}

type SetEncryptionOptions struct {
	Options
	Algorithm string
	KeyID     string
}

type GetFileOptions struct {
	Options
	VersionID string
}

const DefaultRegion = "us-east-1"

// ProviderOptions configures provider construction.
type ProviderOptions struct {
	Options
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UsePathStyle bool
	UseSSL       bool
	// Root is the storage directory of the local provider.
	Root   string
	Logger zerolog.Logger
}

func (o *ProviderOptions) EffectiveRegion() string {
	if o == nil || strings.TrimSpace(o.Region) == "" {
		return DefaultRegion
	}
	return strings.TrimSpace(o.Region)
}

// FolderPrefix turns a folder option into a key prefix: no leading slash
// and exactly one trailing slash. An empty folder yields an empty prefix.
func FolderPrefix(folder string) string {
	prefix := strings.TrimLeft(folder, "/")
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
