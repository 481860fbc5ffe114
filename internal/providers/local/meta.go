package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cloudbuckets/internal/buckets"
)

const metaDirName = ".meta"

// bucketMeta is everything about a bucket that is not object content.
type bucketMeta struct {
	Region     string                              `json:"region"`
	CreatedAt  time.Time                           `json:"created_at"`
	Policy     buckets.Policy                      `json:"policy,omitempty"`
	Website    *buckets.BucketWebsiteConfiguration `json:"website,omitempty"`
	Versioning bool                                `json:"versioning,omitempty"`
	Encryption *buckets.EncryptionSettings         `json:"encryption,omitempty"`
	Objects    map[string]objectAttrs              `json:"objects,omitempty"`
}

// objectAttrs holds the headers given at upload time.
type objectAttrs struct {
	ContentType     string    `json:"content_type,omitempty"`
	ContentEncoding string    `json:"content_encoding,omitempty"`
	StorageClass    string    `json:"storage_class,omitempty"`
	Redirect        string    `json:"redirect,omitempty"`
	Access          string    `json:"access,omitempty"`
	Expires         time.Time `json:"expires,omitzero"`
	ETag            string    `json:"etag"`
}

func (p *Provider) metaPath(bucket string) string {
	return filepath.Join(p.root, metaDirName, bucket+".json")
}

func (p *Provider) readMeta(bucket string) (bucketMeta, error) {
	var meta bucketMeta
	data, err := os.ReadFile(p.metaPath(bucket))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, nil
		}
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode bucket metadata: %w", err)
	}
	return meta, nil
}

// writeMeta replaces the metadata file atomically.
func (p *Provider) writeMeta(bucket string, meta bucketMeta) error {
	path := p.metaPath(bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bucket metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// updateMeta runs fn on the bucket metadata under the provider lock and
// persists the result. fn returning an error leaves the file untouched.
func (p *Provider) updateMeta(op, bucket string, fn func(*bucketMeta) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireBucket(op, bucket); err != nil {
		return err
	}
	meta, err := p.readMeta(bucket)
	if err != nil {
		return p.ioError(op, bucket, "", err)
	}
	if err := fn(&meta); err != nil {
		return err
	}
	if err := p.writeMeta(bucket, meta); err != nil {
		return p.ioError(op, bucket, "", err)
	}
	return nil
}

// view runs fn on the bucket metadata under the provider read lock. Content
// files are only replaced under the write lock, so fn sees them matching
// the metadata.
func (p *Provider) view(op, bucket string, fn func(bucketMeta) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.requireBucket(op, bucket); err != nil {
		return err
	}
	meta, err := p.readMeta(bucket)
	if err != nil {
		return p.ioError(op, bucket, "", err)
	}
	return fn(meta)
}

func (p *Provider) viewMeta(op, bucket string) (bucketMeta, error) {
	var out bucketMeta
	err := p.view(op, bucket, func(m bucketMeta) error {
		out = m
		return nil
	})
	return out, err
}

// keys returns the stored object keys in lexical order.
func (m bucketMeta) keys() []string {
	keys := make([]string, 0, len(m.Objects))
	for k := range m.Objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
