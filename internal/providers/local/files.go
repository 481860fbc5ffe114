package local

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/streams"
)

// nullVersion is the version id reported for the single stored version.
const nullVersion = "null"

// maxKeyLength is the longest key S3 accepts, in bytes.
const maxKeyLength = 1024

func validKey(key string) error {
	switch {
	case key == "":
		return &buckets.ConfigError{Field: "key", Message: "file path is required"}
	case len(key) > maxKeyLength:
		return &buckets.ConfigError{Field: "key", Value: key[:32] + "...", Message: "file path is longer than 1024 bytes"}
	case !utf8.ValidString(key):
		return &buckets.ConfigError{Field: "key", Value: key, Message: "file path is not valid UTF-8"}
	}
	return nil
}

// blobPath returns the content file of key. Files are named by the sha256 of
// the key, which keeps every key inside the bucket directory and lets keys
// that are prefixes of each other coexist.
func (p *Provider) blobPath(bucket, key string) (string, error) {
	dir, err := p.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(dir, hex.EncodeToString(sum[:])), nil
}

type listEntry struct {
	name   string
	folder bool
}

// ListFiles lists keys in lexical order. Next is the name of the last entry
// on the page; a later page starts after it.
func (p *Provider) ListFiles(_ context.Context, bucket string, opts *buckets.ListFilesOptions) (*buckets.BucketFileList, error) {
	if opts == nil {
		opts = &buckets.ListFilesOptions{}
	}
	list := &buckets.BucketFileList{Files: []buckets.BucketFileMetadata{}}
	err := p.view("ListObjects", bucket, func(meta bucketMeta) error {
		prefix := buckets.FolderPrefix(opts.Folder)
		var entries []listEntry
		for _, key := range meta.keys() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			entry := listEntry{name: key}
			if !opts.Recursive {
				if i := strings.Index(key[len(prefix):], "/"); i >= 0 {
					entry = listEntry{name: key[:len(prefix)+i+1], folder: true}
					if n := len(entries); n > 0 && entries[n-1].name == entry.name && entries[n-1].folder {
						continue
					}
				}
			}
			if opts.Offset != "" && entry.name <= opts.Offset {
				continue
			}
			entries = append(entries, entry)
		}

		if opts.Limit > 0 && len(entries) > opts.Limit {
			entries = entries[:opts.Limit]
			list.Next = entries[len(entries)-1].name
		}
		for _, e := range entries {
			if e.folder {
				list.Folders = append(list.Folders, e.name)
				continue
			}
			md, err := p.stat(bucket, e.name, meta)
			if err != nil {
				return p.ioError("ListObjects", bucket, e.name, err)
			}
			list.Files = append(list.Files, md)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// PutFile streams body into a temporary file and renames it into place.
func (p *Provider) PutFile(_ context.Context, bucket, key string, body io.Reader, opts *buckets.PutFileOptions) error {
	if opts == nil {
		opts = &buckets.PutFileOptions{}
	}
	if opts.Access != "" {
		if err := opts.Access.Validate(); err != nil {
			return err
		}
	}
	path, err := p.blobPath(bucket, key)
	if err != nil {
		return err
	}
	if err := p.requireBucket("PutObject", bucket); err != nil {
		return err
	}

	tmpDir := filepath.Join(p.root, metaDirName)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return p.ioError("PutObject", bucket, key, err)
	}
	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return p.ioError("PutObject", bucket, key, err)
	}
	defer os.Remove(tmp.Name())

	sum := md5.New()
	size := int64(0)
	if body != nil {
		size, err = io.Copy(io.MultiWriter(tmp, sum), body)
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		return p.ioError("PutObject", bucket, key, cerr)
	}
	if err != nil {
		return streamError("PutObject", bucket, key, err)
	}

	attrs := objectAttrs{
		ContentType:     opts.ContentType,
		ContentEncoding: opts.ContentEncoding,
		StorageClass:    opts.StorageClass,
		Redirect:        opts.Redirect,
		Access:          string(opts.Access),
		ETag:            hex.EncodeToString(sum.Sum(nil)),
	}
	if !opts.Expires.IsZero() {
		attrs.Expires = opts.Expires.UTC()
	}

	err = p.updateMeta("PutObject", bucket, func(m *bucketMeta) error {
		if err := os.Rename(tmp.Name(), path); err != nil {
			return p.ioError("PutObject", bucket, key, err)
		}
		if m.Objects == nil {
			m.Objects = map[string]objectAttrs{}
		}
		m.Objects[key] = attrs
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Debug().Str("bucket", bucket).Str("key", key).Int64("size", size).Msg("object uploaded")
	return nil
}

func (p *Provider) GetFile(_ context.Context, bucket, key string, opts *buckets.GetFileOptions) (*buckets.BucketFile, error) {
	f, md, err := p.open(bucket, key, opts)
	if err != nil {
		return nil, err
	}
	data, err := streams.ToBytes(f)
	if err != nil {
		return nil, streamError("GetObject", bucket, key, err)
	}
	if err := streams.CheckLength(data, md.Size); err != nil {
		return nil, streamError("GetObject", bucket, key, err)
	}
	return &buckets.BucketFile{BucketFileMetadata: md, Data: data}, nil
}

func (p *Provider) GetFileStream(_ context.Context, bucket, key string, opts *buckets.GetFileOptions) (io.ReadCloser, error) {
	f, _, err := p.open(bucket, key, opts)
	if err != nil {
		return nil, err
	}
	rc, err := streams.ToReadCloser(f)
	if err != nil {
		f.Close()
		return nil, streamError("GetObject", bucket, key, err)
	}
	return rc, nil
}

// open returns the content file of key with metadata describing exactly
// that file. A later upload replaces the path, not the open file.
func (p *Provider) open(bucket, key string, opts *buckets.GetFileOptions) (*os.File, buckets.BucketFileMetadata, error) {
	path, err := p.blobPath(bucket, key)
	if err != nil {
		return nil, buckets.BucketFileMetadata{}, err
	}
	var (
		f  *os.File
		md buckets.BucketFileMetadata
	)
	err = p.view("GetObject", bucket, func(meta bucketMeta) error {
		if opts != nil && opts.VersionID != "" && opts.VersionID != nullVersion {
			return p.notFound("GetObject", bucket, key, "NoSuchVersion")
		}
		attrs, ok := meta.Objects[key]
		if !ok {
			return p.notFound("GetObject", bucket, key, "NoSuchKey")
		}
		file, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return p.notFound("GetObject", bucket, key, "NoSuchKey")
			}
			return p.ioError("GetObject", bucket, key, err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return p.ioError("GetObject", bucket, key, err)
		}
		f, md = file, describe(key, attrs, info, meta.Versioning)
		return nil
	})
	if err != nil {
		return nil, buckets.BucketFileMetadata{}, err
	}
	return f, md, nil
}

// DeleteFile succeeds when the file is already gone.
func (p *Provider) DeleteFile(_ context.Context, bucket, key string) error {
	path, err := p.blobPath(bucket, key)
	if err != nil {
		return err
	}
	return p.updateMeta("DeleteObject", bucket, func(m *bucketMeta) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return p.ioError("DeleteObject", bucket, key, err)
		}
		delete(m.Objects, key)
		return nil
	})
}

func (p *Provider) GetFileMetadata(_ context.Context, bucket, key string) (*buckets.BucketFileMetadata, error) {
	if _, err := p.blobPath(bucket, key); err != nil {
		return nil, err
	}
	var out *buckets.BucketFileMetadata
	err := p.view("HeadObject", bucket, func(meta bucketMeta) error {
		md, err := p.stat(bucket, key, meta)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return p.ioError("HeadObject", bucket, key, err)
		}
		out = &md
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListFileVersions reports the stored file as its only version. A folder
// path lists every key below it.
func (p *Provider) ListFileVersions(_ context.Context, bucket, filePath string, opts *buckets.ListOptions) (*buckets.FileVersionList, error) {
	if opts == nil {
		opts = &buckets.ListOptions{}
	}
	var marker buckets.VersionMarker
	if opts.Offset != "" {
		m, err := buckets.ParseVersionMarker(opts.Offset)
		if err != nil {
			return nil, err
		}
		marker = m
	}

	folder := filePath == "" || strings.HasSuffix(filePath, "/")
	list := &buckets.FileVersionList{}
	err := p.view("ListObjectVersions", bucket, func(meta bucketMeta) error {
		for _, key := range meta.keys() {
			if folder && !strings.HasPrefix(key, filePath) || !folder && key != filePath {
				continue
			}
			if marker.Key != "" && key <= marker.Key {
				continue
			}
			if opts.Limit > 0 && len(list.Versions) == opts.Limit {
				prev := list.Versions[len(list.Versions)-1]
				list.Next = buckets.VersionMarker{Key: prev.Path, VersionID: prev.VersionID}.Token()
				break
			}
			md, err := p.stat(bucket, key, meta)
			if err != nil {
				return p.ioError("ListObjectVersions", bucket, key, err)
			}
			list.Versions = append(list.Versions, buckets.FileVersion{
				Path:         key,
				VersionID:    nullVersion,
				ETag:         md.ETag,
				StorageClass: md.StorageClass,
				LastModified: md.LastModified,
				Size:         md.Size,
				IsLatest:     true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// stat describes key from its recorded headers and content file. A key
// missing from the index reads as fs.ErrNotExist.
func (p *Provider) stat(bucket, key string, meta bucketMeta) (buckets.BucketFileMetadata, error) {
	attrs, ok := meta.Objects[key]
	if !ok {
		return buckets.BucketFileMetadata{}, fs.ErrNotExist
	}
	path, err := p.blobPath(bucket, key)
	if err != nil {
		return buckets.BucketFileMetadata{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return buckets.BucketFileMetadata{}, err
	}
	return describe(key, attrs, info, meta.Versioning), nil
}

func describe(key string, attrs objectAttrs, info fs.FileInfo, versioning bool) buckets.BucketFileMetadata {
	md := buckets.BucketFileMetadata{
		Path:            key,
		LastModified:    info.ModTime().UTC(),
		StorageClass:    attrs.StorageClass,
		Expires:         attrs.Expires,
		ContentType:     attrs.ContentType,
		ContentEncoding: attrs.ContentEncoding,
		ETag:            attrs.ETag,
		Size:            info.Size(),
	}
	if md.StorageClass == "" {
		md.StorageClass = "STANDARD"
	}
	if md.ContentType == "" {
		md.ContentType = "application/octet-stream"
	}
	other := map[string]any{}
	if versioning {
		other["versionId"] = nullVersion
	}
	if attrs.Redirect != "" {
		other["websiteRedirectLocation"] = attrs.Redirect
	}
	if attrs.Access != "" {
		other["acl"] = attrs.Access
	}
	if len(other) > 0 {
		md.Other = other
	}
	return md
}

func streamError(op, bucket, key string, err error) error {
	return &buckets.ProviderError{
		Provider: ID,
		Op:       op,
		Bucket:   bucket,
		Key:      key,
		Code:     buckets.CodeStreamReadError,
		Message:  "read object body: " + err.Error(),
		Cause:    err,
	}
}
