package minio

import (
	"context"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/streams"

	miniogo "github.com/minio/minio-go/v7"
)

const aclHeader = "x-amz-acl"

// ListFiles returns one page of objects. Next is the last key of the page
// and is passed back to the server as StartAfter.
func (p *Provider) ListFiles(ctx context.Context, bucket string, opts *buckets.ListFilesOptions) (*buckets.BucketFileList, error) {
	if opts == nil {
		opts = &buckets.ListFilesOptions{}
	}
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lo := miniogo.ListObjectsOptions{
		Prefix:     buckets.FolderPrefix(opts.Folder),
		Recursive:  opts.Recursive,
		StartAfter: opts.Offset,
	}
	if opts.Limit > 0 {
		lo.MaxKeys = opts.Limit
	}

	list := &buckets.BucketFileList{Files: []buckets.BucketFileMetadata{}}
	count := 0
	last := ""
	for obj := range p.client.ListObjects(listCtx, bucket, lo) {
		if obj.Err != nil {
			return nil, mapError("ListObjects", bucket, "", obj.Err)
		}
		if opts.Limit > 0 && count == opts.Limit {
			list.Next = resumeAfter(last)
			break
		}
		if !opts.Recursive && strings.HasSuffix(obj.Key, "/") {
			list.Folders = append(list.Folders, obj.Key)
		} else {
			list.Files = append(list.Files, fileMetadata(obj.Key, obj))
		}
		last = obj.Key
		count++
	}
	return list, nil
}

// resumeAfter turns the last key of a page into a StartAfter value. A
// folder is skipped as a whole so the next page does not repeat it.
func resumeAfter(key string) string {
	if strings.HasSuffix(key, "/") {
		return key + string(utf8.MaxRune)
	}
	return key
}

// PutFile uploads body with a known length so minio-go sends a single
// request.
func (p *Provider) PutFile(ctx context.Context, bucket, filePath string, body io.Reader, opts *buckets.PutFileOptions) error {
	if opts == nil {
		opts = &buckets.PutFileOptions{}
	}
	if opts.Access != "" {
		if err := opts.Access.Validate(); err != nil {
			return err
		}
	}

	up, err := streams.NewUpload(body)
	if err != nil {
		return streamError("PutObject", bucket, filePath, err)
	}
	r, err := up.Reader()
	if err != nil {
		return streamError("PutObject", bucket, filePath, err)
	}

	po := miniogo.PutObjectOptions{
		ContentType:             opts.ContentType,
		ContentEncoding:         opts.ContentEncoding,
		StorageClass:            opts.StorageClass,
		WebsiteRedirectLocation: opts.Redirect,
		Expires:                 opts.Expires,
	}
	if opts.Access != "" {
		po.UserMetadata = map[string]string{aclHeader: string(opts.Access.Normalize())}
	}

	if _, err := p.client.PutObject(ctx, bucket, filePath, r, up.Size, po); err != nil {
		return mapError("PutObject", bucket, filePath, err)
	}
	p.log.Debug().Str("bucket", bucket).Str("key", filePath).Int64("size", up.Size).Msg("object uploaded")
	return nil
}

func (p *Provider) GetFile(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (*buckets.BucketFile, error) {
	obj, info, err := p.getObject(ctx, bucket, filePath, opts)
	if err != nil {
		return nil, err
	}

	data, err := streams.ToBytes(obj)
	if err != nil {
		return nil, streamError("GetObject", bucket, filePath, err)
	}
	if err := streams.CheckLength(data, info.Size); err != nil {
		return nil, streamError("GetObject", bucket, filePath, err)
	}

	file := &buckets.BucketFile{BucketFileMetadata: fileMetadata(filePath, info), Data: data}
	file.Size = int64(len(data))
	return file, nil
}

// GetFileStream stats the object before returning so a missing key fails
// here rather than on the first read.
func (p *Provider) GetFileStream(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (io.ReadCloser, error) {
	obj, _, err := p.getObject(ctx, bucket, filePath, opts)
	if err != nil {
		return nil, err
	}
	rc, err := streams.ToReadCloser(obj)
	if err != nil {
		obj.Close()
		return nil, streamError("GetObject", bucket, filePath, err)
	}
	return rc, nil
}

func (p *Provider) getObject(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (objectReader, miniogo.ObjectInfo, error) {
	if p.open == nil {
		return nil, miniogo.ObjectInfo{}, mapError("GetObject", bucket, filePath, errNoOpener)
	}
	var o miniogo.GetObjectOptions
	if opts != nil {
		o.VersionID = opts.VersionID
	}

	obj, err := p.open(ctx, bucket, filePath, o)
	if err != nil {
		return nil, miniogo.ObjectInfo{}, mapError("GetObject", bucket, filePath, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, miniogo.ObjectInfo{}, mapError("GetObject", bucket, filePath, err)
	}
	return obj, info, nil
}

func (p *Provider) GetFileMetadata(ctx context.Context, bucket, filePath string) (*buckets.BucketFileMetadata, error) {
	info, err := p.client.StatObject(ctx, bucket, filePath, miniogo.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, mapError("StatObject", bucket, filePath, err)
	}
	meta := fileMetadata(filePath, info)
	return &meta, nil
}

// ListFileVersions walks the versions of filePath, or of every key below it
// when it ends with a slash. A page resumes after the version named by the
// token.
func (p *Provider) ListFileVersions(ctx context.Context, bucket, filePath string, opts *buckets.ListOptions) (*buckets.FileVersionList, error) {
	if opts == nil {
		opts = &buckets.ListOptions{}
	}
	var marker buckets.VersionMarker
	pending := opts.Offset != ""
	if pending {
		m, err := buckets.ParseVersionMarker(opts.Offset)
		if err != nil {
			return nil, err
		}
		marker = m
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	folder := filePath == "" || strings.HasSuffix(filePath, "/")
	list := &buckets.FileVersionList{}
	passed := false
	for obj := range p.client.ListObjects(listCtx, bucket, miniogo.ListObjectsOptions{
		Prefix:       filePath,
		Recursive:    true,
		WithVersions: true,
	}) {
		if obj.Err != nil {
			return nil, mapError("ListObjectVersions", bucket, filePath, obj.Err)
		}
		if !folder && obj.Key != filePath {
			continue
		}
		if pending {
			if obj.Key < marker.Key {
				continue
			}
			if obj.Key == marker.Key && !passed {
				passed = obj.VersionID == marker.VersionID
				continue
			}
			pending = false
		}
		if opts.Limit > 0 && len(list.Versions) == opts.Limit {
			prev := list.Versions[len(list.Versions)-1]
			list.Next = buckets.VersionMarker{Key: prev.Path, VersionID: prev.VersionID}.Token()
			break
		}
		list.Versions = append(list.Versions, buckets.FileVersion{
			Path:           obj.Key,
			VersionID:      obj.VersionID,
			ETag:           strings.Trim(obj.ETag, `"`),
			StorageClass:   obj.StorageClass,
			LastModified:   obj.LastModified.UTC(),
			Size:           obj.Size,
			IsLatest:       obj.IsLatest,
			IsDeleteMarker: obj.IsDeleteMarker,
		})
	}
	return list, nil
}

func fileMetadata(key string, info miniogo.ObjectInfo) buckets.BucketFileMetadata {
	meta := buckets.BucketFileMetadata{
		Path:         key,
		LastModified: info.LastModified.UTC(),
		StorageClass: info.StorageClass,
		ContentType:  info.ContentType,
		ETag:         strings.Trim(info.ETag, `"`),
		Size:         info.Size,
	}
	if !info.Expires.IsZero() {
		meta.Expires = info.Expires.UTC()
	}
	if info.Metadata != nil {
		meta.ContentEncoding = http.Header(info.Metadata).Get("Content-Encoding")
	}

	other := map[string]any{}
	if info.VersionID != "" {
		other["versionId"] = info.VersionID
	}
	if len(info.UserMetadata) > 0 {
		other["metadata"] = map[string]string(info.UserMetadata)
	}
	if len(other) > 0 {
		meta.Other = other
	}
	return meta
}
