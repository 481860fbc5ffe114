package aws

import (
	"context"
	"io"
	"math"
	"strings"
	"time"

	"cloudbuckets/internal/buckets"
	"cloudbuckets/internal/streams"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ListFiles returns one page of objects. Non-recursive listings group keys
// below the first "/" after the folder prefix into Folders.
func (p *Provider) ListFiles(ctx context.Context, bucket string, opts *buckets.ListFilesOptions) (*buckets.BucketFileList, error) {
	if opts == nil {
		opts = &buckets.ListFilesOptions{}
	}
	input := &s3.ListObjectsV2Input{Bucket: awssdk.String(bucket)}
	if opts.Offset != "" {
		input.ContinuationToken = awssdk.String(opts.Offset)
	}
	if opts.Limit > 0 {
		input.MaxKeys = awssdk.Int32(clampLimit(opts.Limit))
	}
	if !opts.Recursive {
		input.Delimiter = awssdk.String("/")
	}
	if prefix := buckets.FolderPrefix(opts.Folder); prefix != "" {
		input.Prefix = awssdk.String(prefix)
	}

	out, err := invoke(ctx, p, func(c s3API) (*s3.ListObjectsV2Output, error) {
		return c.ListObjectsV2(ctx, input)
	})
	if err != nil {
		return nil, p.fail("ListObjectsV2", bucket, "", err)
	}

	list := &buckets.BucketFileList{
		Files: make([]buckets.BucketFileMetadata, 0, len(out.Contents)),
		Next:  awssdk.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		list.Files = append(list.Files, buckets.BucketFileMetadata{
			Path:         awssdk.ToString(obj.Key),
			LastModified: awssdk.ToTime(obj.LastModified).UTC(),
			StorageClass: string(obj.StorageClass),
			ETag:         trimETag(awssdk.ToString(obj.ETag)),
			Size:         awssdk.ToInt64(obj.Size),
		})
	}
	for _, cp := range out.CommonPrefixes {
		list.Folders = append(list.Folders, awssdk.ToString(cp.Prefix))
	}
	return list, nil
}

// PutFile uploads body in a single request. Seekable bodies are sent as-is;
// anything else is buffered first so the length is known.
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

	input := &s3.PutObjectInput{
		Bucket:        awssdk.String(bucket),
		Key:           awssdk.String(filePath),
		ContentLength: awssdk.Int64(up.Size),
	}
	if opts.Access != "" {
		input.ACL = s3types.ObjectCannedACL(opts.Access.Normalize())
	}
	if opts.ContentType != "" {
		input.ContentType = awssdk.String(opts.ContentType)
	}
	if opts.ContentEncoding != "" {
		input.ContentEncoding = awssdk.String(opts.ContentEncoding)
	}
	if opts.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(opts.StorageClass)
	}
	if opts.Redirect != "" {
		input.WebsiteRedirectLocation = awssdk.String(opts.Redirect)
	}
	if !opts.Expires.IsZero() {
		input.Expires = awssdk.Time(opts.Expires)
	}

	_, err = invoke(ctx, p, func(c s3API) (*s3.PutObjectOutput, error) {
		r, err := up.Reader()
		if err != nil {
			return nil, err
		}
		input.Body = r
		return c.PutObject(ctx, input)
	})
	if err != nil {
		return p.fail("PutObject", bucket, filePath, err)
	}
	p.log.Debug().Str("bucket", bucket).Str("key", filePath).Int64("size", up.Size).Msg("object uploaded")
	return nil
}

// GetFile downloads the whole object. A body shorter or longer than the
// announced length is a stream read error.
func (p *Provider) GetFile(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (*buckets.BucketFile, error) {
	out, err := p.getObject(ctx, bucket, filePath, opts)
	if err != nil {
		return nil, err
	}

	data, err := streams.ToBytes(out.Body)
	if err != nil {
		return nil, streamError("GetObject", bucket, filePath, err)
	}
	if out.ContentLength != nil {
		if err := streams.CheckLength(data, *out.ContentLength); err != nil {
			return nil, streamError("GetObject", bucket, filePath, err)
		}
	}

	file := &buckets.BucketFile{
		BucketFileMetadata: objectMetadata(filePath, objectHeaders{
			ContentType:     out.ContentType,
			ContentEncoding: out.ContentEncoding,
			ETag:            out.ETag,
			LastModified:    out.LastModified,
			Expires:         out.Expires,
			StorageClass:    out.StorageClass,
			VersionID:       out.VersionId,
			Metadata:        out.Metadata,
		}),
		Data: data,
	}
	file.Size = int64(len(data))
	return file, nil
}

func (p *Provider) GetFileStream(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (io.ReadCloser, error) {
	out, err := p.getObject(ctx, bucket, filePath, opts)
	if err != nil {
		return nil, err
	}
	rc, err := streams.ToReadCloser(out.Body)
	if err != nil {
		return nil, streamError("GetObject", bucket, filePath, err)
	}
	return rc, nil
}

func (p *Provider) getObject(ctx context.Context, bucket, filePath string, opts *buckets.GetFileOptions) (*s3.GetObjectOutput, error) {
	input := &s3.GetObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(filePath),
	}
	if opts != nil && opts.VersionID != "" {
		input.VersionId = awssdk.String(opts.VersionID)
	}
	out, err := invoke(ctx, p, func(c s3API) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, input)
	})
	if err != nil {
		return nil, p.fail("GetObject", bucket, filePath, err)
	}
	return out, nil
}

func (p *Provider) DeleteFile(ctx context.Context, bucket, filePath string) error {
	_, err := invoke(ctx, p, func(c s3API) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: awssdk.String(bucket),
			Key:    awssdk.String(filePath),
		})
	})
	return p.fail("DeleteObject", bucket, filePath, err)
}

func (p *Provider) GetFileMetadata(ctx context.Context, bucket, filePath string) (*buckets.BucketFileMetadata, error) {
	out, err := invoke(ctx, p, func(c s3API) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: awssdk.String(bucket),
			Key:    awssdk.String(filePath),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, p.fail("HeadObject", bucket, filePath, err)
	}

	meta := objectMetadata(filePath, objectHeaders{
		ContentType:     out.ContentType,
		ContentEncoding: out.ContentEncoding,
		ETag:            out.ETag,
		LastModified:    out.LastModified,
		Expires:         out.Expires,
		StorageClass:    out.StorageClass,
		VersionID:       out.VersionId,
		Metadata:        out.Metadata,
	})
	meta.Size = awssdk.ToInt64(out.ContentLength)
	return &meta, nil
}

// objectHeaders holds the fields shared by GetObject and HeadObject output.
type objectHeaders struct {
	ContentType     *string
	ContentEncoding *string
	ETag            *string
	LastModified    *time.Time
	Expires         *time.Time
	StorageClass    s3types.StorageClass
	VersionID       *string
	Metadata        map[string]string
}

func objectMetadata(filePath string, h objectHeaders) buckets.BucketFileMetadata {
	meta := buckets.BucketFileMetadata{
		Path:            filePath,
		ContentType:     awssdk.ToString(h.ContentType),
		ContentEncoding: awssdk.ToString(h.ContentEncoding),
		ETag:            trimETag(awssdk.ToString(h.ETag)),
		LastModified:    awssdk.ToTime(h.LastModified).UTC(),
		StorageClass:    string(h.StorageClass),
	}
	if h.Expires != nil {
		meta.Expires = h.Expires.UTC()
	}
	if meta.StorageClass == "" {
		meta.StorageClass = string(s3types.StorageClassStandard)
	}

	other := map[string]any{}
	if v := awssdk.ToString(h.VersionID); v != "" {
		other["versionId"] = v
	}
	if len(h.Metadata) > 0 {
		other["metadata"] = h.Metadata
	}
	if len(other) > 0 {
		meta.Other = other
	}
	return meta
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func clampLimit(limit int) int32 {
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit)
}
