package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"cloudbuckets/internal/buckets"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/sse"
	"github.com/rs/zerolog"
)

type fakeObjectAPI struct {
	calls []string

	listBucketsFn      func(ctx context.Context) ([]miniogo.BucketInfo, error)
	makeBucketFn       func(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
	removeBucketFn     func(ctx context.Context, bucket string) error
	bucketExistsFn     func(ctx context.Context, bucket string) (bool, error)
	getPolicyFn        func(ctx context.Context, bucket string) (string, error)
	setPolicyFn        func(ctx context.Context, bucket, policy string) error
	getVersioningFn    func(ctx context.Context, bucket string) (miniogo.BucketVersioningConfiguration, error)
	setVersioningFn    func(ctx context.Context, bucket string, cfg miniogo.BucketVersioningConfiguration) error
	getEncryptionFn    func(ctx context.Context, bucket string) (*sse.Configuration, error)
	setEncryptionFn    func(ctx context.Context, bucket string, cfg *sse.Configuration) error
	removeEncryptionFn func(ctx context.Context, bucket string) error
	objects            []miniogo.ObjectInfo
	lastListOpts       miniogo.ListObjectsOptions
	putObjectFn        func(ctx context.Context, bucket, key string, r io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	statObjectFn       func(ctx context.Context, bucket, key string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error)
	removeObjectFn     func(ctx context.Context, bucket, key string, opts miniogo.RemoveObjectOptions) error
}

var errUnexpected = errors.New("unexpected call")

func (f *fakeObjectAPI) ListBuckets(ctx context.Context) ([]miniogo.BucketInfo, error) {
	f.calls = append(f.calls, "ListBuckets")
	if f.listBucketsFn == nil {
		return nil, errUnexpected
	}
	return f.listBucketsFn(ctx)
}

func (f *fakeObjectAPI) MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error {
	f.calls = append(f.calls, "MakeBucket")
	if f.makeBucketFn == nil {
		return errUnexpected
	}
	return f.makeBucketFn(ctx, bucket, opts)
}

func (f *fakeObjectAPI) RemoveBucket(ctx context.Context, bucket string) error {
	f.calls = append(f.calls, "RemoveBucket")
	if f.removeBucketFn == nil {
		return errUnexpected
	}
	return f.removeBucketFn(ctx, bucket)
}

func (f *fakeObjectAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	f.calls = append(f.calls, "BucketExists")
	if f.bucketExistsFn == nil {
		return false, errUnexpected
	}
	return f.bucketExistsFn(ctx, bucket)
}

func (f *fakeObjectAPI) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	f.calls = append(f.calls, "GetBucketPolicy")
	if f.getPolicyFn == nil {
		return "", errUnexpected
	}
	return f.getPolicyFn(ctx, bucket)
}

func (f *fakeObjectAPI) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	f.calls = append(f.calls, "SetBucketPolicy")
	if f.setPolicyFn == nil {
		return errUnexpected
	}
	return f.setPolicyFn(ctx, bucket, policy)
}

func (f *fakeObjectAPI) GetBucketVersioning(ctx context.Context, bucket string) (miniogo.BucketVersioningConfiguration, error) {
	f.calls = append(f.calls, "GetBucketVersioning")
	if f.getVersioningFn == nil {
		return miniogo.BucketVersioningConfiguration{}, errUnexpected
	}
	return f.getVersioningFn(ctx, bucket)
}

func (f *fakeObjectAPI) SetBucketVersioning(ctx context.Context, bucket string, cfg miniogo.BucketVersioningConfiguration) error {
	f.calls = append(f.calls, "SetBucketVersioning")
	if f.setVersioningFn == nil {
		return errUnexpected
	}
	return f.setVersioningFn(ctx, bucket, cfg)
}

func (f *fakeObjectAPI) GetBucketEncryption(ctx context.Context, bucket string) (*sse.Configuration, error) {
	f.calls = append(f.calls, "GetBucketEncryption")
	if f.getEncryptionFn == nil {
		return nil, errUnexpected
	}
	return f.getEncryptionFn(ctx, bucket)
}

func (f *fakeObjectAPI) SetBucketEncryption(ctx context.Context, bucket string, cfg *sse.Configuration) error {
	f.calls = append(f.calls, "SetBucketEncryption")
	if f.setEncryptionFn == nil {
		return errUnexpected
	}
	return f.setEncryptionFn(ctx, bucket, cfg)
}

func (f *fakeObjectAPI) RemoveBucketEncryption(ctx context.Context, bucket string) error {
	f.calls = append(f.calls, "RemoveBucketEncryption")
	if f.removeEncryptionFn == nil {
		return errUnexpected
	}
	return f.removeEncryptionFn(ctx, bucket)
}

// ListObjects streams f.objects that match the prefix, honouring StartAfter
// and cancellation the way the SDK does.
func (f *fakeObjectAPI) ListObjects(ctx context.Context, _ string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo {
	f.calls = append(f.calls, "ListObjects")
	f.lastListOpts = opts
	ch := make(chan miniogo.ObjectInfo)
	go func() {
		defer close(ch)
		for _, obj := range f.objects {
			if obj.Err == nil && (!strings.HasPrefix(obj.Key, opts.Prefix) || (opts.StartAfter != "" && obj.Key <= opts.StartAfter)) {
				continue
			}
			select {
			case ch <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	f.calls = append(f.calls, "PutObject")
	if f.putObjectFn == nil {
		return miniogo.UploadInfo{}, errUnexpected
	}
	return f.putObjectFn(ctx, bucket, key, r, size, opts)
}

func (f *fakeObjectAPI) StatObject(ctx context.Context, bucket, key string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
	f.calls = append(f.calls, "StatObject")
	if f.statObjectFn == nil {
		return miniogo.ObjectInfo{}, errUnexpected
	}
	return f.statObjectFn(ctx, bucket, key, opts)
}

func (f *fakeObjectAPI) RemoveObject(ctx context.Context, bucket, key string, opts miniogo.RemoveObjectOptions) error {
	f.calls = append(f.calls, "RemoveObject")
	if f.removeObjectFn == nil {
		return errUnexpected
	}
	return f.removeObjectFn(ctx, bucket, key, opts)
}

type fakeObject struct {
	io.Reader
	info    miniogo.ObjectInfo
	statErr error
	closed  bool
}

func (o *fakeObject) Close() error {
	o.closed = true
	return nil
}

func (o *fakeObject) Stat() (miniogo.ObjectInfo, error) {
	return o.info, o.statErr
}

func newTestProvider(api *fakeObjectAPI) *Provider {
	return newProvider(api, "us-east-1", zerolog.Nop())
}

func errResponse(status int, code string) error {
	return miniogo.ErrorResponse{StatusCode: status, Code: code, Message: code + " message"}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{raw: "localhost:9000", wantHost: "localhost:9000"},
		{raw: "play.min.io", useSSL: true, wantHost: "play.min.io", wantSecure: true},
		{raw: "http://127.0.0.1:9000/", useSSL: true, wantHost: "127.0.0.1:9000"},
		{raw: "https://s3.example.com", wantHost: "s3.example.com", wantSecure: true},
		{raw: "", wantErr: true},
		{raw: "ftp://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
			if tt.wantErr {
				if !buckets.IsConfigError(err) {
					t.Fatalf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse endpoint: %v", err)
			}
			if host != tt.wantHost || secure != tt.wantSecure {
				t.Fatalf("got host=%q secure=%v, want host=%q secure=%v", host, secure, tt.wantHost, tt.wantSecure)
			}
		})
	}
}

func TestNewBuildsClient(t *testing.T) {
	p, err := New(context.Background(), &buckets.ProviderOptions{Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.ID() != ID || p.open == nil {
		t.Fatalf("unexpected provider: %+v", p)
	}
}

func TestCreateBucketPublicRead(t *testing.T) {
	var region, policy string
	api := &fakeObjectAPI{
		makeBucketFn: func(_ context.Context, _ string, opts miniogo.MakeBucketOptions) error {
			region = opts.Region
			return nil
		},
		setPolicyFn: func(_ context.Context, _ string, p string) error {
			policy = p
			return nil
		},
	}
	p := newTestProvider(api)

	err := p.CreateBucket(context.Background(), "site-assets", &buckets.CreateBucketOptions{Access: buckets.AccessPublicRead, Location: "eu-west-1"})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	if !reflect.DeepEqual(api.calls, []string{"MakeBucket", "SetBucketPolicy"}) {
		t.Fatalf("unexpected calls: %v", api.calls)
	}
	if region != "eu-west-1" || !strings.Contains(policy, "arn:aws:s3:::site-assets/*") {
		t.Fatalf("unexpected region %q or policy %s", region, policy)
	}

	api.calls = nil
	if err := p.CreateBucket(context.Background(), "b", &buckets.CreateBucketOptions{Access: "public-read-write"}); !buckets.IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("expected no calls, got %v", api.calls)
	}
}

func TestBucketExistsAndMetadataNotFound(t *testing.T) {
	api := &fakeObjectAPI{
		bucketExistsFn: func(_ context.Context, bucket string) (bool, error) {
			switch bucket {
			case "gone":
				return false, errResponse(http.StatusNotFound, "NoSuchBucket")
			case "denied":
				return false, errResponse(http.StatusForbidden, "AccessDenied")
			}
			return true, nil
		},
		statObjectFn: func(_ context.Context, _ string, key string, _ miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
			switch key {
			case "missing":
				return miniogo.ObjectInfo{}, errResponse(http.StatusNotFound, "NoSuchKey")
			case "broken":
				return miniogo.ObjectInfo{}, errResponse(http.StatusInternalServerError, "InternalError")
			}
			return miniogo.ObjectInfo{
				Key:         key,
				Size:        3,
				ETag:        `"etag"`,
				ContentType: "text/plain",
				Metadata:    http.Header{"Content-Encoding": []string{"gzip"}},
				VersionID:   "v9",
			}, nil
		},
	}
	p := newTestProvider(api)
	ctx := context.Background()

	if ok, err := p.BucketExists(ctx, "b"); err != nil || !ok {
		t.Fatalf("expected bucket, got %v err=%v", ok, err)
	}
	if ok, err := p.BucketExists(ctx, "gone"); err != nil || ok {
		t.Fatalf("expected missing bucket, got %v err=%v", ok, err)
	}
	if _, err := p.BucketExists(ctx, "denied"); err == nil || buckets.IsNotFound(err) {
		t.Fatalf("expected access denied, got %v", err)
	}

	meta, err := p.GetFileMetadata(ctx, "b", "a.txt")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta.ETag != "etag" || meta.ContentEncoding != "gzip" || meta.Other["versionId"] != "v9" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta, err := p.GetFileMetadata(ctx, "b", "missing"); err != nil || meta != nil {
		t.Fatalf("expected nil metadata, got %+v err=%v", meta, err)
	}
	_, err = p.GetFileMetadata(ctx, "b", "broken")
	pe, ok := buckets.AsProviderError(err)
	if !ok || pe.Code != "InternalError" || pe.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestWebsiteIsUnsupported(t *testing.T) {
	p := newTestProvider(&fakeObjectAPI{})
	ctx := context.Background()

	if _, err := p.GetWebsiteConfiguration(ctx, "b"); !buckets.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := p.SetWebsiteConfiguration(ctx, "b", buckets.BucketWebsiteConfiguration{IndexPage: "index.html"}); !buckets.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := p.GetWebsiteDomain(ctx, "b"); !buckets.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestPolicyAndVersioning(t *testing.T) {
	stored := ""
	status := ""
	api := &fakeObjectAPI{
		setPolicyFn: func(_ context.Context, _ string, policy string) error {
			stored = policy
			return nil
		},
		getPolicyFn: func(_ context.Context, _ string) (string, error) {
			return stored, nil
		},
		setVersioningFn: func(_ context.Context, _ string, cfg miniogo.BucketVersioningConfiguration) error {
			status = cfg.Status
			return nil
		},
		getVersioningFn: func(_ context.Context, _ string) (miniogo.BucketVersioningConfiguration, error) {
			return miniogo.BucketVersioningConfiguration{Status: status}, nil
		},
	}
	p := newTestProvider(api)
	ctx := context.Background()

	if err := p.SetPolicy(ctx, "b", buckets.Policy{"Version": "2012-10-17"}); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	got, err := p.GetPolicy(ctx, "b")
	if err != nil || got["Version"] != "2012-10-17" {
		t.Fatalf("unexpected policy %v err=%v", got, err)
	}
	if err := p.DeletePolicy(ctx, "b"); err != nil {
		t.Fatalf("delete policy: %v", err)
	}
	got, err = p.GetPolicy(ctx, "b")
	if err != nil || got != nil {
		t.Fatalf("expected no policy after delete, got %v err=%v", got, err)
	}

	if err := p.SetVersioning(ctx, "b", true); err != nil {
		t.Fatalf("set versioning: %v", err)
	}
	if on, err := p.GetVersioning(ctx, "b"); err != nil || !on {
		t.Fatalf("expected versioning on, got %v err=%v", on, err)
	}
	if err := p.SetVersioning(ctx, "b", false); err != nil {
		t.Fatalf("set versioning: %v", err)
	}
	if status != miniogo.Suspended {
		t.Fatalf("expected suspended status, got %q", status)
	}
}

func TestEncryption(t *testing.T) {
	var stored *sse.Configuration
	api := &fakeObjectAPI{
		setEncryptionFn: func(_ context.Context, _ string, cfg *sse.Configuration) error {
			stored = cfg
			return nil
		},
		getEncryptionFn: func(_ context.Context, _ string) (*sse.Configuration, error) {
			if stored == nil {
				return nil, errResponse(http.StatusNotFound, encryptionNotConfigured)
			}
			return stored, nil
		},
		removeEncryptionFn: func(_ context.Context, _ string) error {
			stored = nil
			return nil
		},
	}
	p := newTestProvider(api)
	ctx := context.Background()

	if got, err := p.GetEncryption(ctx, "b"); err != nil || got != nil {
		t.Fatalf("expected no encryption, got %+v err=%v", got, err)
	}

	if err := p.SetEncryption(ctx, "b", true, &buckets.SetEncryptionOptions{Algorithm: buckets.AlgorithmKMS, KeyID: "my-key"}); err != nil {
		t.Fatalf("set kms: %v", err)
	}
	got, err := p.GetEncryption(ctx, "b")
	if err != nil || got.Algorithm != "aws:kms" || got.KeyID != "my-key" {
		t.Fatalf("unexpected kms settings %+v err=%v", got, err)
	}

	if err := p.SetEncryption(ctx, "b", true, nil); err != nil {
		t.Fatalf("set aes: %v", err)
	}
	if got, _ := p.GetEncryption(ctx, "b"); got.Algorithm != "AES256" {
		t.Fatalf("unexpected aes settings %+v", got)
	}

	if err := p.SetEncryption(ctx, "b", false, nil); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if stored != nil {
		t.Fatal("expected encryption removed")
	}
}

func TestListFilesPagesAndFolders(t *testing.T) {
	api := &fakeObjectAPI{objects: []miniogo.ObjectInfo{
		{Key: "assets/a.css", Size: 1},
		{Key: "assets/b.js", Size: 2},
		{Key: "assets/img/", Size: 0},
		{Key: "assets/z.txt", Size: 3},
		{Key: "other.txt", Size: 4},
	}}
	p := newTestProvider(api)
	ctx := context.Background()

	page, err := p.ListFiles(ctx, "b", &buckets.ListFilesOptions{ListOptions: buckets.ListOptions{Limit: 3}, Folder: "assets"})
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if api.lastListOpts.Prefix != "assets/" || api.lastListOpts.Recursive {
		t.Fatalf("unexpected list options: %+v", api.lastListOpts)
	}
	if len(page.Files) != 2 || !reflect.DeepEqual(page.Folders, []string{"assets/img/"}) {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.Next == "" {
		t.Fatal("expected next token")
	}

	page, err = p.ListFiles(ctx, "b", &buckets.ListFilesOptions{ListOptions: buckets.ListOptions{Offset: page.Next, Limit: 3}, Folder: "assets"})
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(page.Files) != 1 || page.Files[0].Path != "assets/z.txt" || page.Next != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestListFilesPropagatesError(t *testing.T) {
	api := &fakeObjectAPI{objects: []miniogo.ObjectInfo{{Err: errResponse(http.StatusNotFound, "NoSuchBucket")}}}
	p := newTestProvider(api)

	_, err := p.ListFiles(context.Background(), "gone", nil)
	if !buckets.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestPutFile(t *testing.T) {
	var gotSize int64
	var gotBody []byte
	var gotOpts miniogo.PutObjectOptions
	api := &fakeObjectAPI{
		putObjectFn: func(_ context.Context, _, _ string, r io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
			gotSize = size
			gotBody, _ = io.ReadAll(r)
			gotOpts = opts
			return miniogo.UploadInfo{}, nil
		},
	}
	p := newTestProvider(api)
	expires := time.Date(2031, 5, 6, 0, 0, 0, 0, time.UTC)

	err := p.PutFile(context.Background(), "b", "k", io.MultiReader(strings.NewReader("ab"), strings.NewReader("cd")), &buckets.PutFileOptions{
		ContentType:  "text/plain",
		Access:       buckets.AccessPublicRead,
		StorageClass: "REDUCED_REDUNDANCY",
		Expires:      expires,
	})
	if err != nil {
		t.Fatalf("put file: %v", err)
	}
	if gotSize != 4 || string(gotBody) != "abcd" {
		t.Fatalf("unexpected upload size=%d body=%q", gotSize, gotBody)
	}
	if gotOpts.UserMetadata[aclHeader] != "public-read" || gotOpts.ContentType != "text/plain" || !gotOpts.Expires.Equal(expires) {
		t.Fatalf("unexpected put options: %+v", gotOpts)
	}
}

func TestGetFileAndStream(t *testing.T) {
	content := "minio body"
	var last *fakeObject
	p := newTestProvider(&fakeObjectAPI{})
	p.open = func(_ context.Context, _, key string, opts miniogo.GetObjectOptions) (objectReader, error) {
		if opts.VersionID != "v3" {
			t.Fatalf("unexpected version: %q", opts.VersionID)
		}
		size := int64(len(content))
		if key == "short" {
			size += 10
		}
		last = &fakeObject{Reader: strings.NewReader(content), info: miniogo.ObjectInfo{Key: key, Size: size}}
		if key == "missing" {
			last.statErr = errResponse(http.StatusNotFound, "NoSuchKey")
		}
		return last, nil
	}
	ctx := context.Background()
	opts := &buckets.GetFileOptions{VersionID: "v3"}

	file, err := p.GetFile(ctx, "b", "k", opts)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if string(file.Data) != content || file.Size != int64(len(content)) || !last.closed {
		t.Fatalf("unexpected file %+v closed=%v", file, last.closed)
	}

	_, err = p.GetFile(ctx, "b", "short", opts)
	if pe, ok := buckets.AsProviderError(err); !ok || pe.Code != buckets.CodeStreamReadError {
		t.Fatalf("expected stream read error, got %v", err)
	}

	_, err = p.GetFile(ctx, "b", "missing", opts)
	if !buckets.IsNotFound(err) || !last.closed {
		t.Fatalf("expected not found and closed object, got %v", err)
	}

	rc, err := p.GetFileStream(ctx, "b", "k", opts)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	rc.Close()
	if buf.String() != content || !last.closed {
		t.Fatalf("unexpected stream %q closed=%v", buf.String(), last.closed)
	}
}

func TestListFileVersionsResumesAfterMarker(t *testing.T) {
	api := &fakeObjectAPI{objects: []miniogo.ObjectInfo{
		{Key: "a.txt", VersionID: "v3", IsLatest: true},
		{Key: "a.txt", VersionID: "v2"},
		{Key: "a.txt", VersionID: "v1"},
		{Key: "a.txt.bak", VersionID: "x1"},
	}}
	p := newTestProvider(api)
	ctx := context.Background()

	page, err := p.ListFileVersions(ctx, "b", "a.txt", &buckets.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if !api.lastListOpts.WithVersions || len(page.Versions) != 2 || page.Versions[1].VersionID != "v2" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = p.ListFileVersions(ctx, "b", "a.txt", &buckets.ListOptions{Offset: page.Next, Limit: 2})
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(page.Versions) != 1 || page.Versions[0].VersionID != "v1" || page.Next != "" {
		t.Fatalf("unexpected second page: %+v", page)
	}
}
