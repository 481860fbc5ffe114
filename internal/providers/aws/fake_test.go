package aws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"
)

type fakeS3API struct {
	mu    sync.Mutex
	calls []string

	listBucketsFn            func(ctx context.Context, params *s3.ListBucketsInput) (*s3.ListBucketsOutput, error)
	createBucketFn           func(ctx context.Context, params *s3.CreateBucketInput) (*s3.CreateBucketOutput, error)
	deleteBucketFn           func(ctx context.Context, params *s3.DeleteBucketInput) (*s3.DeleteBucketOutput, error)
	headBucketFn             func(ctx context.Context, params *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
	getBucketLocationFn      func(ctx context.Context, params *s3.GetBucketLocationInput) (*s3.GetBucketLocationOutput, error)
	getBucketWebsiteFn       func(ctx context.Context, params *s3.GetBucketWebsiteInput) (*s3.GetBucketWebsiteOutput, error)
	putBucketWebsiteFn       func(ctx context.Context, params *s3.PutBucketWebsiteInput) (*s3.PutBucketWebsiteOutput, error)
	getBucketPolicyFn        func(ctx context.Context, params *s3.GetBucketPolicyInput) (*s3.GetBucketPolicyOutput, error)
	putBucketPolicyFn        func(ctx context.Context, params *s3.PutBucketPolicyInput) (*s3.PutBucketPolicyOutput, error)
	deleteBucketPolicyFn     func(ctx context.Context, params *s3.DeleteBucketPolicyInput) (*s3.DeleteBucketPolicyOutput, error)
	getBucketVersioningFn    func(ctx context.Context, params *s3.GetBucketVersioningInput) (*s3.GetBucketVersioningOutput, error)
	putBucketVersioningFn    func(ctx context.Context, params *s3.PutBucketVersioningInput) (*s3.PutBucketVersioningOutput, error)
	listObjectVersionsFn     func(ctx context.Context, params *s3.ListObjectVersionsInput) (*s3.ListObjectVersionsOutput, error)
	getBucketEncryptionFn    func(ctx context.Context, params *s3.GetBucketEncryptionInput) (*s3.GetBucketEncryptionOutput, error)
	putBucketEncryptionFn    func(ctx context.Context, params *s3.PutBucketEncryptionInput) (*s3.PutBucketEncryptionOutput, error)
	deleteBucketEncryptionFn func(ctx context.Context, params *s3.DeleteBucketEncryptionInput) (*s3.DeleteBucketEncryptionOutput, error)
	listObjectsV2Fn          func(ctx context.Context, params *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	putObjectFn              func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	getObjectFn              func(ctx context.Context, params *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	headObjectFn             func(ctx context.Context, params *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	deleteObjectFn           func(ctx context.Context, params *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

func (f *fakeS3API) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeS3API) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func call[In, Out any](ctx context.Context, f *fakeS3API, name string, fn func(context.Context, In) (Out, error), in In) (Out, error) {
	f.record(name)
	if fn == nil {
		var zero Out
		return zero, errors.New("unexpected " + name + " call")
	}
	return fn(ctx, in)
}

func (f *fakeS3API) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return call(ctx, f, "ListBuckets", f.listBucketsFn, params)
}

func (f *fakeS3API) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return call(ctx, f, "CreateBucket", f.createBucketFn, params)
}

func (f *fakeS3API) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	return call(ctx, f, "DeleteBucket", f.deleteBucketFn, params)
}

func (f *fakeS3API) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return call(ctx, f, "HeadBucket", f.headBucketFn, params)
}

func (f *fakeS3API) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return call(ctx, f, "GetBucketLocation", f.getBucketLocationFn, params)
}

func (f *fakeS3API) GetBucketWebsite(ctx context.Context, params *s3.GetBucketWebsiteInput, _ ...func(*s3.Options)) (*s3.GetBucketWebsiteOutput, error) {
	return call(ctx, f, "GetBucketWebsite", f.getBucketWebsiteFn, params)
}

func (f *fakeS3API) PutBucketWebsite(ctx context.Context, params *s3.PutBucketWebsiteInput, _ ...func(*s3.Options)) (*s3.PutBucketWebsiteOutput, error) {
	return call(ctx, f, "PutBucketWebsite", f.putBucketWebsiteFn, params)
}

func (f *fakeS3API) GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, _ ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	return call(ctx, f, "GetBucketPolicy", f.getBucketPolicyFn, params)
}

func (f *fakeS3API) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	return call(ctx, f, "PutBucketPolicy", f.putBucketPolicyFn, params)
}

func (f *fakeS3API) DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, _ ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error) {
	return call(ctx, f, "DeleteBucketPolicy", f.deleteBucketPolicyFn, params)
}

func (f *fakeS3API) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, _ ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	return call(ctx, f, "GetBucketVersioning", f.getBucketVersioningFn, params)
}

func (f *fakeS3API) PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, _ ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	return call(ctx, f, "PutBucketVersioning", f.putBucketVersioningFn, params)
}

func (f *fakeS3API) ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	return call(ctx, f, "ListObjectVersions", f.listObjectVersionsFn, params)
}

func (f *fakeS3API) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	return call(ctx, f, "GetBucketEncryption", f.getBucketEncryptionFn, params)
}

func (f *fakeS3API) PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	return call(ctx, f, "PutBucketEncryption", f.putBucketEncryptionFn, params)
}

func (f *fakeS3API) DeleteBucketEncryption(ctx context.Context, params *s3.DeleteBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.DeleteBucketEncryptionOutput, error) {
	return call(ctx, f, "DeleteBucketEncryption", f.deleteBucketEncryptionFn, params)
}

func (f *fakeS3API) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return call(ctx, f, "ListObjectsV2", f.listObjectsV2Fn, params)
}

func (f *fakeS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return call(ctx, f, "PutObject", f.putObjectFn, params)
}

func (f *fakeS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return call(ctx, f, "GetObject", f.getObjectFn, params)
}

func (f *fakeS3API) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return call(ctx, f, "HeadObject", f.headObjectFn, params)
}

func (f *fakeS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return call(ctx, f, "DeleteObject", f.deleteObjectFn, params)
}

// regionalFakes hands out one fake per region and records creation order.
type regionalFakes struct {
	mu      sync.Mutex
	fakes   map[string]*fakeS3API
	created []string
}

func (r *regionalFakes) newClient(region string) s3API {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, region)
	f, ok := r.fakes[region]
	if !ok {
		f = &fakeS3API{}
		r.fakes[region] = f
	}
	return f
}

func (r *regionalFakes) Created() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.created...)
}

func newTestProvider(t *testing.T, fakes map[string]*fakeS3API) (*Provider, *regionalFakes) {
	t.Helper()
	if fakes == nil {
		fakes = map[string]*fakeS3API{}
	}
	rf := &regionalFakes{fakes: fakes}
	return newProvider("us-east-1", rf.newClient, zerolog.Nop()), rf
}

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func responseError(status int, header http.Header, err error) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status, Header: header}},
			Err:      err,
		},
		RequestID: "req-1",
	}
}

func redirectTo(region string) error {
	return responseError(http.StatusMovedPermanently, http.Header{"X-Amz-Bucket-Region": []string{region}}, apiError("PermanentRedirect", "use the bucket region endpoint"))
}

func notFound() error {
	return responseError(http.StatusNotFound, http.Header{}, apiError("NotFound", "Not Found"))
}

// endpointRedirect only carries the endpoint S3 pointed to.
type endpointRedirect struct {
	endpoint string
}

func (e *endpointRedirect) Error() string                 { return "permanent redirect to " + e.endpoint }
func (e *endpointRedirect) ErrorCode() string             { return "PermanentRedirect" }
func (e *endpointRedirect) ErrorMessage() string          { return e.Error() }
func (e *endpointRedirect) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }
func (e *endpointRedirect) Endpoint() string              { return e.endpoint }
