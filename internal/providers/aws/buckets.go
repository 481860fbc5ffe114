package aws

import (
	"context"
	"strings"

	"cloudbuckets/internal/buckets"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ListBuckets always uses the default region client. S3 returns every
// bucket of the account in one page.
func (p *Provider) ListBuckets(ctx context.Context, _ *buckets.ListOptions) (*buckets.BucketList, error) {
	out, err := p.defaultClient().ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, p.fail("ListBuckets", "", "", err)
	}

	list := &buckets.BucketList{Buckets: make([]buckets.Bucket, 0, len(out.Buckets))}
	for _, b := range out.Buckets {
		list.Buckets = append(list.Buckets, buckets.Bucket{
			Name:         awssdk.ToString(b.Name),
			CreationDate: awssdk.ToTime(b.CreationDate).UTC(),
		})
	}
	return list, nil
}

// CreateBucket creates the bucket with object ownership enforced and, for
// public-read access, applies the canned policy in a second request. The two
// steps are not atomic: if the policy request fails the bucket stays created
// without it.
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
	input := &s3.CreateBucketInput{
		Bucket:          awssdk.String(bucket),
		ObjectOwnership: s3types.ObjectOwnershipBucketOwnerEnforced,
	}
	if region != buckets.DefaultRegion {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}

	client := p.client(region)
	if _, err := client.CreateBucket(ctx, input); err != nil {
		return p.fail("CreateBucket", bucket, "", err)
	}
	p.log.Info().Str("bucket", bucket).Str("region", region).Msg("bucket created")

	if policy == "" {
		return nil
	}
	if _, err := client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: awssdk.String(bucket),
		Policy: awssdk.String(policy),
	}); err != nil {
		p.log.Warn().Err(err).Str("bucket", bucket).Msg("bucket created without public-read policy")
		return p.fail("PutBucketPolicy", bucket, "", err)
	}
	return nil
}

func (p *Provider) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := invoke(ctx, p, func(c s3API) (*s3.DeleteBucketOutput, error) {
		return c.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: awssdk.String(bucket)})
	})
	return p.fail("DeleteBucket", bucket, "", err)
}

func (p *Provider) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := invoke(ctx, p, func(c s3API) (*s3.HeadBucketOutput, error) {
		return c.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(bucket)})
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, p.fail("HeadBucket", bucket, "", err)
}
