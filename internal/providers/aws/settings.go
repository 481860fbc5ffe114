package aws

import (
	"context"
	"sort"
	"strings"

	"cloudbuckets/internal/buckets"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Regions whose website endpoint uses the legacy "s3-website-<region>" form.
var dashRegions = map[string]bool{
	"us-east-1":      true,
	"us-west-1":      true,
	"us-west-2":      true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"ap-northeast-1": true,
	"sa-east-1":      true,
	"eu-west-1":      true,
}

const encryptionNotConfigured = "ServerSideEncryptionConfigurationNotFoundError"

func (p *Provider) GetWebsiteConfiguration(ctx context.Context, bucket string) (*buckets.BucketWebsiteConfiguration, error) {
	out, err := invoke(ctx, p, func(c s3API) (*s3.GetBucketWebsiteOutput, error) {
		return c.GetBucketWebsite(ctx, &s3.GetBucketWebsiteInput{Bucket: awssdk.String(bucket)})
	})
	if err != nil {
		return nil, p.fail("GetBucketWebsite", bucket, "", err)
	}

	cfg := &buckets.BucketWebsiteConfiguration{}
	if out.IndexDocument != nil {
		cfg.IndexPage = awssdk.ToString(out.IndexDocument.Suffix)
	}
	if out.ErrorDocument != nil {
		cfg.ErrorPage = awssdk.ToString(out.ErrorDocument.Key)
	}
	if out.RedirectAllRequestsTo != nil {
		cfg.RedirectHostName = awssdk.ToString(out.RedirectAllRequestsTo.HostName)
		cfg.RedirectProtocol = string(out.RedirectAllRequestsTo.Protocol)
	}
	return cfg, nil
}

// SetWebsiteConfiguration writes either the index/error document shape or
// the redirect shape, never both.
func (p *Provider) SetWebsiteConfiguration(ctx context.Context, bucket string, cfg buckets.BucketWebsiteConfiguration) (*buckets.BucketWebsiteConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	website := &s3types.WebsiteConfiguration{}
	if cfg.IsRedirect() {
		website.RedirectAllRequestsTo = &s3types.RedirectAllRequestsTo{
			HostName: awssdk.String(cfg.RedirectHostName),
			Protocol: s3types.Protocol(cfg.RedirectProtocol),
		}
	} else {
		if cfg.IndexPage != "" {
			website.IndexDocument = &s3types.IndexDocument{Suffix: awssdk.String(cfg.IndexPage)}
		}
		if cfg.ErrorPage != "" {
			website.ErrorDocument = &s3types.ErrorDocument{Key: awssdk.String(cfg.ErrorPage)}
		}
	}

	_, err := invoke(ctx, p, func(c s3API) (*s3.PutBucketWebsiteOutput, error) {
		return c.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
			Bucket:               awssdk.String(bucket),
			WebsiteConfiguration: website,
		})
	})
	if err != nil {
		return nil, p.fail("PutBucketWebsite", bucket, "", err)
	}
	out := cfg
	return &out, nil
}

// GetWebsiteDomain returns the website endpoint hostname in the bucket's
// own region.
func (p *Provider) GetWebsiteDomain(ctx context.Context, bucket string) (string, error) {
	out, err := p.defaultClient().GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: awssdk.String(bucket)})
	if err != nil {
		return "", p.fail("GetBucketLocation", bucket, "", err)
	}
	return websiteDomain(bucket, locationRegion(out.LocationConstraint)), nil
}

func locationRegion(loc s3types.BucketLocationConstraint) string {
	switch loc {
	case "":
		return buckets.DefaultRegion
	case s3types.BucketLocationConstraintEu:
		return "eu-west-1"
	default:
		return string(loc)
	}
}

func websiteDomain(bucket, region string) string {
	if dashRegions[region] {
		return bucket + ".s3-website-" + region + ".amazonaws.com"
	}
	return bucket + ".s3-website." + region + ".amazonaws.com"
}

func (p *Provider) GetPolicy(ctx context.Context, bucket string) (buckets.Policy, error) {
	out, err := invoke(ctx, p, func(c s3API) (*s3.GetBucketPolicyOutput, error) {
		return c.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: awssdk.String(bucket)})
	})
	if err != nil {
		return nil, p.fail("GetBucketPolicy", bucket, "", err)
	}
	policy, err := buckets.ParsePolicy(awssdk.ToString(out.Policy))
	if err != nil {
		return nil, &buckets.ProviderError{Provider: ID, Op: "GetBucketPolicy", Bucket: bucket, Code: buckets.CodeInvalidRequest, Message: err.Error(), Cause: err}
	}
	return policy, nil
}

func (p *Provider) SetPolicy(ctx context.Context, bucket string, policy buckets.Policy) error {
	raw, err := buckets.EncodePolicy(policy)
	if err != nil {
		return err
	}
	_, err = invoke(ctx, p, func(c s3API) (*s3.PutBucketPolicyOutput, error) {
		return c.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
			Bucket: awssdk.String(bucket),
			Policy: awssdk.String(raw),
		})
	})
	return p.fail("PutBucketPolicy", bucket, "", err)
}

func (p *Provider) DeletePolicy(ctx context.Context, bucket string) error {
	_, err := invoke(ctx, p, func(c s3API) (*s3.DeleteBucketPolicyOutput, error) {
		return c.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{Bucket: awssdk.String(bucket)})
	})
	return p.fail("DeleteBucketPolicy", bucket, "", err)
}

// SetVersioning suspends versioning when enabled is false. S3 cannot return
// a bucket to the never-versioned state.
func (p *Provider) SetVersioning(ctx context.Context, bucket string, enabled bool) error {
	status := s3types.BucketVersioningStatusSuspended
	if enabled {
		status = s3types.BucketVersioningStatusEnabled
	}
	_, err := invoke(ctx, p, func(c s3API) (*s3.PutBucketVersioningOutput, error) {
		return c.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket:                  awssdk.String(bucket),
			VersioningConfiguration: &s3types.VersioningConfiguration{Status: status},
		})
	})
	return p.fail("PutBucketVersioning", bucket, "", err)
}

func (p *Provider) GetVersioning(ctx context.Context, bucket string) (bool, error) {
	out, err := invoke(ctx, p, func(c s3API) (*s3.GetBucketVersioningOutput, error) {
		return c.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: awssdk.String(bucket)})
	})
	if err != nil {
		return false, p.fail("GetBucketVersioning", bucket, "", err)
	}
	return out.Status == s3types.BucketVersioningStatusEnabled, nil
}

// ListFileVersions lists the versions and delete markers of one key, or of
// every key below filePath when it ends with a slash.
func (p *Provider) ListFileVersions(ctx context.Context, bucket, filePath string, opts *buckets.ListOptions) (*buckets.FileVersionList, error) {
	if opts == nil {
		opts = &buckets.ListOptions{}
	}
	input := &s3.ListObjectVersionsInput{
		Bucket: awssdk.String(bucket),
		Prefix: awssdk.String(filePath),
	}
	if opts.Offset != "" {
		marker, err := buckets.ParseVersionMarker(opts.Offset)
		if err != nil {
			return nil, err
		}
		input.KeyMarker = awssdk.String(marker.Key)
		if marker.VersionID != "" {
			input.VersionIdMarker = awssdk.String(marker.VersionID)
		}
	}
	if opts.Limit > 0 {
		input.MaxKeys = awssdk.Int32(clampLimit(opts.Limit))
	}

	out, err := invoke(ctx, p, func(c s3API) (*s3.ListObjectVersionsOutput, error) {
		return c.ListObjectVersions(ctx, input)
	})
	if err != nil {
		return nil, p.fail("ListObjectVersions", bucket, filePath, err)
	}

	folder := filePath == "" || strings.HasSuffix(filePath, "/")
	keep := func(key string) bool { return folder || key == filePath }

	list := &buckets.FileVersionList{}
	for _, v := range out.Versions {
		key := awssdk.ToString(v.Key)
		if !keep(key) {
			continue
		}
		list.Versions = append(list.Versions, buckets.FileVersion{
			Path:         key,
			VersionID:    awssdk.ToString(v.VersionId),
			ETag:         trimETag(awssdk.ToString(v.ETag)),
			StorageClass: string(v.StorageClass),
			LastModified: awssdk.ToTime(v.LastModified).UTC(),
			Size:         awssdk.ToInt64(v.Size),
			IsLatest:     awssdk.ToBool(v.IsLatest),
		})
	}
	for _, m := range out.DeleteMarkers {
		key := awssdk.ToString(m.Key)
		if !keep(key) {
			continue
		}
		list.Versions = append(list.Versions, buckets.FileVersion{
			Path:           key,
			VersionID:      awssdk.ToString(m.VersionId),
			LastModified:   awssdk.ToTime(m.LastModified).UTC(),
			IsLatest:       awssdk.ToBool(m.IsLatest),
			IsDeleteMarker: true,
		})
	}
	sort.SliceStable(list.Versions, func(i, j int) bool {
		a, b := list.Versions[i], list.Versions[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.LastModified.After(b.LastModified)
	})

	if awssdk.ToBool(out.IsTruncated) {
		list.Next = buckets.VersionMarker{
			Key:       awssdk.ToString(out.NextKeyMarker),
			VersionID: awssdk.ToString(out.NextVersionIdMarker),
		}.Token()
	}
	return list, nil
}

// SetEncryption writes a single default-encryption rule, or deletes the
// configuration entirely when enabled is false.
func (p *Provider) SetEncryption(ctx context.Context, bucket string, enabled bool, opts *buckets.SetEncryptionOptions) error {
	if !enabled {
		_, err := invoke(ctx, p, func(c s3API) (*s3.DeleteBucketEncryptionOutput, error) {
			return c.DeleteBucketEncryption(ctx, &s3.DeleteBucketEncryptionInput{Bucket: awssdk.String(bucket)})
		})
		return p.fail("DeleteBucketEncryption", bucket, "", err)
	}

	settings, err := buckets.ResolveEncryption(opts)
	if err != nil {
		return err
	}
	rule := s3types.ServerSideEncryptionRule{
		ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
			SSEAlgorithm: s3types.ServerSideEncryption(settings.Algorithm),
		},
	}
	if settings.Algorithm == buckets.AlgorithmKMS {
		if settings.KeyID != "" {
			rule.ApplyServerSideEncryptionByDefault.KMSMasterKeyID = awssdk.String(settings.KeyID)
		}
		rule.BucketKeyEnabled = awssdk.Bool(settings.BucketKeyEnabled)
	}

	_, err = invoke(ctx, p, func(c s3API) (*s3.PutBucketEncryptionOutput, error) {
		return c.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
			Bucket: awssdk.String(bucket),
			ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
				Rules: []s3types.ServerSideEncryptionRule{rule},
			},
		})
	})
	return p.fail("PutBucketEncryption", bucket, "", err)
}

func (p *Provider) GetEncryption(ctx context.Context, bucket string) (*buckets.EncryptionSettings, error) {
	out, err := invoke(ctx, p, func(c s3API) (*s3.GetBucketEncryptionOutput, error) {
		return c.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: awssdk.String(bucket)})
	})
	if err != nil {
		if errorCode(err) == encryptionNotConfigured {
			return nil, nil
		}
		return nil, p.fail("GetBucketEncryption", bucket, "", err)
	}
	if out.ServerSideEncryptionConfiguration == nil {
		return nil, nil
	}
	for _, rule := range out.ServerSideEncryptionConfiguration.Rules {
		def := rule.ApplyServerSideEncryptionByDefault
		if def == nil {
			continue
		}
		return &buckets.EncryptionSettings{
			Algorithm:        string(def.SSEAlgorithm),
			KeyID:            awssdk.ToString(def.KMSMasterKeyID),
			BucketKeyEnabled: awssdk.ToBool(rule.BucketKeyEnabled),
		}, nil
	}
	return nil, nil
}
