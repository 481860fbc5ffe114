package buckets

import (
	"encoding/json"
	"fmt"
	"strings"
)

const bucketNamePlaceholder = "__bucketName__"

const publicReadPolicyTemplate = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "PublicRead",
      "Effect": "Allow",
      "Principal": "*",
      "Action": ["s3:GetObject", "s3:GetObjectVersion"],
      "Resource": ["arn:aws:s3:::__bucketName__/*"]
    }
  ]
}`

// CannedPolicy returns the policy document that implements access for
// bucket, or "" when access needs no policy.
func CannedPolicy(access Access, bucket string) (string, error) {
	if err := access.Validate(); err != nil {
		return "", err
	}
	switch access.Normalize() {
	case AccessPublicRead:
		return strings.ReplaceAll(publicReadPolicyTemplate, bucketNamePlaceholder, bucket), nil
	default:
		return "", nil
	}
}

// ParsePolicy decodes a policy document returned by a provider. Empty input
// yields a nil policy.
func ParsePolicy(raw string) (Policy, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}

func EncodePolicy(p Policy) (string, error) {
	if p == nil {
		return "", &ConfigError{Field: "policy", Message: "policy document is required"}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", &ConfigError{Field: "policy", Message: err.Error()}
	}
	return string(raw), nil
}
