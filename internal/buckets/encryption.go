package buckets

import "strings"

// ResolveEncryption maps SetEncryptionOptions to the settings to apply.
// A nil bundle or empty algorithm selects provider-managed AES256 keys.
// KMS keys get the bucket key enabled unless the disableBucketKey
// passthrough option is true.
func ResolveEncryption(opts *SetEncryptionOptions) (EncryptionSettings, error) {
	if opts == nil {
		return EncryptionSettings{Algorithm: AlgorithmAES256}, nil
	}
	switch algo := strings.TrimSpace(opts.Algorithm); algo {
	case "", AlgorithmAES256:
		return EncryptionSettings{Algorithm: AlgorithmAES256}, nil
	case AlgorithmKMS:
		return EncryptionSettings{
			Algorithm:        AlgorithmKMS,
			KeyID:            strings.TrimSpace(opts.KeyID),
			BucketKeyEnabled: !opts.Bool(ProviderOptionDisableBucketKey),
		}, nil
	default:
		return EncryptionSettings{}, &ConfigError{Field: "algorithm", Value: algo, Message: "algorithm must be AES256 or aws:kms"}
	}
}
