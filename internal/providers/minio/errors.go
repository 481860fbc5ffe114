package minio

import (
	"errors"
	"fmt"
	"net/http"

	"cloudbuckets/internal/buckets"

	miniogo "github.com/minio/minio-go/v7"
)

const encryptionNotConfigured = "ServerSideEncryptionConfigurationNotFoundError"

var errNoOpener = errors.New("object reader is not configured")

// mapError translates a minio-go error into a *buckets.ProviderError. S3
// protocol errors keep their code and status; transport failures keep only
// the cause.
func mapError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	pe := &buckets.ProviderError{Provider: ID, Op: op, Bucket: bucket, Key: key, Cause: err}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		pe.Code = resp.Code
		pe.Message = resp.Message
		pe.StatusCode = resp.StatusCode
	}
	if pe.Code == "" && buckets.IsTimeout(err) {
		pe.Code = buckets.CodeTimeout
	}
	return pe
}

func errorCode(err error) string {
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code
	}
	return ""
}

func isNotFound(err error) bool {
	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	switch resp.Code {
	case "NoSuchBucket", "NoSuchKey", "NotFound":
		return true
	case "":
		return resp.StatusCode == http.StatusNotFound
	}
	return false
}

func streamError(op, bucket, key string, err error) error {
	return &buckets.ProviderError{
		Provider: ID,
		Op:       op,
		Bucket:   bucket,
		Key:      key,
		Code:     buckets.CodeStreamReadError,
		Message:  fmt.Sprintf("read object body: %v", err),
		Cause:    err,
	}
}
