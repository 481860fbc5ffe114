package buckets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes set by providers on ProviderError.Code when the remote service
// did not supply one.
const (
	CodeNotFound        = "NotFound"
	CodeNotImplemented  = "NotImplemented"
	CodeStreamReadError = "StreamReadError"
	CodeInvalidRequest  = "InvalidRequest"
	CodeTimeout         = "Timeout"
)

// ErrUnsupported is wrapped by ProviderError when a provider has no
// equivalent for an operation.
var ErrUnsupported = errors.New("operation not supported by provider")

// ConfigError reports caller input that is rejected before any network call.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ProviderError is any failure signalled by the storage service, or a
// local failure while moving data to or from it.
type ProviderError struct {
	Provider   string
	Op         string
	Bucket     string
	Key        string
	Code       string
	Message    string
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Bucket != "" {
		b.WriteString(" " + e.Bucket)
		if e.Key != "" {
			b.WriteString("/" + e.Key)
		}
	}

	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Code != "" && msg != "":
		fmt.Fprintf(&b, ": %s: %s", e.Code, msg)
	case e.Code != "":
		b.WriteString(": " + e.Code)
	default:
		b.WriteString(": " + msg)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

var notFoundCodes = map[string]bool{
	CodeNotFound:    true,
	"NoSuchKey":     true,
	"NoSuchBucket":  true,
	"NoSuchVersion": true,
}

// NotFound reports whether the error is a missing bucket or object.
func (e *ProviderError) NotFound() bool {
	return notFoundCodes[e.Code] || (e.Code == "" && e.StatusCode == 404)
}

// AsProviderError returns the ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.NotFound()
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Unsupported builds the error returned for operations a provider lacks.
func Unsupported(provider, op, bucket string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Bucket:   bucket,
		Code:     CodeNotImplemented,
		Message:  ErrUnsupported.Error(),
		Cause:    ErrUnsupported,
	}
}
