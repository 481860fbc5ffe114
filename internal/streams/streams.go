// Package streams converts response bodies of any supported shape into a
// contiguous buffer or a single streaming handle.
//
// Three shapes are recognised:
//
//	[]byte       a fully materialised blob
//	io.WriterTo  a push source that writes its content into a sink
//	io.Reader    a pull source
//
// A value that is both an io.WriterTo and an io.Reader is drained through
// WriteTo. Read failures are returned, never reported as a short buffer.
package streams

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var ErrUnsupportedBody = errors.New("unsupported body type")

// ToBytes drains body into one buffer. Readers and closers are closed once
// drained.
func ToBytes(body any) ([]byte, error) {
	if c, ok := body.(io.Closer); ok {
		defer c.Close()
	}

	switch b := body.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case io.WriterTo:
		var buf bytes.Buffer
		if _, err := b.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("drain push stream: %w", err)
		}
		return buf.Bytes(), nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("read pull stream: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedBody, body)
	}
}

// ToReadCloser wraps body in the canonical streaming handle. Existing
// ReadClosers are returned unchanged.
func ToReadCloser(body any) (io.ReadCloser, error) {
	switch b := body.(type) {
	case nil:
		return io.NopCloser(bytes.NewReader(nil)), nil
	case []byte:
		return io.NopCloser(bytes.NewReader(b)), nil
	case io.ReadCloser:
		return b, nil
	case io.Reader:
		return io.NopCloser(b), nil
	case io.WriterTo:
		return fromPush(b), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedBody, body)
	}
}

// fromPush runs the push source in its own goroutine. Closing the returned
// reader early stops the source on its next write.
func fromPush(src io.WriterTo) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := src.WriteTo(pw)
		if c, ok := src.(io.Closer); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			pw.CloseWithError(fmt.Errorf("drain push stream: %w", err))
			return
		}
		pw.Close()
	}()
	return pr
}

// CheckLength reports a truncated or oversized body when the provider
// announced a length. A negative want skips the check.
func CheckLength(data []byte, want int64) error {
	if want < 0 || int64(len(data)) == want {
		return nil
	}
	return fmt.Errorf("body length mismatch: read %d bytes, expected %d", len(data), want)
}

// Upload is a request body with a known length that can be replayed from
// its starting offset.
type Upload struct {
	r     io.ReadSeeker
	start int64
	Size  int64
}

// NewUpload measures body. Seekable bodies are used in place from their
// current offset; anything else is drained into memory through ToBytes
// without closing it.
func NewUpload(body io.Reader) (*Upload, error) {
	if body == nil {
		return &Upload{r: bytes.NewReader(nil)}, nil
	}
	if rs, ok := body.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("measure body: %w", err)
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, fmt.Errorf("measure body: %w", err)
		}
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, fmt.Errorf("measure body: %w", err)
		}
		return &Upload{r: rs, start: start, Size: end - start}, nil
	}
	data, err := ToBytes(io.NopCloser(body))
	if err != nil {
		return nil, err
	}
	return &Upload{r: bytes.NewReader(data), Size: int64(len(data))}, nil
}

// Reader rewinds the body to its starting offset.
func (u *Upload) Reader() (io.Reader, error) {
	if _, err := u.r.Seek(u.start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	return u.r, nil
}
