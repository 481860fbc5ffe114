package cli

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// stdoutOf runs fn with os.Stdout redirected into a pipe and returns what
// it printed. The pipe is drained while fn runs so large file bodies cannot
// fill it and block.
func stdoutOf(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	saved := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = saved }()

	var buf bytes.Buffer
	drained := make(chan error, 1)
	go func() {
		_, err := io.Copy(&buf, r)
		drained <- err
	}()

	runErr := fn()
	w.Close()
	if err := <-drained; err != nil {
		t.Fatalf("drain stdout: %v", err)
	}
	r.Close()
	return buf.String(), runErr
}
