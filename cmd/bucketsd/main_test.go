package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloudbuckets/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDaemonHome(t *testing.T) {
	t.Helper()
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("XDG_CONFIG_HOME", homeDir)
	t.Setenv(config.EnvAccessKey, "")
	t.Setenv(config.EnvSecretKey, "")
	t.Setenv(config.EnvGatewayToken, "")
}

func execute(t *testing.T, ctx context.Context, args ...string) error {
	t.Helper()
	cmd, err := newRootCommand()
	require.NoError(t, err)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunRejectsRemoteListenWithoutOptIn(t *testing.T) {
	setDaemonHome(t)

	err := execute(t, context.Background(), "--listen", "0.0.0.0:41821")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not loopback")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	setDaemonHome(t)
	cfgPath := writeConfig(t, "provider = \"gcs\"\n")

	err := execute(t, context.Background(), "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider must be aws, minio, or local")

	err = execute(t, context.Background(), "--provider", "minio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio.endpoint is required")
}

func TestRunServesUntilCancelled(t *testing.T) {
	setDaemonHome(t)
	root := filepath.Join(t.TempDir(), "store")
	cfgPath := writeConfig(t, "provider = \"local\"\n\n[local]\nroot = \""+filepath.ToSlash(root)+"\"\n\n[log]\nlevel = \"disabled\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- execute(t, ctx, "--config", cfgPath, "--listen", "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bucketsd did not stop after cancel")
	}
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
