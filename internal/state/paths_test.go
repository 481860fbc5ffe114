package state

import (
	"path/filepath"
	"testing"
)

func TestPathsLiveUnderAppDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir, err := AppDir()
	if err != nil {
		t.Fatalf("app dir: %v", err)
	}
	if filepath.Base(dir) != AppName {
		t.Fatalf("unexpected app dir: %q", dir)
	}

	cfg, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if cfg != filepath.Join(dir, "config.toml") {
		t.Fatalf("unexpected config path: %q", cfg)
	}

	root, err := LocalRootDir()
	if err != nil {
		t.Fatalf("local root: %v", err)
	}
	if root != filepath.Join(dir, "buckets") {
		t.Fatalf("unexpected local root: %q", root)
	}
}
