package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/npmdash/internal/config"
	"github.com/matzehuels/npmdash/pkg/cache"
)

func TestCacheDirHome(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".cache", "npmdash")
	if dir != expected {
		t.Errorf("cacheDir() = %q, want %q", dir, expected)
	}
}

func TestNewRegistryCache(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	cfg := config.Default()
	rc, err := newRegistryCache(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	fc, ok := rc.(*cache.FileCache)
	if !ok {
		t.Fatalf("cache = %T, want *cache.FileCache", rc)
	}
	if !strings.HasPrefix(fc.Dir(), dir) || filepath.Base(fc.Dir()) != "registry" {
		t.Errorf("Dir() = %q", fc.Dir())
	}

	cfg.NPM.CacheDir = filepath.Join(dir, "custom")
	rc, err = newRegistryCache(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := rc.(*cache.FileCache).Dir(); got != cfg.NPM.CacheDir {
		t.Errorf("Dir() = %q, want %q", got, cfg.NPM.CacheDir)
	}

	rc, err = newRegistryCache(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if !cache.IsNull(rc) {
		t.Errorf("noCache should give a null cache, got %T", rc)
	}
}
