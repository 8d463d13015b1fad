package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "npm:express"); hit {
		t.Fatal("empty cache should miss")
	}

	if err := c.Set(ctx, "npm:express", []byte(`{"name":"express"}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "npm:express")
	if err != nil || !hit {
		t.Fatalf("Get = hit %v, err %v", hit, err)
	}
	if string(data) != `{"name":"express"}` {
		t.Errorf("Get data = %s", data)
	}

	if err := c.Delete(ctx, "npm:express"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "npm:express"); hit {
		t.Error("deleted key should miss")
	}
	if err := c.Delete(ctx, "npm:express"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "short", []byte("a"), time.Minute)
	c.Set(ctx, "forever", []byte("b"), 0)

	now = now.Add(2 * time.Minute)

	if _, hit, _ := c.Get(ctx, "short"); hit {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.path("short")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed from disk")
	}
	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entry without ttl should not expire")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	path := c.path("bad")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("not json"), 0o644)

	_, hit, err := c.Get(ctx, "bad")
	if err != nil || hit {
		t.Errorf("corrupt entry: hit=%v err=%v, want miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, []byte(k), 0)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d entries, want 3", n)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("cleared entry should miss")
	}
}

func TestScoped(t *testing.T) {
	ctx := context.Background()
	inner, _ := NewFileCache(t.TempDir())
	scoped := Scoped(inner, "npmdash:")

	scoped.Set(ctx, "github-user:42", []byte("x"), 0)

	if _, hit, _ := inner.Get(ctx, "npmdash:github-user:42"); !hit {
		t.Error("inner cache should see prefixed key")
	}
	if _, hit, _ := inner.Get(ctx, "github-user:42"); hit {
		t.Error("inner cache should not see unprefixed key")
	}
	if _, hit, _ := scoped.Get(ctx, "github-user:42"); !hit {
		t.Error("scoped cache should read its own key")
	}
	scoped.Delete(ctx, "github-user:42")
	if _, hit, _ := inner.Get(ctx, "npmdash:github-user:42"); hit {
		t.Error("delete should remove prefixed key")
	}
}

func TestIsNull(t *testing.T) {
	file, _ := NewFileCache(t.TempDir())
	tests := []struct {
		name string
		c    Cache
		want bool
	}{
		{"nil", nil, true},
		{"null", NewNullCache(), true},
		{"scoped null", Scoped(NewNullCache(), "p:"), true},
		{"scoped nil", Scoped(nil, "p:"), true},
		{"file", file, false},
		{"scoped file", Scoped(file, "p:"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNull(tt.c); got != tt.want {
				t.Errorf("IsNull() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"npmdash", "github-user", "42"}, "npmdash:github-user:42"},
		{[]string{"", "registry", "express"}, "registry:express"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Key(tt.parts...); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestPingWithoutPinger(t *testing.T) {
	if err := Ping(context.Background(), NewNullCache()); err != nil {
		t.Errorf("Ping(null) = %v, want nil", err)
	}
	if errors.Is(Ping(context.Background(), Scoped(nil, "x")), ErrUnavailable) {
		t.Error("scoped null should not report unavailable")
	}
}
