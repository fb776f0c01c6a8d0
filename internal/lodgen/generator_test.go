package lodgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamxr/core/internal/metrics"
)

var testMetrics = metrics.New()

func TestGenerateFallsBackToSourceWhenDecimatorMissing(t *testing.T) {
	cacheDir := t.TempDir()
	g, err := New("", cacheDir, 2, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	source := []byte("high-res mesh bytes")
	res, err := g.Generate(context.Background(), "asset-1", source)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(res.Medium) != string(source) || string(res.Low) != string(source) {
		t.Fatalf("fallback should emit source bytes unchanged for both tiers")
	}
}

func TestGeneratePersistsToCache(t *testing.T) {
	cacheDir := t.TempDir()
	g, err := New("", cacheDir, 2, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.Generate(context.Background(), "asset-2", []byte("source")); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	mediumPath, lowPath := g.CachePaths("asset-2")
	if _, err := os.Stat(mediumPath); err != nil {
		t.Fatalf("expected medium cache file to exist: %v", err)
	}
	if _, err := os.Stat(lowPath); err != nil {
		t.Fatalf("expected low cache file to exist: %v", err)
	}
}

func TestGenerateReadsCacheHitWithoutRegenerating(t *testing.T) {
	cacheDir := t.TempDir()
	g, err := New("", cacheDir, 2, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := filepath.Join(cacheDir, "asset-3")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	mediumPath, lowPath := g.CachePaths("asset-3")
	if err := os.WriteFile(mediumPath, []byte("cached-medium"), 0o644); err != nil {
		t.Fatalf("WriteFile medium: %v", err)
	}
	if err := os.WriteFile(lowPath, []byte("cached-low"), 0o644); err != nil {
		t.Fatalf("WriteFile low: %v", err)
	}

	res, err := g.Generate(context.Background(), "asset-3", []byte("source-that-should-be-ignored"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(res.Medium) != "cached-medium" || string(res.Low) != "cached-low" {
		t.Fatalf("cache hit should return the cached bytes, got medium=%q low=%q", res.Medium, res.Low)
	}
}

func TestCachePathsAreStableForSameAssetID(t *testing.T) {
	cacheDir := t.TempDir()
	g, err := New("", cacheDir, 1, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m1, l1 := g.CachePaths("asset-4")
	m2, l2 := g.CachePaths("asset-4")
	if m1 != m2 || l1 != l2 {
		t.Fatalf("CachePaths should be deterministic for the same assetId")
	}
}

func TestNewFailsWhenCacheDirUnwritable(t *testing.T) {
	// A file (not a directory) as cacheDir forces MkdirAll to fail.
	tmp := t.TempDir()
	blocked := filepath.Join(tmp, "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New("", filepath.Join(blocked, "cache"), 1, testMetrics); err == nil {
		t.Fatalf("expected New to fail when cache dir cannot be created")
	}
}
