package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamxr/core/internal/lodgen"
	"github.com/streamxr/core/internal/metrics"
)

var testMetrics = metrics.New()

func newTestGenerator(t *testing.T) *lodgen.Generator {
	t.Helper()
	g, err := lodgen.New("", t.TempDir(), 2, testMetrics)
	if err != nil {
		t.Fatalf("lodgen.New: %v", err)
	}
	return g
}

func writeAsset(t *testing.T, rootDir, assetID string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(rootDir, assetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
}

func TestNewFailsWhenRootDirMissing(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "does-not-exist"), nil, testMetrics); err == nil {
		t.Fatalf("expected an error for a missing asset root")
	}
}

func TestDiscoverGeneratesMissingTiers(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "cube", map[string]string{"high.glb": "high-bytes"})

	mgr, err := New(root, newTestGenerator(t), testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, lod, err := mgr.Get(context.Background(), "cube", MEDIUM)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if lod != MEDIUM {
		t.Fatalf("expected MEDIUM to have been generated and served directly, got %v", lod)
	}
	if string(data) != "high-bytes" {
		t.Fatalf("no decimator available: generated tier should fall back to source bytes")
	}
}

func TestGetFallsBackWhenRequestedTierAbsent(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "cube", map[string]string{"high.glb": "high-bytes", "low.glb": "low-bytes"})

	mgr, err := New(root, nil, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// MEDIUM was never written and no generator is available, so Get(MEDIUM)
	// must fall through fallbackOrder[MEDIUM] = {HIGH, LOW} to HIGH.
	data, lod, err := mgr.Get(context.Background(), "cube", MEDIUM)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if lod != HIGH || string(data) != "high-bytes" {
		t.Fatalf("expected fallback to HIGH, got lod=%v data=%q", lod, data)
	}
}

func TestGetUnknownAssetReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	mgr, err := New(root, nil, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := mgr.Get(context.Background(), "ghost", HIGH); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadRegistersAllTiersAndServesSource(t *testing.T) {
	root := t.TempDir()
	mgr, err := New(root, newTestGenerator(t), testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := mgr.Upload(context.Background(), "newasset", []byte("v1"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.AssetID != "newasset" || len(result.LODLevels) != 3 {
		t.Fatalf("expected all three LOD levels after upload, got %+v", result)
	}

	data, lod, err := mgr.Get(context.Background(), "newasset", HIGH)
	if err != nil || lod != HIGH || string(data) != "v1" {
		t.Fatalf("Get after upload mismatch: data=%q lod=%v err=%v", data, lod, err)
	}
}

func TestRemoveDropsKnownAsset(t *testing.T) {
	root := t.TempDir()
	mgr, err := New(root, newTestGenerator(t), testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := mgr.Upload(context.Background(), "temp", []byte("x")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !mgr.Remove("temp") {
		t.Fatalf("Remove should report success for a known asset")
	}
	if mgr.Remove("temp") {
		t.Fatalf("Remove should report failure for an already-removed asset")
	}
	if _, _, err := mgr.Get(context.Background(), "temp", HIGH); err != ErrNotFound {
		t.Fatalf("removed asset should no longer be servable")
	}
}

func TestInfoReportsNotFoundForUnknownAsset(t *testing.T) {
	root := t.TempDir()
	mgr, err := New(root, nil, testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := mgr.Info("ghost"); ok {
		t.Fatalf("expected Info to report false for an unknown asset")
	}
}

func TestGetNeRFReturnsFalseWhenAbsent(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "cube", map[string]string{"high.glb": "high-bytes"})
	mgr, err := New(root, newTestGenerator(t), testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, ok := mgr.GetNeRF("cube"); ok {
		t.Fatalf("expected no NeRF buffer for an asset that never had one")
	}
}

func TestDiscoverPicksUpNeRFBuffer(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "scan", map[string]string{"high.glb": "high-bytes", "nerf.splat": "splat-bytes"})
	mgr, err := New(root, newTestGenerator(t), testMetrics)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, format, ok := mgr.GetNeRF("scan")
	if !ok || format != FormatSplat || string(data) != "splat-bytes" {
		t.Fatalf("expected splat NeRF buffer to be discovered, got ok=%v format=%v data=%q", ok, format, data)
	}
}
