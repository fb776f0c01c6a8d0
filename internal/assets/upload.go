package assets

import (
	"context"
	"os"
	"path/filepath"
)

// Upload persists source bytes as the HIGH tier for assetID, triggers LOD
// generation, and atomically replaces any prior entry. The HTTP upload
// handler's request/response cycle blocks until generation completes; the
// on-the-hot-path concern is instead a *session's* request_asset call for
// this asset: Get waits for it in waitForInflight (manager.go) on the
// channel this Upload closes when done.

// UploadResult summarizes a completed upload for the HTTP response:
// `{ success, assetId, lodLevels, sizes }`.
type UploadResult struct {
	AssetID   string
	LODLevels []string
	Sizes     map[string]int
}

func (m *Manager) Upload(ctx context.Context, assetID string, data []byte) (*UploadResult, error) {
	done := make(chan struct{})
	m.inflightMu.Lock()
	m.inflight[assetID] = done
	m.inflightMu.Unlock()
	defer func() {
		m.inflightMu.Lock()
		delete(m.inflight, assetID)
		m.inflightMu.Unlock()
		close(done)
	}()

	dir := filepath.Join(m.rootDir, assetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "high.glb"), data, 0o644); err != nil {
		return nil, err
	}

	a := &asset{id: assetID, lods: map[LOD][]byte{HIGH: data}}

	if m.gen != nil {
		res, err := m.gen.Generate(ctx, assetID, data)
		if err == nil {
			a.lods[MEDIUM] = res.Medium
			a.lods[LOW] = res.Low
			_ = os.WriteFile(filepath.Join(dir, "medium.glb"), res.Medium, 0o644)
			_ = os.WriteFile(filepath.Join(dir, "low.glb"), res.Low, 0o644)
		}
	}

	// Uploads after init mutate only the in-memory map — the directory is
	// never re-scanned.
	m.mu.Lock()
	m.assets[assetID] = a
	m.mu.Unlock()

	sizes := make(map[string]int, len(a.lods))
	lodLevels := make([]string, 0, len(a.lods))
	for lod, bytes := range a.lods {
		sizes[string(lod)] = len(bytes)
		lodLevels = append(lodLevels, string(lod))
	}

	return &UploadResult{AssetID: assetID, LODLevels: lodLevels, Sizes: sizes}, nil
}

// Remove drops assetID from the in-memory catalog and clears its cache
// entry.
func (m *Manager) Remove(assetID string) bool {
	m.mu.Lock()
	_, existed := m.assets[assetID]
	delete(m.assets, assetID)
	m.mu.Unlock()

	if m.gen != nil {
		mediumPath, lowPath := m.gen.CachePaths(assetID)
		_ = os.Remove(mediumPath)
		_ = os.Remove(lowPath)
		_ = os.Remove(filepath.Dir(mediumPath))
	}
	return existed
}

// Info returns the catalog listing for a single assetID, or false if it
// isn't known.
func (m *Manager) Info(assetID string) (Listing, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	if !ok {
		return Listing{}, false
	}
	lods := make([]LOD, 0, len(a.lods))
	for l := range a.lods {
		lods = append(lods, l)
	}
	return Listing{AssetID: a.id, LODs: lods, HasNeRF: a.hasNeRF}, true
}
