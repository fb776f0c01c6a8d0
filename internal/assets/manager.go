// Package assets implements the Asset Manager: discovers assets
// on disk, ensures all LOD tiers exist (generating on demand via
// internal/lodgen), and serves bytes by (assetId, lod) with the documented
// fallback order. The in-memory catalog is read-mostly — protected by a
// sync.RWMutex since lookups far outnumber registrations.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/streamxr/core/internal/lodgen"
	"github.com/streamxr/core/internal/metrics"
)

// LOD tiers.
type LOD string

const (
	HIGH   LOD = "high"
	MEDIUM LOD = "medium"
	LOW    LOD = "low"
)

var fallbackOrder = map[LOD][]LOD{
	LOW:    {MEDIUM, HIGH},
	MEDIUM: {HIGH, LOW},
	HIGH:   {MEDIUM, LOW},
}

var ErrNotFound = errors.New("assets: unknown asset")

// NeRFFormat is the recognised set of point-cloud formats.
type NeRFFormat string

const (
	FormatSplat  NeRFFormat = "splat"
	FormatPLY    NeRFFormat = "ply"
	FormatKSplat NeRFFormat = "ksplat"
)

// asset is the in-memory record for one discovered/uploaded asset.
type asset struct {
	id       string
	lods     map[LOD][]byte
	nerf     []byte
	nerfFmt  NeRFFormat
	hasNeRF  bool
}

// Manager is the process-wide asset catalog.
type Manager struct {
	mu      sync.RWMutex
	assets  map[string]*asset
	rootDir string
	gen     *lodgen.Generator
	metrics *metrics.Metrics

	inflightMu sync.Mutex
	inflight   map[string]chan struct{} // assetId -> closed when generation completes
}

// New scans rootDir, discovering one asset per sub-directory, and ensures
// MEDIUM/LOW exist for every asset that has a HIGH tier (generating via gen
// when the cache doesn't already have them). A missing asset root is fatal
// at init
func New(rootDir string, gen *lodgen.Generator, m *metrics.Metrics) (*Manager, error) {
	info, err := os.Stat(rootDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("assets: root directory missing: %w", err)
	}

	mgr := &Manager{
		assets:   make(map[string]*asset),
		rootDir:  rootDir,
		gen:      gen,
		metrics:  m,
		inflight: make(map[string]chan struct{}),
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		a, err := mgr.discover(e.Name())
		if err != nil {
			slog.Warn("skipping asset directory", "asset_id", e.Name(), "error", err)
			continue
		}
		mgr.assets[a.id] = a
	}

	return mgr, nil
}

func (m *Manager) discover(assetID string) (*asset, error) {
	dir := filepath.Join(m.rootDir, assetID)
	a := &asset{id: assetID, lods: make(map[LOD][]byte)}

	tierFiles := map[LOD]string{HIGH: "high", MEDIUM: "medium", LOW: "low"}
	for tier, stem := range tierFiles {
		if data, ok := readGlob(dir, stem); ok {
			a.lods[tier] = data
		}
	}

	for _, ext := range []string{"splat", "ply", "ksplat"} {
		path := filepath.Join(dir, "nerf."+ext)
		if data, err := os.ReadFile(path); err == nil {
			a.nerf = data
			a.nerfFmt = NeRFFormat(ext)
			a.hasNeRF = true
			break
		}
	}

	if len(a.lods) == 0 {
		return nil, fmt.Errorf("no LOD files found in %s", dir)
	}

	if _, hasHigh := a.lods[HIGH]; hasHigh {
		_, hasMedium := a.lods[MEDIUM]
		_, hasLow := a.lods[LOW]
		if !hasMedium || !hasLow {
			m.ensureGenerated(a, dir)
		}
	}

	return a, nil
}

func readGlob(dir, stem string) ([]byte, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, stem+".*"))
	if len(matches) == 0 {
		return nil, false
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false
	}
	return data, true
}

// ensureGenerated fills in missing MEDIUM/LOW for a newly discovered asset,
// writing the produced bytes both to the cache (via Generator) and back
// into the asset directory
func (m *Manager) ensureGenerated(a *asset, dir string) {
	if m.gen == nil {
		return
	}
	res, err := m.gen.Generate(context.Background(), a.id, a.lods[HIGH])
	if err != nil {
		slog.Warn("LOD generation failed for discovered asset", "asset_id", a.id, "error", err)
		return
	}
	if _, ok := a.lods[MEDIUM]; !ok {
		a.lods[MEDIUM] = res.Medium
		_ = os.WriteFile(filepath.Join(dir, "medium.glb"), res.Medium, 0o644)
	}
	if _, ok := a.lods[LOW]; !ok {
		a.lods[LOW] = res.Low
		_ = os.WriteFile(filepath.Join(dir, "low.glb"), res.Low, 0o644)
	}
}

// List returns every discovered/uploaded asset's id, available LODs and
// whether it carries a NeRF buffer.
type Listing struct {
	AssetID string
	LODs    []LOD
	HasNeRF bool
}

func (m *Manager) List() []Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Listing, 0, len(m.assets))
	for id, a := range m.assets {
		lods := make([]LOD, 0, len(a.lods))
		for l := range a.lods {
			lods = append(lods, l)
		}
		out = append(out, Listing{AssetID: id, LODs: lods, HasNeRF: a.hasNeRF})
	}
	return out
}

// Get returns bytes for (assetID, requested), falling back through the
// documented order when the requested tier is absent. It also returns the
// LOD actually served. This never fails once init completes, except for a
// genuinely unknown assetID or a mid-generation wait that was cancelled via
// ctx.
func (m *Manager) Get(ctx context.Context, assetID string, requested LOD) ([]byte, LOD, error) {
	if err := m.waitForInflight(ctx, assetID); err != nil {
		return nil, "", err
	}

	m.mu.RLock()
	a, ok := m.assets[assetID]
	m.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}

	if data, ok := a.lods[requested]; ok {
		return data, requested, nil
	}
	for _, next := range fallbackOrder[requested] {
		if data, ok := a.lods[next]; ok {
			return data, next, nil
		}
	}
	return nil, "", fmt.Errorf("assets: no LOD available for %s", assetID)
}

// GetNeRF returns the point-cloud buffer and format tag for assetID, or
// false if absent.
func (m *Manager) GetNeRF(assetID string) ([]byte, NeRFFormat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	if !ok || !a.hasNeRF {
		return nil, "", false
	}
	return a.nerf, a.nerfFmt, true
}

// waitForInflight blocks if assetID is currently mid-generation rather than
// returning an asset_error retry hint to the caller.
func (m *Manager) waitForInflight(ctx context.Context, assetID string) error {
	m.inflightMu.Lock()
	ch, ok := m.inflight[assetID]
	m.inflightMu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
