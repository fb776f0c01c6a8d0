// Package lodgen implements the LOD Generator: given a HIGH
// source mesh buffer, produces MEDIUM and LOW variants by shelling out to an
// external decimation tool, falling back to the source bytes unchanged when
// the tool is missing or fails. Availability is checked once at
// construction and remembered rather than re-probed on every call.
// Generation runs in the calling goroutine and blocks it; a weighted
// semaphore bounds how many generations run at once.
package lodgen

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/streamxr/core/internal/metrics"
)

// Tier mirrors the LOD tiers a generator can produce (never HIGH — that's
// always the source).
type Tier string

const (
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// decimateRatio / tolerance target
var targets = map[Tier]struct {
	ratio     float64
	tolerance float64
}{
	TierMedium: {ratio: 0.5, tolerance: 5e-4},
	TierLow:    {ratio: 0.1, tolerance: 1e-3},
}

// Generator produces MEDIUM/LOW variants and persists them into a cache
// directory keyed by assetId.
type Generator struct {
	decimatorPath string
	cacheDir      string
	available     bool
	sem           *semaphore.Weighted
	metrics       *metrics.Metrics
}

// New creates a Generator. cacheDir must be writable — callers should treat
// a write failure at init as fatal ("cache directory
// unwritable -> fatal at init").
func New(decimatorPath, cacheDir string, maxConcurrent int, m *metrics.Metrics) (*Generator, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}

	available := true
	if decimatorPath != "" {
		if _, err := exec.LookPath(decimatorPath); err != nil {
			slog.Warn("decimator tool not found, LOD generation will fall back to source bytes", "path", decimatorPath, "error", err)
			available = false
		}
	} else {
		available = false
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Generator{
		decimatorPath: decimatorPath,
		cacheDir:      cacheDir,
		available:     available,
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		metrics:       m,
	}, nil
}

// Result holds the generated MEDIUM/LOW buffers.
type Result struct {
	Medium []byte
	Low    []byte
}

// CachePaths returns the on-disk cache paths for an asset's MEDIUM/LOW
// variants.
func (g *Generator) CachePaths(assetID string) (medium, low string) {
	dir := filepath.Join(g.cacheDir, assetID)
	return filepath.Join(dir, "medium.glb"), filepath.Join(dir, "low.glb")
}

// Generate produces MEDIUM and LOW buffers for assetID from source,
// preferring a cache hit if both files already exist. Callers MUST invoke
// this off the session's hot path — it blocks on an external
// process and on a bounded semaphore.
func (g *Generator) Generate(ctx context.Context, assetID string, source []byte) (*Result, error) {
	mediumPath, lowPath := g.CachePaths(assetID)

	if medium, low, ok := g.readCache(mediumPath, lowPath); ok {
		g.metrics.GenerationJobs.WithLabelValues("medium", "cache_hit").Inc()
		g.metrics.GenerationJobs.WithLabelValues("low", "cache_hit").Inc()
		return &Result{Medium: medium, Low: low}, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	start := time.Now()
	defer func() { g.metrics.GenerationLatency.Observe(time.Since(start).Seconds()) }()

	medium := g.generateTier(ctx, assetID, TierMedium, source)
	low := g.generateTier(ctx, assetID, TierLow, source)

	if err := g.persist(assetID, medium, low); err != nil {
		return nil, err
	}

	return &Result{Medium: medium, Low: low}, nil
}

func (g *Generator) readCache(mediumPath, lowPath string) (medium, low []byte, ok bool) {
	m, errM := os.ReadFile(mediumPath)
	l, errL := os.ReadFile(lowPath)
	if errM != nil || errL != nil {
		return nil, nil, false
	}
	return m, l, true
}

func (g *Generator) generateTier(ctx context.Context, assetID string, tier Tier, source []byte) []byte {
	if !g.available {
		slog.Warn("LOD generation unavailable, emitting source bytes unchanged", "asset_id", assetID, "tier", tier)
		return source
	}

	target := targets[tier]
	out, err := g.runDecimator(ctx, assetID, tier, target.ratio, target.tolerance, source)
	if err != nil {
		slog.Warn("LOD generation failed, falling back to source bytes", "asset_id", assetID, "tier", tier, "error", err)
		g.metrics.GenerationJobs.WithLabelValues(string(tier), "fallback").Inc()
		return source
	}

	g.metrics.GenerationJobs.WithLabelValues(string(tier), "generated").Inc()
	return out
}

// runDecimator invokes the external mesh-decimation tool. The tool is
// expected to read the source mesh from stdin and write the decimated
// result to stdout; ratio/tolerance are passed as flags. Its choice of
// texture resize (512px MEDIUM / 256px LOW) and geometry codec is opaque to
// StreamXR, which treats it as an external collaborator.
func (g *Generator) runDecimator(ctx context.Context, assetID string, tier Tier, ratio, tolerance float64, source []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, g.decimatorPath,
		"--asset-id", assetID,
		"--tier", string(tier),
		"--ratio", formatFloat(ratio),
		"--tolerance", formatFloat(tolerance),
	)
	cmd.Stdin = newByteReader(source)

	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyOutput
	}
	return out, nil
}

func (g *Generator) persist(assetID string, medium, low []byte) error {
	dir := filepath.Join(g.cacheDir, assetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	mediumPath, lowPath := g.CachePaths(assetID)
	if err := writeAtomic(mediumPath, medium); err != nil {
		return err
	}
	if err := writeAtomic(lowPath, low); err != nil {
		return err
	}
	return nil
}

// writeAtomic writes to a temp file then renames, so a concurrent reader
// never observes a partially written cache entry.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
