// Package bandwidth implements the Adaptive Streaming Estimator:
// a per-session exponential moving average over measured/reported bandwidth
// samples, mapped to a LOD tier decision. Each Estimator is owned
// exclusively by its session — no locking.
package bandwidth

import (
	"time"

	"github.com/streamxr/core/internal/assets"
)

// Config carries the EMA smoothing factor and the high/low throughput
// thresholds used to pick a LOD tier.
type Config struct {
	SmoothingFactor  float64
	MinSamples       int
	HighThresholdBps float64
	LowThresholdBps  float64
}

// Estimator tracks one session's bandwidth EMA.
type Estimator struct {
	cfg        Config
	estimate   float64
	samples    int
	lastUpdate time.Time
	forcedTier *assets.LOD
}

// New creates an Estimator bound to cfg.
func New(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Sample folds a bandwidth-per-second measurement into the EMA:
// `estimate <- alpha*sample + (1-alpha)*estimate`. The very first sample
// seeds the estimate directly, since there's nothing to decay from yet.
func (e *Estimator) Sample(bps float64) {
	if e.samples == 0 {
		e.estimate = bps
	} else {
		a := e.cfg.SmoothingFactor
		e.estimate = a*bps + (1-a)*e.estimate
	}
	e.samples++
	e.lastUpdate = time.Now()
}

// SampleBlended folds a server-measured sample and a client-reported sample,
// blended 50/50, into the EMA — used when request_asset's own transfer
// timing and a concurrent bandwidth-metrics report are both available.
func (e *Estimator) SampleBlended(serverBps, clientBps float64) {
	e.Sample(0.5*serverBps + 0.5*clientBps)
}

// SetForcedTier overrides the decision (simulation mode); pass nil to clear.
func (e *Estimator) SetForcedTier(lod *assets.LOD) {
	e.forcedTier = lod
}

// ForcedTier reports the current override, if any.
func (e *Estimator) ForcedTier() *assets.LOD {
	return e.forcedTier
}

// Decide returns the LOD tier for the current estimate.
func (e *Estimator) Decide() assets.LOD {
	if e.forcedTier != nil {
		return *e.forcedTier
	}
	if e.samples < e.cfg.MinSamples {
		return assets.LOW
	}
	if e.estimate >= e.cfg.HighThresholdBps {
		return assets.HIGH
	}
	// estimate >= LowThreshold still returns LOW — MEDIUM is
	// never produced by this estimator (nor by the foveated selector); it is
	// served only for an explicit lod request or through Get's fallback.
	return assets.LOW
}

// Estimate returns the current EMA value, for metrics/tests.
func (e *Estimator) Estimate() float64 { return e.estimate }

// Samples returns the number of samples folded so far.
func (e *Estimator) Samples() int { return e.samples }

// MinSamples returns the configured minimum sample count before Decide will
// produce anything other than the cold-start LOW.
func (e *Estimator) MinSamples() int { return e.cfg.MinSamples }
