package bandwidth

import (
	"testing"

	"github.com/streamxr/core/internal/assets"
)

func testConfig() Config {
	return Config{
		SmoothingFactor:  0.3,
		MinSamples:       2,
		HighThresholdBps: 500000,
		LowThresholdBps:  100000,
	}
}

func TestDecideColdStartIsLow(t *testing.T) {
	e := New(testConfig())
	if got := e.Decide(); got != assets.LOW {
		t.Fatalf("cold start: got %v, want LOW", got)
	}
	e.Sample(1500000)
	if got := e.Decide(); got != assets.LOW {
		t.Fatalf("single sample below MinSamples: got %v, want LOW", got)
	}
}

func TestDecideHighAfterWarmup(t *testing.T) {
	e := New(testConfig())
	e.Sample(1500000)
	e.Sample(1500000)
	if got := e.Decide(); got != assets.HIGH {
		t.Fatalf("after two high samples: got %v, want HIGH", got)
	}
}

func TestDecideBelowHighThresholdIsLow(t *testing.T) {
	e := New(testConfig())
	e.Sample(200000)
	e.Sample(200000)
	if got := e.Decide(); got != assets.LOW {
		t.Fatalf("mid-band estimate: got %v, want LOW (estimator never produces MEDIUM)", got)
	}
}

func TestSampleEMAConverges(t *testing.T) {
	e := New(testConfig())
	for i := 0; i < 50; i++ {
		e.Sample(1000000)
	}
	if diff := 1000000 - e.Estimate(); diff > 1 || diff < -1 {
		t.Fatalf("EMA did not converge to steady input: estimate=%v", e.Estimate())
	}
}

func TestFirstSampleSeedsEstimateDirectly(t *testing.T) {
	e := New(testConfig())
	e.Sample(42.0)
	if e.Estimate() != 42.0 {
		t.Fatalf("first sample should seed estimate exactly: got %v", e.Estimate())
	}
}

func TestForcedTierOverridesDecision(t *testing.T) {
	e := New(testConfig())
	e.Sample(1500000)
	e.Sample(1500000)
	low := assets.LOW
	e.SetForcedTier(&low)
	if got := e.Decide(); got != assets.LOW {
		t.Fatalf("forced tier should win over a HIGH-qualifying estimate: got %v", got)
	}
	e.SetForcedTier(nil)
	if got := e.Decide(); got != assets.HIGH {
		t.Fatalf("clearing forced tier should restore the EMA decision: got %v", got)
	}
}

func TestSampleBlendedAverages(t *testing.T) {
	e := New(testConfig())
	e.SampleBlended(1000000, 0)
	if e.Estimate() != 500000 {
		t.Fatalf("blended sample should seed at the 50/50 average: got %v", e.Estimate())
	}
}
