package telemetry

import (
	"testing"
	"time"

	"github.com/hyperengineering/weighbridge/internal/config"
)

func testScaleConfig() config.ScaleConfig {
	return config.ScaleConfig{
		WindowSize:          5,
		SpreadTolerance:     0.10,
		HysteresisTolerance: 0.20,
		StickyTolerance:     0.15,
		ZeroEpsilon:         0.01,
		InactivityTimeout:   config.Duration(5 * time.Second),
		TickInterval:        config.Duration(1 * time.Second),
		SampleBuffer:        64,
	}
}

// observeSeries feeds samples 100ms apart and returns the final state.
func observeSeries(t *testing.T, c *Classifier, values []float64) (last time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range values {
		c.Observe(v, now)
		last = now
		now = now.Add(100 * time.Millisecond)
	}
	return last
}

func TestClassifier_TightSeriesBecomesStable(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{10.02, 10.05, 10.01})

	state := c.State()
	if !state.Stable {
		t.Fatal("expected stable after tight series")
	}
	if state.Reading == nil || *state.Reading != 10.01 {
		t.Errorf("Reading = %v, want 10.01", state.Reading)
	}
}

func TestClassifier_SingleSampleNotStable(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	state := c.Observe(10.00, time.Now())

	if state.Stable {
		t.Error("single sample must not be stable")
	}
	if state.Reading == nil || *state.Reading != 10.00 {
		t.Errorf("Reading = %v, want 10.00", state.Reading)
	}
}

func TestClassifier_ZeroNeverStable(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{0.00, 0.00, 0.00, 0.00, 0.00})

	if c.State().Stable {
		t.Error("an empty scale must never report stable")
	}
}

func TestClassifier_NearZeroWithinEpsilonNeverStable(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{0.005, -0.003, 0.008})

	if c.State().Stable {
		t.Error("readings within the zero epsilon must never report stable")
	}
}

func TestClassifier_WideSpreadNotStable(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{10.00, 10.30, 10.60})

	if c.State().Stable {
		t.Error("spread above tolerance must not be stable")
	}
}

func TestClassifier_HysteresisOverridesRecentSpread(t *testing.T) {
	// Last 3 spread is 0.17 (> 0.10) but the whole window stays within
	// the 0.20 hysteresis band, so the verdict is stable.
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{10.00, 10.00, 10.00, 10.05, 10.17})

	if !c.State().Stable {
		t.Error("whole-window spread within hysteresis must be stable")
	}
}

func TestClassifier_StickyKeepsVerdictThroughSmallDrift(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{9.90, 10.00})
	if !c.State().Stable {
		t.Fatal("expected stable before drift")
	}

	// 10.14 is within the 0.15 sticky tolerance of the prior sample.
	now := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	if state := c.Observe(10.14, now); !state.Stable {
		t.Error("drift within sticky tolerance must keep the verdict")
	}

	// 10.40 breaks the sticky band and the window spread.
	if state := c.Observe(10.40, now.Add(100*time.Millisecond)); state.Stable {
		t.Error("drift beyond sticky tolerance must drop the verdict")
	}
}

func TestClassifier_StickyNeverAppliesToZero(t *testing.T) {
	cfg := testScaleConfig()
	cfg.StickyTolerance = 50 // wide enough to cover the drop to zero
	c := NewClassifier(cfg)
	observeSeries(t, c, []float64{10.00, 10.00, 10.00})
	if !c.State().Stable {
		t.Fatal("expected stable before unload")
	}

	now := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	if state := c.Observe(0.00, now); state.Stable {
		t.Error("a zero reading must never stick stable")
	}
}

func TestClassifier_WindowEvictsOldest(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	// Five noisy samples, then three tight ones. The tight tail must win
	// once the noise is evicted.
	last := observeSeries(t, c, []float64{1, 5, 9, 3, 7, 10.00, 10.02, 10.01})
	_ = last

	state := c.State()
	if !state.Stable {
		t.Error("tight tail should be stable once noisy samples are evicted")
	}
	if len(c.window) != 5 {
		t.Errorf("window length = %d, want 5", len(c.window))
	}
}

func TestClassifier_InactivityTickClearsVerdictKeepsReading(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	last := observeSeries(t, c, []float64{10.00, 10.01, 10.02})
	if !c.State().Stable {
		t.Fatal("expected stable before inactivity")
	}

	// Under the timeout: nothing changes.
	state := c.Tick(last.Add(4 * time.Second))
	if !state.Stable {
		t.Fatal("tick before the inactivity timeout must not clear the verdict")
	}

	// At the timeout: verdict cleared, reading retained.
	state = c.Tick(last.Add(5 * time.Second))
	if state.Stable {
		t.Error("tick at the inactivity timeout must clear the verdict")
	}
	if state.Reading == nil || *state.Reading != 10.02 {
		t.Errorf("Reading = %v, want 10.02 retained through inactivity", state.Reading)
	}
}

func TestClassifier_StaleWindowClearedOnNextSample(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	last := observeSeries(t, c, []float64{10.00, 10.01, 10.02})

	// A sample after a long gap must not be vouched for by stale history.
	state := c.Observe(10.02, last.Add(10*time.Second))
	if state.Stable {
		t.Error("first sample after inactivity must not be stable")
	}
}

func TestClassifier_Reset(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{10.00, 10.01, 10.02})

	c.Reset()

	state := c.State()
	if state.Stable {
		t.Error("reset must clear the verdict")
	}
	if state.Reading != nil {
		t.Error("reset must clear the reading")
	}
	if state.LastUpdated != nil {
		t.Error("reset must clear the timestamp")
	}
}

func TestClassifier_RecoversAfterReset(t *testing.T) {
	c := NewClassifier(testScaleConfig())
	observeSeries(t, c, []float64{10.00, 10.50, 11.00})
	c.Reset()
	observeSeries(t, c, []float64{12.00, 12.01, 12.02})

	state := c.State()
	if !state.Stable {
		t.Error("classifier should stabilize on fresh data after reset")
	}
	if state.Reading == nil || *state.Reading != 12.02 {
		t.Errorf("Reading = %v, want 12.02", state.Reading)
	}
}
