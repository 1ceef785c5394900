package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/hyperengineering/weighbridge/internal/config"
	"github.com/hyperengineering/weighbridge/internal/types"
)

// Classifier maintains a bounded FIFO window of recent decoded samples
// and emits a stability verdict per sample. "New sample arrived" and
// "inactivity tick fired" are mutually exclusive critical sections over
// the shared state; a single mutex enforces the single-writer
// discipline.
//
// The tolerances are calibration constants: the spread of the last 3
// samples decides tentative stability, a wider whole-window spread
// overrides the verdict to stable once enough history exists (prevents
// flicker near the threshold boundary), and a stable verdict sticks
// while consecutive samples stay close.
type Classifier struct {
	mu sync.Mutex

	windowSize          int
	spreadTolerance     float64
	hysteresisTolerance float64
	stickyTolerance     float64
	zeroEpsilon         float64
	inactivityTimeout   time.Duration

	window      []float64
	reading     *float64
	stable      bool
	lastRaw     float64
	lastSample  time.Time
	lastUpdated *time.Time
}

// NewClassifier creates a classifier from the scale calibration config.
func NewClassifier(cfg config.ScaleConfig) *Classifier {
	return &Classifier{
		windowSize:          cfg.WindowSize,
		spreadTolerance:     cfg.SpreadTolerance,
		hysteresisTolerance: cfg.HysteresisTolerance,
		stickyTolerance:     cfg.StickyTolerance,
		zeroEpsilon:         cfg.ZeroEpsilon,
		inactivityTimeout:   time.Duration(cfg.InactivityTimeout),
	}
}

// Observe feeds one decoded sample into the window and returns the
// updated verdict. Samples must arrive in order; the window and the
// sticky rule are order-dependent.
func (c *Classifier) Observe(value float64, now time.Time) types.ScaleState {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A long gap means the device went quiet; stale history must not
	// vouch for the new sample.
	if !c.lastSample.IsZero() && now.Sub(c.lastSample) >= c.inactivityTimeout {
		c.window = c.window[:0]
		c.stable = false
	}

	c.push(value)

	verdict := c.evaluate(value)

	v := value
	c.reading = &v
	c.stable = verdict
	c.lastRaw = value
	c.lastSample = now
	t := now
	c.lastUpdated = &t

	return c.stateLocked()
}

// Tick advances the inactivity check without new data. After the
// inactivity timeout the window is cleared and the verdict forced
// unstable; the last reading stays visible.
func (c *Classifier) Tick(now time.Time) types.ScaleState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastSample.IsZero() && now.Sub(c.lastSample) >= c.inactivityTimeout {
		if len(c.window) > 0 || c.stable {
			c.window = c.window[:0]
			c.stable = false
			t := now
			c.lastUpdated = &t
		}
	}

	return c.stateLocked()
}

// Reset clears the window and verdict. Operator-triggered recovery from
// a stuck state; the reading is cleared too so capture is blocked until
// fresh data arrives.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = c.window[:0]
	c.reading = nil
	c.stable = false
	c.lastRaw = 0
	c.lastSample = time.Time{}
	c.lastUpdated = nil
}

// State returns a copy of the current verdict.
func (c *Classifier) State() types.ScaleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Classifier) stateLocked() types.ScaleState {
	state := types.ScaleState{Stable: c.stable}
	if c.reading != nil {
		v := *c.reading
		state.Reading = &v
	}
	if c.lastUpdated != nil {
		t := *c.lastUpdated
		state.LastUpdated = &t
	}
	return state
}

// push appends a sample with FIFO eviction at the window cap.
func (c *Classifier) push(value float64) {
	if len(c.window) == c.windowSize {
		copy(c.window, c.window[1:])
		c.window = c.window[:c.windowSize-1]
	}
	c.window = append(c.window, value)
}

// evaluate computes the verdict for the sample just pushed. Caller holds
// the mutex; c.stable and c.lastRaw still describe the previous sample.
func (c *Classifier) evaluate(value float64) bool {
	n := len(c.window)

	if n >= 2 {
		last3 := c.window[maxInt(0, n-3):]

		// Zero is never reported stable, regardless of spread.
		if c.allZero(last3) {
			return false
		}

		stable := spread(last3) <= c.spreadTolerance

		// Wider tolerance once enough history exists.
		if n >= 3 && spread(c.window) <= c.hysteresisTolerance {
			stable = true
		}

		if !stable && c.sticky(value) {
			stable = true
		}
		return stable
	}

	// Window too short to evaluate spreads; only the sticky rule can
	// keep a previously stable verdict alive.
	return c.sticky(value)
}

// sticky keeps a stable verdict while consecutive samples stay within
// the sticky tolerance. A zero reading never sticks.
func (c *Classifier) sticky(value float64) bool {
	return c.stable && !c.isZero(value) && math.Abs(value-c.lastRaw) <= c.stickyTolerance
}

func (c *Classifier) isZero(v float64) bool {
	return math.Abs(v) < c.zeroEpsilon
}

func (c *Classifier) allZero(values []float64) bool {
	for _, v := range values {
		if !c.isZero(v) {
			return false
		}
	}
	return true
}

func spread(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
