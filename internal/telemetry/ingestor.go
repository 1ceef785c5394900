package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/weighbridge/internal/config"
)

// RawSample is one transport-level payload with its arrival timestamp.
// Ephemeral; never stored.
type RawSample struct {
	Payload    any
	ReceivedAt time.Time
}

// Ingestor is the single consumer between the push-style transport
// source and the classifier. Samples are processed strictly in arrival
// order; the inactivity ticker and sample arrival are serialized by the
// loop itself, so the classifier never sees interleaved updates from
// this path.
type Ingestor struct {
	classifier *Classifier
	samples    chan RawSample

	minGap       time.Duration
	tickInterval time.Duration

	lastAccepted time.Time
}

// NewIngestor creates an ingestor feeding the given classifier.
func NewIngestor(classifier *Classifier, cfg config.ScaleConfig) *Ingestor {
	buffer := cfg.SampleBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Ingestor{
		classifier:   classifier,
		samples:      make(chan RawSample, buffer),
		minGap:       time.Duration(cfg.MinSampleGap),
		tickInterval: time.Duration(cfg.TickInterval),
	}
}

// Offer hands a raw sample to the ingestor without blocking the
// transport. When the buffer is full the sample is dropped; the stream
// is lossy by nature and a fresher sample is always behind it.
func (i *Ingestor) Offer(sample RawSample) bool {
	select {
	case i.samples <- sample:
		return true
	default:
		slog.Warn("sample buffer full, dropping sample",
			"component", "telemetry",
			"action", "sample_dropped",
		)
		return false
	}
}

// Run consumes samples until the context is cancelled. The inactivity
// check runs on its own periodic tick and may race with an arriving
// sample; the select makes the two mutually exclusive. Lifecycle
// logging is the launcher's job.
func (i *Ingestor) Run(ctx context.Context) {
	ticker := time.NewTicker(i.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-i.samples:
			i.process(sample)
		case now := <-ticker.C:
			i.classifier.Tick(now)
		}
	}
}

// process decodes and classifies one sample. Decode failures are
// absorbed; the system degrades to "no reading" rather than crashing.
func (i *Ingestor) process(sample RawSample) {
	now := sample.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}

	// Explicit minimum inter-sample gap; replaces the transport-side
	// debounce with a visible parameter.
	if i.minGap > 0 && !i.lastAccepted.IsZero() && now.Sub(i.lastAccepted) < i.minGap {
		return
	}

	reading, err := Decode(sample.Payload, now)
	if err != nil {
		slog.Debug("undecodable sample dropped",
			"component", "telemetry",
			"action", "decode_failed",
			"error", err,
		)
		return
	}

	i.lastAccepted = now
	state := i.classifier.Observe(reading.Value, now)

	slog.Debug("sample classified",
		"component", "telemetry",
		"action", "sample_classified",
		"value", reading.Value,
		"stable", state.Stable,
	)
}
