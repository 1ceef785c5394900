// Package capture gates product capture on the scale's stability
// verdict and accumulates captured line items into a record ready for
// the local queue.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/weighbridge/internal/types"
)

var (
	// ErrNotStable rejects a capture while the scale reading is
	// fluctuating. User-facing; no side effect.
	ErrNotStable = errors.New("scale reading is not stable")

	// ErrNoReading rejects a capture before any sample has been decoded.
	ErrNoReading = errors.New("no scale reading available")

	// ErrIndexOutOfRange rejects a delete of a line item that does not
	// exist.
	ErrIndexOutOfRange = errors.New("line item index out of range")

	// ErrEmptyRecord rejects saving a record with no captured items.
	ErrEmptyRecord = errors.New("record has no line items")
)

// Input is the per-item form state consumed by a capture.
type Input struct {
	ProductType string  `json:"product_type"`
	Quantity    int     `json:"quantity"`
	LengthCm    float64 `json:"length_cm"`
	WidthCm     float64 `json:"width_cm"`
	HeightCm    float64 `json:"height_cm"`
}

// Session accumulates captured line items for one in-progress record.
// Capturing freezes the current reading into a line item; the classifier
// state is never touched from here.
type Session struct {
	mu    sync.Mutex
	items []types.LineItem
	tare  float64
}

// NewSession creates an empty capture session.
func NewSession() *Session {
	return &Session{}
}

// Capture freezes the current scale reading into a line item and
// appends it. The reading is consumed as the already-decoded numeric
// value; re-parsing a display string would double-round it.
func (s *Session) Capture(state types.ScaleState, in Input) (types.LineItem, error) {
	if !state.Stable {
		return types.LineItem{}, ErrNotStable
	}
	if state.Reading == nil {
		return types.LineItem{}, ErrNoReading
	}

	item := types.LineItem{
		ProductType: in.ProductType,
		Quantity:    in.Quantity,
		WeightKg:    *state.Reading,
		LengthCm:    in.LengthCm,
		WidthCm:     in.WidthCm,
		HeightCm:    in.HeightCm,
		// Raw volume; no dimensional-weight divisor.
		VolumeCm3: in.LengthCm * in.WidthCm * in.HeightCm * float64(in.Quantity),
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	return item, nil
}

// Delete removes a line item by index before save. Totals renormalize
// on the next read.
func (s *Session) Delete(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return nil
}

// SetTareWeight sets the tare weight subtracted from the summed weight.
func (s *Session) SetTareWeight(kg float64) {
	s.mu.Lock()
	s.tare = kg
	s.mu.Unlock()
}

// TareWeight returns the current tare weight.
func (s *Session) TareWeight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tare
}

// Items returns a copy of the captured line items.
func (s *Session) Items() []types.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]types.LineItem, len(s.items))
	copy(items, s.items)
	return items
}

// Totals derives the aggregate quantity, weight, net weight, and volume
// from the current items and tare weight.
func (s *Session) Totals() types.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *Session) totalsLocked() types.Totals {
	var t types.Totals
	for _, item := range s.items {
		t.Quantity += item.Quantity
		t.WeightKg += item.WeightKg
		t.VolumeCm3 += item.VolumeCm3
	}
	t.NetWeightKg = t.WeightKg - s.tare
	return t
}

// BuildRecord assembles a PendingRecord from the session and the
// form-level metadata. The session is not mutated; the caller clears it
// with Clear once the record is durably stored, so a failed save leaves
// the captured items intact. The local id is a fresh ULID; it is never
// reused and doubles as the remote idempotency key.
func (s *Session) BuildRecord(meta types.RecordMetadata, now time.Time) (types.PendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return types.PendingRecord{}, ErrEmptyRecord
	}

	items := make([]types.LineItem, len(s.items))
	copy(items, s.items)

	return types.PendingRecord{
		LocalID:      ulid.Make().String(),
		CreatedAt:    now.UTC(),
		LineItems:    items,
		Totals:       s.totalsLocked(),
		TareWeightKg: s.tare,
		Metadata:     meta,
		SyncState:    types.SyncStatePending,
	}, nil
}

// Clear empties the session for the next record.
func (s *Session) Clear() {
	s.mu.Lock()
	s.items = nil
	s.tare = 0
	s.mu.Unlock()
}
