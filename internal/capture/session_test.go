package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/weighbridge/internal/types"
)

func stableState(reading float64) types.ScaleState {
	now := time.Now()
	return types.ScaleState{Reading: &reading, Stable: true, LastUpdated: &now}
}

func TestCapture_RejectsUnstableReading(t *testing.T) {
	s := NewSession()
	reading := 10.5
	state := types.ScaleState{Reading: &reading, Stable: false}

	_, err := s.Capture(state, Input{ProductType: "carton", Quantity: 1})
	if !errors.Is(err, ErrNotStable) {
		t.Fatalf("Capture() error = %v, want ErrNotStable", err)
	}
	if len(s.Items()) != 0 {
		t.Error("rejected capture must not append an item")
	}
}

func TestCapture_RejectsMissingReading(t *testing.T) {
	s := NewSession()
	state := types.ScaleState{Stable: true}

	_, err := s.Capture(state, Input{ProductType: "carton", Quantity: 1})
	if !errors.Is(err, ErrNoReading) {
		t.Fatalf("Capture() error = %v, want ErrNoReading", err)
	}
}

func TestCapture_FreezesReadingAndComputesVolume(t *testing.T) {
	s := NewSession()

	item, err := s.Capture(stableState(12.34), Input{
		ProductType: "pallet",
		Quantity:    3,
		LengthCm:    100,
		WidthCm:     80,
		HeightCm:    50,
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if item.WeightKg != 12.34 {
		t.Errorf("WeightKg = %v, want 12.34", item.WeightKg)
	}
	if item.VolumeCm3 != 100*80*50*3 {
		t.Errorf("VolumeCm3 = %v, want %v", item.VolumeCm3, 100*80*50*3)
	}
}

func TestCapture_ZeroDimensionYieldsZeroVolume(t *testing.T) {
	s := NewSession()

	item, err := s.Capture(stableState(5.00), Input{
		ProductType: "sack",
		Quantity:    2,
		LengthCm:    60,
		WidthCm:     0,
		HeightCm:    40,
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if item.VolumeCm3 != 0 {
		t.Errorf("VolumeCm3 = %v, want 0", item.VolumeCm3)
	}
}

func TestTotals_SumAndNetWeight(t *testing.T) {
	s := NewSession()
	s.SetTareWeight(1.5)

	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 2, LengthCm: 10, WidthCm: 10, HeightCm: 10})
	mustCapture(t, s, 4.25, Input{ProductType: "box", Quantity: 1, LengthCm: 20, WidthCm: 10, HeightCm: 5})

	totals := s.Totals()
	if totals.Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", totals.Quantity)
	}
	if totals.WeightKg != 14.25 {
		t.Errorf("WeightKg = %v, want 14.25", totals.WeightKg)
	}
	if totals.NetWeightKg != 12.75 {
		t.Errorf("NetWeightKg = %v, want 12.75", totals.NetWeightKg)
	}
	if totals.VolumeCm3 != 2000+1000 {
		t.Errorf("VolumeCm3 = %v, want 3000", totals.VolumeCm3)
	}
}

func TestDelete_RenormalizesTotals(t *testing.T) {
	s := NewSession()
	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 1})
	mustCapture(t, s, 20.00, Input{ProductType: "box", Quantity: 1})

	if err := s.Delete(0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	items := s.Items()
	if len(items) != 1 || items[0].WeightKg != 20.00 {
		t.Fatalf("items after delete = %+v, want the 20.00 item only", items)
	}
	if got := s.Totals().WeightKg; got != 20.00 {
		t.Errorf("WeightKg = %v, want 20.00", got)
	}
}

func TestDelete_IndexOutOfRange(t *testing.T) {
	s := NewSession()
	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 1})

	for _, index := range []int{-1, 1, 99} {
		if err := s.Delete(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Delete(%d) error = %v, want ErrIndexOutOfRange", index, err)
		}
	}
}

func TestBuildRecord_RejectsEmptySession(t *testing.T) {
	s := NewSession()

	_, err := s.BuildRecord(types.RecordMetadata{Category: "cargo"}, time.Now())
	if !errors.Is(err, ErrEmptyRecord) {
		t.Fatalf("BuildRecord() error = %v, want ErrEmptyRecord", err)
	}
}

func TestBuildRecord_Assembles(t *testing.T) {
	s := NewSession()
	s.SetTareWeight(0.5)
	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 2})

	meta := types.RecordMetadata{Category: "cargo", PaymentStatus: "paid"}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record, err := s.BuildRecord(meta, now)
	if err != nil {
		t.Fatalf("BuildRecord() error = %v", err)
	}

	if record.LocalID == "" {
		t.Error("LocalID must be generated")
	}
	if len(record.LocalID) != 26 {
		t.Errorf("LocalID length = %d, want 26 (ULID)", len(record.LocalID))
	}
	if !record.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", record.CreatedAt, now)
	}
	if record.SyncState != types.SyncStatePending {
		t.Errorf("SyncState = %v, want pending", record.SyncState)
	}
	if len(record.LineItems) != 1 {
		t.Fatalf("LineItems = %d, want 1", len(record.LineItems))
	}
	if record.TareWeightKg != 0.5 {
		t.Errorf("TareWeightKg = %v, want 0.5", record.TareWeightKg)
	}
	if record.Totals.NetWeightKg != 9.5 {
		t.Errorf("NetWeightKg = %v, want 9.5", record.Totals.NetWeightKg)
	}
	if record.Metadata.Category != "cargo" {
		t.Errorf("Category = %q, want cargo", record.Metadata.Category)
	}

	// Building is read-only; the items survive until the caller confirms
	// the record is durably stored.
	if len(s.Items()) != 1 {
		t.Error("session items must survive a build")
	}
	if s.TareWeight() != 0.5 {
		t.Error("tare must survive a build")
	}
}

func TestClear_EmptiesSession(t *testing.T) {
	s := NewSession()
	s.SetTareWeight(0.5)
	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 1})

	s.Clear()

	if len(s.Items()) != 0 {
		t.Error("items must clear")
	}
	if s.TareWeight() != 0 {
		t.Error("tare must reset")
	}
	if _, err := s.BuildRecord(types.RecordMetadata{Category: "cargo"}, time.Now()); !errors.Is(err, ErrEmptyRecord) {
		t.Errorf("BuildRecord() after Clear error = %v, want ErrEmptyRecord", err)
	}
}

func TestBuildRecord_LocalIDsAreUnique(t *testing.T) {
	s := NewSession()
	mustCapture(t, s, 10.00, Input{ProductType: "box", Quantity: 1})

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		record, err := s.BuildRecord(types.RecordMetadata{Category: "cargo"}, time.Now())
		if err != nil {
			t.Fatalf("BuildRecord() error = %v", err)
		}
		if seen[record.LocalID] {
			t.Fatalf("duplicate LocalID %s", record.LocalID)
		}
		seen[record.LocalID] = true
	}
}

func mustCapture(t *testing.T, s *Session, reading float64, in Input) {
	t.Helper()
	if _, err := s.Capture(stableState(reading), in); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
}
