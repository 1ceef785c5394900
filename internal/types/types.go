// Package types contains the shared domain types for the weighbridge
// service: scale state, captured line items, pending records, and sync
// reporting. All types are JSON-tagged for the HTTP API and for storage
// in the local queue.
package types

import "time"

// SyncState tracks a pending record's position in the upload lifecycle.
type SyncState string

const (
	// SyncStatePending marks a record that has not been acknowledged by
	// the remote store. Newly enqueued records start here.
	SyncStatePending SyncState = "pending"

	// SyncStateSynced marks a record the remote store has acknowledged.
	// Only synced records are eligible for pruning.
	SyncStateSynced SyncState = "synced"

	// SyncStateFailed marks a record whose last upload attempt failed.
	// Failed records remain retry-eligible; the state is advisory.
	SyncStateFailed SyncState = "failed"
)

// ScaleState is the classifier's externally visible verdict. Reading is
// always the most recent decoded value regardless of stability; a nil
// Reading implies Stable is false.
type ScaleState struct {
	Reading     *float64   `json:"reading"`
	Stable      bool       `json:"stable"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// LineItem is a single captured product line. Immutable once appended
// except for explicit deletion by index before save.
type LineItem struct {
	ProductType string  `json:"product_type"`
	Quantity    int     `json:"quantity"`
	WeightKg    float64 `json:"weight_kg"`
	LengthCm    float64 `json:"length_cm"`
	WidthCm     float64 `json:"width_cm"`
	HeightCm    float64 `json:"height_cm"`
	VolumeCm3   float64 `json:"volume_cm3"`
}

// Totals are derived from the line items and tare weight. NetWeightKg is
// the summed weight minus tare.
type Totals struct {
	Quantity    int     `json:"quantity"`
	WeightKg    float64 `json:"weight_kg"`
	NetWeightKg float64 `json:"net_weight_kg"`
	VolumeCm3   float64 `json:"volume_cm3"`
}

// Party identifies a sender or receiver. The field layout follows the
// station UI; the engine carries it opaquely.
type Party struct {
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	IDNumber      string `json:"id_number,omitempty"`
	StaffName     string `json:"staff_name,omitempty"`
	Location      string `json:"location,omitempty"`
	ExactLocation string `json:"exact_location,omitempty"`
}

// DeliveryInfo carries delivery terms captured by the station UI.
type DeliveryInfo struct {
	DeliveryType        string `json:"delivery_type,omitempty"`
	DeliveryDate        string `json:"delivery_date,omitempty"`
	AdditionalCharges   string `json:"additional_charges,omitempty"`
	VAT                 string `json:"vat,omitempty"`
	TotalAmount         string `json:"total_amount,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
	DriversName         string `json:"drivers_name,omitempty"`
}

// RecordMetadata is the form-level context attached to a record at save
// time.
type RecordMetadata struct {
	Category      string       `json:"category"`
	Shipper       string       `json:"shipper,omitempty"`
	AWBNumber     string       `json:"awb_number,omitempty"`
	ULDNumber     string       `json:"uld_number,omitempty"`
	PaymentStatus string       `json:"payment_status"`
	Sender        Party        `json:"sender"`
	Receiver      Party        `json:"receiver"`
	Delivery      DeliveryInfo `json:"delivery"`
	OperatorID    string       `json:"operator_id,omitempty"`
}

// PendingRecord is the unit of durability: a fully assembled weighing
// record queued locally until the remote store acknowledges it. LocalID
// is generated locally, never reused, and doubles as the idempotency key
// for remote uploads.
type PendingRecord struct {
	LocalID       string         `json:"local_id"`
	CreatedAt     time.Time      `json:"created_at"`
	LineItems     []LineItem     `json:"line_items"`
	Totals        Totals         `json:"totals"`
	TareWeightKg  float64        `json:"tare_weight_kg"`
	Metadata      RecordMetadata `json:"metadata"`
	SyncState     SyncState      `json:"sync_state"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// SyncReport summarizes one reconciliation pass over the local queue.
type SyncReport struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Pruned    bool   `json:"pruned"`
}
