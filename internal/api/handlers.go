// Package api exposes the weighing engine to the station UI: scale
// state, capture, record save, and sync, with RFC 7807 problem
// responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/weighbridge/internal/capture"
	weighsync "github.com/hyperengineering/weighbridge/internal/sync"
	"github.com/hyperengineering/weighbridge/internal/telemetry"
	"github.com/hyperengineering/weighbridge/internal/types"
	"github.com/hyperengineering/weighbridge/internal/validation"
)

// Queue is the slice of the local durable queue the API reads.
type Queue interface {
	Enqueue(ctx context.Context, record types.PendingRecord) error
	ListPending(ctx context.Context) ([]types.PendingRecord, error)
	CountByState(ctx context.Context) (map[types.SyncState]int, error)
}

// Syncer runs reconciliation batches on demand.
type Syncer interface {
	SyncAll(ctx context.Context) (types.SyncReport, error)
}

// Handler holds the wired engine components behind the HTTP surface.
type Handler struct {
	classifier *telemetry.Classifier
	ingestor   *telemetry.Ingestor
	session    *capture.Session
	queue      Queue
	syncer     Syncer
	probe      weighsync.Probe

	apiKey     string
	version    string
	syncOnSave bool
}

// NewHandler creates an API handler over the wired components.
func NewHandler(
	classifier *telemetry.Classifier,
	ingestor *telemetry.Ingestor,
	session *capture.Session,
	queue Queue,
	syncer Syncer,
	probe weighsync.Probe,
	apiKey, version string,
	syncOnSave bool,
) *Handler {
	return &Handler{
		classifier: classifier,
		ingestor:   ingestor,
		session:    session,
		queue:      queue,
		syncer:     syncer,
		probe:      probe,
		apiKey:     apiKey,
		version:    version,
		syncOnSave: syncOnSave,
	}
}

// Health handles GET /api/v1/health. Local store health plus a remote
// reachability snapshot; public, no auth.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.CountByState(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Local queue unavailable")
		return
	}

	resp := struct {
		Status          string                  `json:"status"`
		Version         string                  `json:"version"`
		RemoteReachable bool                    `json:"remote_reachable"`
		Queue           map[types.SyncState]int `json:"queue"`
	}{
		Status:          "ok",
		Version:         h.version,
		RemoteReachable: h.probe.Reachable(r.Context()),
		Queue:           counts,
	}

	writeJSON(w, http.StatusOK, resp)
}

// ScaleState handles GET /api/v1/scale.
func (h *Handler) ScaleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.classifier.State())
}

// IngestSample handles POST /api/v1/scale/samples: push-style raw
// sample ingress for gateway transports. The payload is handed to the
// ingestor as-is; decode failures are absorbed downstream.
func (h *Handler) IngestSample(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	accepted := h.ingestor.Offer(telemetry.RawSample{
		Payload:    req.Payload,
		ReceivedAt: time.Now(),
	})

	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

// ResetScale handles POST /api/v1/scale/reset: operator-triggered
// recovery from a stuck verdict.
func (h *Handler) ResetScale(w http.ResponseWriter, r *http.Request) {
	h.classifier.Reset()
	slog.Info("scale stability reset",
		"component", "api",
		"action", "scale_reset",
	)
	writeJSON(w, http.StatusOK, h.classifier.State())
}

// Capture handles POST /api/v1/capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var in capture.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if errs := validation.ValidateCaptureInput(in); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid capture input", errs)
		return
	}

	item, err := h.session.Capture(h.classifier.State(), in)
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	resp := struct {
		Item   types.LineItem `json:"item"`
		Totals types.Totals   `json:"totals"`
	}{Item: item, Totals: h.session.Totals()}

	writeJSON(w, http.StatusCreated, resp)
}

// DeleteLineItem handles DELETE /api/v1/capture/{index}.
func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid line item index")
		return
	}

	if err := h.session.Delete(index); err != nil {
		MapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]types.Totals{"totals": h.session.Totals()})
}

// Session handles GET /api/v1/session: in-progress items and derived
// totals.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	items := h.session.Items()
	if items == nil {
		items = []types.LineItem{}
	}

	resp := struct {
		Items        []types.LineItem `json:"items"`
		TareWeightKg float64          `json:"tare_weight_kg"`
		Totals       types.Totals     `json:"totals"`
	}{
		Items:        items,
		TareWeightKg: h.session.TareWeight(),
		Totals:       h.session.Totals(),
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetTare handles PUT /api/v1/session/tare.
func (h *Handler) SetTare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TareWeightKg float64 `json:"tare_weight_kg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.TareWeightKg < 0 {
		WriteProblemWithErrors(w, r, "Invalid tare weight", []validation.ValidationError{
			{Field: "tare_weight_kg", Message: "must be >= 0"},
		})
		return
	}

	h.session.SetTareWeight(req.TareWeightKg)
	writeJSON(w, http.StatusOK, map[string]types.Totals{"totals": h.session.Totals()})
}

// SaveRecord handles POST /api/v1/records: assembles the pending record
// from the session and enqueues it durably. A storage failure is fatal
// to the save; the record is not considered saved.
func (h *Handler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	var meta types.RecordMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if errs := validation.ValidateRecordMetadata(meta); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid record metadata", errs)
		return
	}

	record, err := h.session.BuildRecord(meta, time.Now())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	if err := h.queue.Enqueue(r.Context(), record); err != nil {
		slog.Error("failed to enqueue record",
			"component", "api",
			"action", "save_failed",
			"local_id", record.LocalID,
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to save record")
		return
	}

	// The session is cleared only once the record is durably queued; a
	// failed enqueue leaves the captured items for another attempt.
	h.session.Clear()

	slog.Info("record saved",
		"component", "api",
		"action", "record_saved",
		"local_id", record.LocalID,
		"line_items", len(record.LineItems),
	)

	// Opportunistic sync off the request path; the engine coalesces
	// with any batch already in flight.
	if h.syncOnSave {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := h.syncer.SyncAll(ctx); err != nil && !errors.Is(err, weighsync.ErrUnreachable) {
				slog.Warn("opportunistic sync failed",
					"component", "api",
					"action", "sync_on_save_failed",
					"error", err,
				)
			}
		}()
	}

	writeJSON(w, http.StatusCreated, record)
}

// ListPending handles GET /api/v1/records/pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.queue.ListPending(r.Context())
	if err != nil {
		slog.Error("failed to list pending records",
			"component", "api",
			"action", "list_pending_failed",
			"error", err,
		)
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to list pending records")
		return
	}
	if records == nil {
		records = []types.PendingRecord{}
	}

	writeJSON(w, http.StatusOK, map[string][]types.PendingRecord{"records": records})
}

// Sync handles POST /api/v1/sync: runs one reconciliation batch and
// returns the aggregate report.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
