// Package remote is the HTTP client for the remote record store. Every
// upload carries the record's local id as an idempotency key so a retry
// after a crash mid-batch never creates a duplicate remote record.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hyperengineering/weighbridge/internal/config"
	"github.com/hyperengineering/weighbridge/internal/types"
)

var (
	// ErrNotConfigured is returned when no remote base URL is set.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrRejected is returned when the remote store permanently rejects
	// a record (4xx other than the duplicate acknowledgment).
	ErrRejected = errors.New("record rejected by remote store")
)

// Store is the contract the sync engine consumes. The remote must
// deduplicate a second create with the same idempotency key rather than
// creating a duplicate.
type Store interface {
	CreateRecord(ctx context.Context, record types.PendingRecord) error
	Ping(ctx context.Context) error
}

// Client talks to the remote record store over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries uint64
}

// NewClient creates a remote store client from config. The HTTP client
// carries no global timeout; callers bound each call through the
// context so a stalled connection converts into a failed record instead
// of wedging the batch.
func NewClient(cfg config.RemoteConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		client:     &http.Client{},
		maxRetries: uint64(maxRetries),
	}
}

// CreateRecord uploads one record with its local id as the idempotency
// key. A 409 from the remote means the key was already accepted and
// counts as acknowledgment. Transient failures (network errors, 5xx)
// are retried with exponential backoff within the caller's deadline.
func (c *Client) CreateRecord(ctx context.Context, record types.PendingRecord) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/records", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", record.LocalID)
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		switch {
		case resp.StatusCode == http.StatusOK,
			resp.StatusCode == http.StatusCreated,
			resp.StatusCode == http.StatusConflict:
			// Conflict means the idempotency key was already accepted:
			// the record is durably remote, treat it as an ack.
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("remote store returned %d", resp.StatusCode))
		default:
			return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
	})
}

// Ping checks connectivity to the remote store. It doubles as the
// network reachability probe queried before each sync batch.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}

	return nil
}
