// Package booking creates appointments for qualified conversations through
// the tenant's scheduling provider.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// ErrBookingConflict indicates the requested slot was taken between the
// availability check and the booking attempt. Callers re-prompt for another
// time; it is not a terminal failure.
var ErrBookingConflict = errors.New("booking: slot no longer available")

// ErrBookingUnavailable indicates the scheduling provider could not be
// reached or refused the request.
var ErrBookingUnavailable = errors.New("booking: provider unavailable")

// Slot is one offered appointment window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailabilityRequest asks for open slots.
type AvailabilityRequest struct {
	OrgID string    `json:"org_id"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// CreateRequest books a slot for a lead. The idempotency key makes a retried
// create return the original booking instead of double-booking.
type CreateRequest struct {
	OrgID          string    `json:"org_id"`
	ConversationID string    `json:"conversation_id"`
	LeadName       string    `json:"lead_name,omitempty"`
	LeadPhone      string    `json:"lead_phone,omitempty"`
	LeadEmail      string    `json:"lead_email,omitempty"`
	Start          time.Time `json:"start"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Booking is a confirmed appointment.
type Booking struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Client calls the scheduling provider's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a booking client.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if baseURL == "" {
		panic("booking: base URL required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// CheckAvailability returns open slots in the window.
func (c *Client) CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]Slot, error) {
	var out struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.post(ctx, "/v1/availability", req, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// CreateBooking books the slot. Safe to retry with the same idempotency key.
func (c *Client) CreateBooking(ctx context.Context, req CreateRequest) (*Booking, error) {
	if req.IdempotencyKey == "" {
		return nil, errors.New("booking: idempotency key required")
	}
	var out Booking
	if err := c.post(ctx, "/v1/bookings", req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("booking created",
		"org_id", req.OrgID, "conversation_id", req.ConversationID,
		"booking_id", out.ID, "start", out.Start)
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("booking: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("booking: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBookingUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrBookingConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrBookingUnavailable, resp.StatusCode, string(slurp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("booking: decode response: %w", err)
	}
	return nil
}
