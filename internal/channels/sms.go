package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

var smsTracer = otel.Tracer("boltcall.internal.channels.sms")

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxSMS posts SMS messages using Telnyx's V2 API.
type TelnyxSMS struct {
	apiKey             string
	messagingProfileID string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSMS builds an SMS adapter for the Telnyx V2 API.
func NewTelnyxSMS(apiKey, messagingProfileID string, logger *logging.Logger) *TelnyxSMS {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSMS{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		baseURL:            telnyxMessagesURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Adapter = (*TelnyxSMS)(nil)

func (s *TelnyxSMS) Name() string { return ChannelSMS }

// Send dispatches a single SMS. One attempt; the dispatcher owns retries.
func (s *TelnyxSMS) Send(ctx context.Context, msg Outbound) (Receipt, error) {
	if s.apiKey == "" {
		return Receipt{}, errors.New("channels: telnyx api key missing")
	}
	if msg.To == "" {
		return Receipt{}, errors.New("channels: to required")
	}
	if msg.From == "" {
		return Receipt{}, errors.New("channels: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return Receipt{}, errors.New("channels: body required")
	}

	ctx, span := smsTracer.Start(ctx, "channels.sms.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("boltcall.org_id", msg.OrgID),
		attribute.String("boltcall.conversation_id", msg.ConversationID),
	)

	payload := map[string]any{
		"from": msg.From,
		"to":   msg.To,
		"text": msg.Body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("channels: marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Receipt{}, fmt.Errorf("channels: build sms request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: sms: %v", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, fmt.Errorf("%w: sms: telnyx status %d: %s", ErrDeliveryFailure, resp.StatusCode, string(slurp))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.logger.Warn("sms accepted but response undecodable", "error", err)
	}
	return Receipt{ProviderMessageID: out.Data.ID}, nil
}
