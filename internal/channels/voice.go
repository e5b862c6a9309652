package channels

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

const telnyxCallsURL = "https://api.telnyx.com/v2/calls"

// TelnyxVoice initiates an outbound call that plays the reply as speech. The
// call is placed through Telnyx call control; the spoken text is attached as
// client state for the answering webhook.
type TelnyxVoice struct {
	apiKey       string
	connectionID string
	baseURL      string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewTelnyxVoice builds the voice adapter.
func NewTelnyxVoice(apiKey, connectionID string, logger *logging.Logger) *TelnyxVoice {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxVoice{
		apiKey:       apiKey,
		connectionID: connectionID,
		baseURL:      telnyxCallsURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Adapter = (*TelnyxVoice)(nil)

func (v *TelnyxVoice) Name() string { return ChannelVoice }

// Send places the callback. Delivery here means the call was accepted by the
// provider, not that the lead answered.
func (v *TelnyxVoice) Send(ctx context.Context, msg Outbound) (Receipt, error) {
	if v.apiKey == "" {
		return Receipt{}, errors.New("channels: telnyx api key missing")
	}
	if v.connectionID == "" {
		return Receipt{}, errors.New("channels: voice connection id missing")
	}
	if msg.To == "" || msg.From == "" {
		return Receipt{}, errors.New("channels: to and from required")
	}

	clientState, err := json.Marshal(map[string]string{
		"org_id":          msg.OrgID,
		"conversation_id": msg.ConversationID,
		"say":             msg.Body,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("channels: marshal client state: %w", err)
	}

	payload := map[string]any{
		"connection_id": v.connectionID,
		"to":            msg.To,
		"from":          msg.From,
		"client_state":  clientState,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("channels: marshal call payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return Receipt{}, fmt.Errorf("channels: build call request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: voice: %v", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, fmt.Errorf("%w: voice: telnyx status %d: %s", ErrDeliveryFailure, resp.StatusCode, string(slurp))
	}

	var out struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		v.logger.Warn("call accepted but response undecodable", "error", err)
	}
	return Receipt{ProviderMessageID: out.Data.CallControlID}, nil
}
