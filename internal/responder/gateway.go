package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPGateway calls an external response service over HTTP. The service is a
// black box: it receives lead context plus conversation history and returns
// reply text with an optional qualification signal.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway against the given service URL.
func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	if baseURL == "" {
		panic("responder: gateway base URL required")
	}
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var _ Client = (*HTTPGateway)(nil)

type gatewayRequest struct {
	OrgID          string                `json:"org_id"`
	ConversationID string                `json:"conversation_id"`
	Lead           gatewayLead           `json:"lead"`
	History        []Turn                `json:"history,omitempty"`
	Tone           string                `json:"tone,omitempty"`
	Questions      []gatewayQuestion     `json:"questions,omitempty"`
	Nudge          bool                  `json:"nudge,omitempty"`
}

type gatewayLead struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
}

type gatewayQuestion struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
}

type gatewayResponse struct {
	Text       string            `json:"text"`
	Qualified  bool              `json:"qualified"`
	Answers    map[string]string `json:"answers,omitempty"`
	Escalate   bool              `json:"escalate,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// Generate posts the conversation context and decodes the reply.
func (g *HTTPGateway) Generate(ctx context.Context, req Request) (Reply, error) {
	body := gatewayRequest{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		Lead: gatewayLead{
			Name:    req.LeadName,
			Phone:   req.LeadPhone,
			Email:   req.LeadEmail,
			Message: req.LeadMessage,
			Source:  req.Source,
		},
		History: req.History,
		Tone:    req.Tone,
		Nudge:   req.Nudge,
	}
	for _, q := range req.Questions {
		body.Questions = append(body.Questions, gatewayQuestion{Key: q.Key, Prompt: q.Prompt})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Reply{}, fmt.Errorf("responder: marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("responder: build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reply{}, fmt.Errorf("%w: gateway status %d: %s", ErrGenerationFailure, resp.StatusCode, string(slurp))
	}

	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{}, fmt.Errorf("%w: decode gateway response: %v", ErrGenerationFailure, err)
	}
	if out.Text == "" {
		return Reply{}, fmt.Errorf("%w: gateway returned empty text", ErrGenerationFailure)
	}

	return Reply{
		Text:       out.Text,
		Qualified:  out.Qualified,
		Answers:    out.Answers,
		Escalate:   out.Escalate,
		Confidence: out.Confidence,
		Elapsed:    time.Since(start),
	}, nil
}
