package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// LLMResponder adapts a raw LLMClient to the Client contract: it builds the
// prompt from the request context, asks for structured JSON output, and
// evaluates the qualification signal deterministically from the extracted
// answers.
type LLMResponder struct {
	llm     LLMClient
	modelID string
	logger  *logging.Logger
}

// NewLLMResponder wires a responder over the given completion provider.
func NewLLMResponder(llm LLMClient, modelID string, logger *logging.Logger) *LLMResponder {
	if llm == nil {
		panic("responder: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMResponder{llm: llm, modelID: modelID, logger: logger}
}

var _ Client = (*LLMResponder)(nil)

// Generate produces a reply for the conversation turn.
func (r *LLMResponder) Generate(ctx context.Context, req Request) (Reply, error) {
	llmReq := LLMRequest{
		Model:       r.modelID,
		System:      []string{buildSystemPrompt(req)},
		Messages:    buildMessages(req),
		MaxTokens:   512,
		Temperature: 0.4,
	}

	resp, err := r.llm.Complete(ctx, llmReq)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	reply, err := parseStructuredReply(resp.Text)
	if err != nil {
		r.logger.Warn("model returned unstructured output, using raw text", "error", err)
		reply = Reply{Text: strings.TrimSpace(resp.Text)}
	}
	if strings.TrimSpace(reply.Text) == "" {
		return Reply{}, fmt.Errorf("%w: empty reply text", ErrGenerationFailure)
	}

	// The model proposes; the deterministic evaluator disposes.
	reply.Qualified = EvaluateQualification(req.Questions, reply.Answers)
	if WantsHuman(req.LeadMessage) {
		reply.Escalate = true
	}
	return reply, nil
}

func buildSystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are a speed-to-lead assistant replying on behalf of a business. ")
	sb.WriteString("Reply to the lead's latest message in one or two short sentences. ")
	sb.WriteString("Reference only the lead and conversation details given here; never mention other customers or businesses.\n")

	if req.Tone != "" {
		sb.WriteString("\nTone: " + req.Tone + "\n")
	}

	sb.WriteString("\nLead:\n")
	if req.LeadName != "" {
		sb.WriteString("- name: " + req.LeadName + "\n")
	}
	if req.Source != "" {
		sb.WriteString("- source: " + req.Source + "\n")
	}

	if len(req.Questions) > 0 {
		sb.WriteString("\nQualification questions to work toward (ask at most one per reply):\n")
		for _, q := range req.Questions {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", q.Key, q.Prompt))
		}
	}

	if req.Nudge {
		sb.WriteString("\nThe lead has not replied yet. Send one gentle nudge without repeating earlier messages.\n")
	}

	sb.WriteString("\nRespond with JSON only: {\"text\": \"...\", \"answers\": {\"question_key\": \"answer extracted from the conversation\"}, \"escalate\": false, \"confidence\": 0.0}")
	return sb.String()
}

func buildMessages(req Request) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := ChatRoleUser
		if turn.Direction == "outbound" {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: turn.Content})
	}
	if req.LeadMessage != "" {
		msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: req.LeadMessage})
	}
	if len(msgs) == 0 {
		msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: "(no message provided)"})
	}
	return msgs
}

// parseStructuredReply extracts the JSON object from model output, tolerating
// fenced code blocks and leading prose.
func parseStructuredReply(text string) (Reply, error) {
	trimmed := strings.TrimSpace(text)
	if idx := strings.Index(trimmed, "{"); idx > 0 {
		trimmed = trimmed[idx:]
	}
	if idx := strings.LastIndex(trimmed, "}"); idx >= 0 {
		trimmed = trimmed[:idx+1]
	}

	var parsed struct {
		Text       string            `json:"text"`
		Answers    map[string]string `json:"answers"`
		Escalate   bool              `json:"escalate"`
		Confidence float64           `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return Reply{}, fmt.Errorf("responder: parse structured reply: %w", err)
	}
	return Reply{
		Text:       strings.TrimSpace(parsed.Text),
		Answers:    parsed.Answers,
		Escalate:   parsed.Escalate,
		Confidence: parsed.Confidence,
	}, nil
}
