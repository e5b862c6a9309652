package responder

import (
	"context"
	"fmt"
	"strings"
)

// DefaultFallbackText is the deterministic acknowledgment used when no AI
// reply can be produced in time.
const DefaultFallbackText = "Thanks for reaching out, we'll follow up shortly."

// TemplateReply builds the deterministic fallback reply for a request. It
// references only the lead's own fields, so it is safe under any upstream
// failure.
func TemplateReply(req Request) Reply {
	text := DefaultFallbackText
	if name := firstName(req.LeadName); name != "" {
		text = fmt.Sprintf("Thanks for reaching out, %s! We'll follow up shortly.", name)
	}
	return Reply{
		Text:     text,
		Fallback: true,
	}
}

// TemplateClient answers every turn with the template reply. It is the
// deployment of last resort when no generation backend is configured.
type TemplateClient struct{}

var _ Client = TemplateClient{}

func (TemplateClient) Generate(_ context.Context, req Request) (Reply, error) {
	return TemplateReply(req), nil
}

func firstName(full string) string {
	fields := strings.Fields(strings.TrimSpace(full))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
