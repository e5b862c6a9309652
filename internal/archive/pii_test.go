package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("+15005550002")
	h2 := HashPhone("+15005550002")
	h3 := HashPhone("+15551234567")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "contact me at jordan@example.com please", "contact me at [EMAIL] please"},
		{"phone", "call me at (415) 555-0123", "call me at[PHONE]"},
		{"phone with plus", "my number is +15005550002", "my number is [PHONE]"},
		{"both", "email: a@b.com phone: 415-555-0123", "email: [EMAIL] phone:[PHONE]"},
		{"no pii", "What's your budget for the project?", "What's your budget for the project?"},
		{"name kept", "My name is Sarah Lee", "My name is Sarah Lee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "my email is test@test.com", Timestamp: time.Now()},
		{Role: "assistant", Content: "Got it, we'll send the quote over.", Timestamp: time.Now()},
	}
	ScrubMessages(msgs)
	assert.Equal(t, "my email is [EMAIL]", msgs[0].Content)
	assert.Equal(t, "Got it, we'll send the quote over.", msgs[1].Content)
}

func TestScrubMessagesRedactsKnownContacts(t *testing.T) {
	msgs := []Message{
		// An international number the North American pattern misses.
		{Role: "user", Content: "reach me on +442071838750 after 6", Timestamp: time.Now()},
		{Role: "user", Content: "or lead.name@corp.example", Timestamp: time.Now()},
	}
	ScrubMessages(msgs, "+442071838750", "lead.name@corp.example")
	assert.Equal(t, "reach me on [PHONE] after 6", msgs[0].Content)
	assert.Equal(t, "or [EMAIL]", msgs[1].Content)
}
