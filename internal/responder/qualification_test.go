package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
)

func TestEvaluateQualification(t *testing.T) {
	questions := []tenancy.QualificationQuestion{
		{Key: "budget", Prompt: "What's your budget?", Patterns: []string{"k", "thousand", "$"}},
		{Key: "timeline", Prompt: "When do you need this done?"},
	}

	t.Run("all answered and matched", func(t *testing.T) {
		answers := map[string]string{
			"budget":   "around 5K",
			"timeline": "this month",
		}
		assert.True(t, EvaluateQualification(questions, answers))
	})

	t.Run("missing answer", func(t *testing.T) {
		answers := map[string]string{"budget": "5k"}
		assert.False(t, EvaluateQualification(questions, answers))
	})

	t.Run("answer misses every pattern", func(t *testing.T) {
		answers := map[string]string{
			"budget":   "not sure yet",
			"timeline": "soon",
		}
		assert.False(t, EvaluateQualification(questions, answers))
	})

	t.Run("no questions configured", func(t *testing.T) {
		assert.False(t, EvaluateQualification(nil, map[string]string{"budget": "5k"}))
	})
}

func TestWantsHuman(t *testing.T) {
	assert.True(t, WantsHuman("Can I speak to a HUMAN please"))
	assert.True(t, WantsHuman("stop texting me"))
	assert.False(t, WantsHuman("what time are you open tomorrow?"))
}

func TestTemplateReply(t *testing.T) {
	reply := TemplateReply(Request{LeadName: "Jordan Smith"})
	assert.True(t, reply.Fallback)
	assert.Equal(t, "Thanks for reaching out, Jordan! We'll follow up shortly.", reply.Text)

	anon := TemplateReply(Request{})
	assert.True(t, anon.Fallback)
	assert.Equal(t, DefaultFallbackText, anon.Text)
}
