package responder

import (
	"strings"

	"github.com/NJ44/Boltcall-sub001/internal/tenancy"
)

// EvaluateQualification decides the qualified signal deterministically: every
// tenant question must have an extracted answer, and when a question carries
// patterns the answer must contain at least one of them (case-insensitive).
// Free-form AI judgment alone never drives the qualified transition.
func EvaluateQualification(questions []tenancy.QualificationQuestion, answers map[string]string) bool {
	if len(questions) == 0 {
		return false
	}
	for _, q := range questions {
		answer := strings.ToLower(strings.TrimSpace(answers[q.Key]))
		if answer == "" {
			return false
		}
		if len(q.Patterns) == 0 {
			continue
		}
		matched := false
		for _, p := range q.Patterns {
			if p == "" {
				continue
			}
			if strings.Contains(answer, strings.ToLower(p)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// escalationPhrases are explicit requests for a human. Matching any of them
// forces the escalate signal regardless of what the model returned.
var escalationPhrases = []string{
	"speak to a human",
	"talk to a human",
	"speak to a person",
	"talk to a person",
	"real person",
	"speak to someone",
	"talk to someone",
	"stop texting me",
	"call me directly",
	"speak with a human",
	"human please",
	"agent please",
	"representative",
}

// WantsHuman reports whether an inbound message explicitly asks for a human.
func WantsHuman(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range escalationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
