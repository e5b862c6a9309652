package archive

import (
	"context"
	"time"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// TrainingArchiver orchestrates classification + archival for the training pipeline.
// It is designed to be called when a conversation reaches a terminal state.
// Errors are logged but never block the caller.
type TrainingArchiver struct {
	store      *Store
	classifier *Classifier
	logger     *logging.Logger
}

// NewTrainingArchiver creates a TrainingArchiver. Returns nil if store is not enabled.
func NewTrainingArchiver(store *Store, classifier *Classifier, logger *logging.Logger) *TrainingArchiver {
	if store == nil || !store.Enabled() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TrainingArchiver{store: store, classifier: classifier, logger: logger}
}

// TrainingArchiveInput holds the data needed to archive a conversation for training.
type TrainingArchiveInput struct {
	ConversationID string
	OrgID          string
	Phone          string // raw phone for hashing + test detection
	Messages       []Message
	Outcome        string // e.g. "booked", "abandoned", "escalated"

	// Context fields (optional)
	Source         string
	Channel        string
	Booked         bool
	Escalated      bool
	FallbackUsed   bool
	FollowUpsFired int
}

// Archive classifies and archives a conversation for LLM training.
// This method never returns an error. Failures are logged and swallowed
// so that conversation teardown is not blocked.
func (ta *TrainingArchiver) Archive(ctx context.Context, input TrainingArchiveInput) {
	if ta == nil {
		return
	}

	ta.logger.Info("training archive: starting",
		"conversation_id", input.ConversationID,
		"message_count", len(input.Messages),
	)

	// Scrub PII from messages (copy to avoid mutating caller's slice).
	// The lead's stored phone is redacted literally too.
	msgs := make([]Message, len(input.Messages))
	copy(msgs, input.Messages)
	ScrubMessages(msgs, input.Phone)

	// Classify
	var labels *Labels
	if ta.classifier != nil {
		var err error
		labels, err = ta.classifier.Classify(ctx, input.Phone, msgs)
		if err != nil {
			ta.logger.Warn("training archive: classification failed, using defaults",
				"error", err, "conversation_id", input.ConversationID)
			labels = defaultLabels()
		}
	} else {
		labels = defaultLabels()
	}

	// Calculate duration
	var durationSec int
	if len(msgs) >= 2 {
		first := msgs[0].Timestamp
		last := msgs[len(msgs)-1].Timestamp
		durationSec = int(last.Sub(first).Seconds())
	}

	record := &ConversationRecord{
		Version:         "1.0",
		ConversationID:  input.ConversationID,
		OrgID:           input.OrgID,
		PhoneHash:       HashPhone(input.Phone),
		ArchivedAt:      time.Now().UTC(),
		DurationSeconds: durationSec,
		MessageCount:    len(msgs),
		Outcome:         input.Outcome,
		Labels:          *labels,
		Context: ConversationContext{
			Source:         input.Source,
			Channel:        input.Channel,
			Booked:         input.Booked,
			Escalated:      input.Escalated,
			FallbackUsed:   input.FallbackUsed,
			FollowUpsFired: input.FollowUpsFired,
		},
		Messages: msgs,
	}

	if err := ta.store.ArchiveConversation(ctx, record); err != nil {
		ta.logger.Error("training archive: failed to archive",
			"error", err, "conversation_id", input.ConversationID)
		return
	}

	ta.logger.Info("training archive: completed",
		"conversation_id", input.ConversationID,
		"category", labels.ConversationCategory,
	)
}
