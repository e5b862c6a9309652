package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingArchiver_Disabled(t *testing.T) {
	assert.Nil(t, NewTrainingArchiver(nil, nil, nil))
	assert.Nil(t, NewTrainingArchiver(NewStore(nil, "", nil), nil, nil))

	// nil receiver is safe to call
	var ta *TrainingArchiver
	ta.Archive(context.Background(), TrainingArchiveInput{ConversationID: "conv-1"})
}

func TestTrainingArchiver_ScrubsAndArchives(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "training-bucket", nil)
	classifier := NewClassifier(&mockBedrockClient{
		response: `{"prompt_injection_detected":false,"prompt_injection_type":"none","conversation_category":"booked","sentiment":"positive","contains_pii":false}`,
	}, "haiku-model", nil)

	ta := NewTrainingArchiver(store, classifier, nil)
	require.NotNil(t, ta)

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	original := []Message{
		{Role: "user", Content: "Call me at 555-123-4567", Channel: "sms", Timestamp: start},
		{Role: "assistant", Content: "Will do. Does 2pm work?", Channel: "sms", Timestamp: start.Add(90 * time.Second)},
	}

	ta.Archive(context.Background(), TrainingArchiveInput{
		ConversationID: "conv-9",
		OrgID:          "org-1",
		Phone:          "+15551234567",
		Messages:       original,
		Outcome:        "booked",
		Source:         "web_form",
		Channel:        "sms",
		Booked:         true,
	})

	require.NotEmpty(t, mock.putCalls)

	var record ConversationRecord
	require.NoError(t, json.Unmarshal(mock.putCalls[0].body, &record))
	assert.Equal(t, "conv-9", record.ConversationID)
	assert.Equal(t, HashPhone("+15551234567"), record.PhoneHash)
	assert.Equal(t, 90, record.DurationSeconds)
	assert.Equal(t, "booked", record.Labels.ConversationCategory)
	assert.True(t, record.Context.Booked)
	assert.Contains(t, record.Messages[0].Content, "[PHONE]")

	// caller's slice is untouched
	assert.Contains(t, original[0].Content, "555-123-4567")
}

func TestTrainingArchiver_ClassifierFailureUsesDefaults(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "training-bucket", nil)
	classifier := NewClassifier(&mockBedrockClient{err: context.DeadlineExceeded}, "haiku-model", nil)

	ta := NewTrainingArchiver(store, classifier, nil)
	ta.Archive(context.Background(), TrainingArchiveInput{
		ConversationID: "conv-10",
		OrgID:          "org-1",
		Phone:          "+15557654321",
		Messages: []Message{
			{Role: "user", Content: "hello", Timestamp: time.Now()},
		},
		Outcome: "abandoned",
	})

	require.NotEmpty(t, mock.putCalls)
	var record ConversationRecord
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[0].body), &record))
	assert.Equal(t, "engaged", record.Labels.ConversationCategory)
	assert.False(t, record.Labels.AutoLabeled)
}
