package followup

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskFollowUpDue is the asynq task type for a follow-up timer firing.
const TaskFollowUpDue = "followup.due"

// Follow-up kinds, in escalation order.
const (
	KindReminder = "reminder"
	KindReengage = "reengage"
	KindAbandon  = "abandon"
)

// Task identifies one armed follow-up.
type Task struct {
	OrgID          string        `json:"orgId"`
	ConversationID string        `json:"conversationId"`
	Kind           string        `json:"kind"`
	Delay          time.Duration `json:"-"`
}

// Payload is the wire form of a due follow-up.
type Payload struct {
	OrgID          string    `json:"orgId"`
	ConversationID string    `json:"conversationId"`
	Kind           string    `json:"kind"`
	ArmedAt        time.Time `json:"armedAt"`
}

// NewFollowUpTask builds the asynq task for a follow-up.
func NewFollowUpTask(payload Payload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpDue, data), nil
}

// ParseFollowUpPayload decodes a due follow-up task.
func ParseFollowUpPayload(task *asynq.Task) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

// taskID keys one follow-up per conversation and kind so re-arming
// supersedes rather than stacks.
func taskID(conversationID, kind string) string {
	return "fu:" + conversationID + ":" + kind
}
