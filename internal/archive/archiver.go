// Package archive writes raw lead events to S3 for replay and audit.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/NJ44/Boltcall-sub001/internal/leads"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// S3Client interface for S3 operations (allows mocking in tests).
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver stores the original payload of every accepted event. The database
// row is the durable copy; S3 is the cheap long-term one.
type Archiver struct {
	s3     S3Client
	bucket string
	logger *logging.Logger
}

// NewArchiver creates an archiver. A nil client or empty bucket disables it.
func NewArchiver(client S3Client, bucket string, logger *logging.Logger) *Archiver {
	if client == nil || bucket == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{s3: client, bucket: bucket, logger: logger}
}

type archivedEvent struct {
	EventID        string          `json:"event_id"`
	OrgID          string          `json:"org_id"`
	Source         string          `json:"source"`
	Mode           string          `json:"mode"`
	IdempotencyKey string          `json:"idempotency_key"`
	ContentType    string          `json:"content_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	PayloadRaw     []byte          `json:"payload_raw,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
}

// Archive writes one event object keyed by org, day, and event id.
func (a *Archiver) Archive(ctx context.Context, evt *leads.Event) error {
	if a == nil {
		return nil
	}

	record := archivedEvent{
		EventID:        evt.ID,
		OrgID:          evt.OrgID,
		Source:         evt.Source,
		Mode:           evt.Mode,
		IdempotencyKey: evt.IdempotencyKey,
		ContentType:    evt.ContentType,
		ReceivedAt:     evt.ReceivedAt,
	}
	if json.Valid(evt.Payload) {
		record.Payload = json.RawMessage(evt.Payload)
	} else {
		record.PayloadRaw = evt.Payload
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal event: %w", err)
	}

	key := fmt.Sprintf("lead-events/%s/%s/%s.json",
		evt.OrgID, evt.ReceivedAt.UTC().Format("2006/01/02"), evt.ID)

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put event %s: %w", evt.ID, err)
	}

	a.logger.Debug("raw event archived", "org_id", evt.OrgID, "key", key)
	return nil
}
