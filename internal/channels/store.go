package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message delivery statuses.
const (
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusReceived = "received"
)

// Message directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// ErrMessageNotFound indicates no message row matched.
var ErrMessageNotFound = errors.New("channels: message not found")

// Message is one transcript row: an outbound delivery attempt set or an
// inbound reply.
type Message struct {
	ID                string
	OrgID             string
	ConversationID    string
	Direction         string
	Channel           string
	Recipient         string
	Body              string
	Status            string
	Attempts          int
	ProviderMessageID string
	ErrorReason       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store persists the message transcript to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("channels: db required")
	}
	return &Store{db: db}
}

// CreatePending inserts an outbound row before the first delivery attempt.
func (s *Store) CreatePending(ctx context.Context, msg *Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO messages (id, org_id, conversation_id, direction, channel, recipient, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.OrgID, msg.ConversationID, DirectionOutbound,
		msg.Channel, msg.Recipient, msg.Body, StatusPending)
	if err != nil {
		return "", fmt.Errorf("channels: insert pending message: %w", err)
	}
	return msg.ID, nil
}

// MarkSent finalizes a delivery with the provider's message id.
func (s *Store) MarkSent(ctx context.Context, id, providerMessageID string, attempts int) error {
	query := `
		UPDATE messages
		SET status = $1, provider_message_id = $2, attempts = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := s.db.ExecContext(ctx, query, StatusSent, providerMessageID, attempts, id)
	if err != nil {
		return fmt.Errorf("channels: mark sent: %w", err)
	}
	return nil
}

// MarkFailed finalizes a delivery that exhausted its attempts.
func (s *Store) MarkFailed(ctx context.Context, id, reason string, attempts int) error {
	query := `
		UPDATE messages
		SET status = $1, error_reason = $2, attempts = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := s.db.ExecContext(ctx, query, StatusFailed, reason, attempts, id)
	if err != nil {
		return fmt.Errorf("channels: mark failed: %w", err)
	}
	return nil
}

// RecordInbound appends a lead's reply to the transcript.
func (s *Store) RecordInbound(ctx context.Context, msg *Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO messages (id, org_id, conversation_id, direction, channel, recipient, body, status, provider_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.OrgID, msg.ConversationID, DirectionInbound,
		msg.Channel, msg.Recipient, msg.Body, StatusReceived, msg.ProviderMessageID)
	if err != nil {
		return "", fmt.Errorf("channels: insert inbound message: %w", err)
	}
	return msg.ID, nil
}

// History returns the most recent transcript rows, oldest first.
func (s *Store) History(ctx context.Context, orgID, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 12
	}
	query := `
		SELECT id, direction, channel, body, status, created_at
		FROM (
			SELECT id, direction, channel, body, status, created_at
			FROM messages
			WHERE org_id = $1 AND conversation_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("channels: history query: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Direction, &m.Channel, &m.Body, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("channels: history scan: %w", err)
		}
		m.OrgID = orgID
		m.ConversationID = conversationID
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channels: history rows: %w", err)
	}
	return history, nil
}

// HasProviderMessage reports whether an inbound provider message id was
// already recorded, used to drop webhook replays.
func (s *Store) HasProviderMessage(ctx context.Context, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}
	query := `SELECT EXISTS(SELECT 1 FROM messages WHERE provider_message_id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, providerMessageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("channels: provider message lookup: %w", err)
	}
	return exists, nil
}

// ResolveByProviderID finds the outbound row for a delivery receipt.
func (s *Store) ResolveByProviderID(ctx context.Context, providerMessageID string) (*Message, error) {
	query := `
		SELECT id, org_id, conversation_id, direction, channel, recipient, body, status, attempts, created_at
		FROM messages
		WHERE provider_message_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, providerMessageID)
	var m Message
	err := row.Scan(&m.ID, &m.OrgID, &m.ConversationID, &m.Direction, &m.Channel,
		&m.Recipient, &m.Body, &m.Status, &m.Attempts, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("channels: resolve by provider id: %w", err)
	}
	m.ProviderMessageID = providerMessageID
	return &m, nil
}
