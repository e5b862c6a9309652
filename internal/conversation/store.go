package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConversationNotFound indicates the requested conversation does not exist.
var ErrConversationNotFound = errors.New("conversation: not found")

// Conversation is the durable state machine record.
type Conversation struct {
	ID             string
	OrgID          string
	LeadID         string
	Status         Status
	BookingID      string
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists conversations to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a conversation store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("conversation: db required")
	}
	return &Store{db: db}
}

const conversationColumns = `id, org_id, lead_id, status, booking_id, last_inbound_at, last_outbound_at, created_at, updated_at`

// Create inserts a new conversation in the new state. Replays of the same id
// are ignored so a retried start job cannot reset an advanced conversation.
func (s *Store) Create(ctx context.Context, id, orgID, leadID string) error {
	query := `
		INSERT INTO conversations (id, org_id, lead_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, id, orgID, leadID, StatusNew); err != nil {
		return fmt.Errorf("conversation: insert failed: %w", err)
	}
	return nil
}

// Get fetches a conversation scoped to the org.
func (s *Store) Get(ctx context.Context, orgID, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND org_id = $2`
	row := s.db.QueryRowContext(ctx, query, id, orgID)

	var c Conversation
	err := row.Scan(&c.ID, &c.OrgID, &c.LeadID, &c.Status, &c.BookingID,
		&c.LastInboundAt, &c.LastOutboundAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: select failed: %w", err)
	}
	return &c, nil
}

// Transition moves the conversation to the target state when the state
// machine allows it. The update is guarded on the current status so
// concurrent workers cannot double-apply; a disallowed or lost transition
// returns the reloaded row with applied=false.
func (s *Store) Transition(ctx context.Context, orgID, id string, to Status) (*Conversation, bool, error) {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, false, err
	}
	if _, ok := Advance(current.Status, to); !ok {
		return current, false, nil
	}

	query := `
		UPDATE conversations
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND org_id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, to, id, orgID, current.Status)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: transition failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("conversation: transition result: %w", err)
	}
	if affected == 0 {
		// Lost a race with another worker; report the winner's state.
		fresh, err := s.Get(ctx, orgID, id)
		return fresh, false, err
	}

	current.Status = to
	return current, true, nil
}

// SetBooking records the booking created for a qualified conversation.
func (s *Store) SetBooking(ctx context.Context, orgID, id, bookingID string) error {
	query := `UPDATE conversations SET booking_id = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`
	if _, err := s.db.ExecContext(ctx, query, bookingID, id, orgID); err != nil {
		return fmt.Errorf("conversation: set booking failed: %w", err)
	}
	return nil
}

// TouchInbound stamps the latest lead activity, used by abandon timers.
func (s *Store) TouchInbound(ctx context.Context, orgID, id string, at time.Time) error {
	query := `UPDATE conversations SET last_inbound_at = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), id, orgID); err != nil {
		return fmt.Errorf("conversation: touch inbound failed: %w", err)
	}
	return nil
}

// TouchOutbound stamps the latest outbound dispatch.
func (s *Store) TouchOutbound(ctx context.Context, orgID, id string, at time.Time) error {
	query := `UPDATE conversations SET last_outbound_at = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`
	if _, err := s.db.ExecContext(ctx, query, at.UTC(), id, orgID); err != nil {
		return fmt.Errorf("conversation: touch outbound failed: %w", err)
	}
	return nil
}
