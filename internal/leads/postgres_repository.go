package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("leads: querier required")
	}
	return &PostgresRepository{pool: q}
}

// Create inserts a new row. The idempotency key carries a unique index per
// org, so a concurrent duplicate resolves to the first writer's lead.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	conversationID := uuid.New()
	query := `
		INSERT INTO leads (id, org_id, name, email, phone, message, source, conversation_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (org_id, idempotency_key) DO NOTHING
		RETURNING created_at
	`
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query,
		id,
		req.OrgID,
		req.Name,
		req.Email,
		req.Phone,
		req.Message,
		req.Source,
		conversationID,
		req.IdempotencyKey,
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race: return the winner.
		return r.GetByIdempotencyKey(ctx, req.OrgID, req.IdempotencyKey)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:             id.String(),
		OrgID:          req.OrgID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Message:        req.Message,
		Source:         req.Source,
		ConversationID: conversationID.String(),
		CreatedAt:      createdAt,
	}, nil
}

const leadColumns = `id, org_id, name, email, phone, message, source, conversation_id, created_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Message,
		&lead.Source,
		&lead.ConversationID,
		&lead.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// GetByID fetches a lead scoped to the org.
func (r *PostgresRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND org_id = $2`
	return scanLead(r.pool.QueryRow(ctx, query, id, orgID))
}

// GetByIdempotencyKey fetches the lead created for a given dedup key.
func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, orgID, key string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE org_id = $1 AND idempotency_key = $2`
	return scanLead(r.pool.QueryRow(ctx, query, orgID, key))
}

// FindByContact returns the newest lead matching a phone number or email,
// used to route inbound provider messages to their conversation.
func (r *PostgresRepository) FindByContact(ctx context.Context, orgID, contact string) (*Lead, error) {
	query := `
		SELECT ` + leadColumns + ` FROM leads
		WHERE org_id = $1 AND (phone = $2 OR email = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanLead(r.pool.QueryRow(ctx, query, orgID, contact))
}

// ListByOrg lists leads for an org, newest first.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, orgID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}
