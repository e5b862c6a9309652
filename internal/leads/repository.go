package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, orgID, id string) (*Lead, error)
	GetByIdempotencyKey(ctx context.Context, orgID, key string) (*Lead, error)
	FindByContact(ctx context.Context, orgID, contact string) (*Lead, error)
	ListByOrg(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error)
}

// ListFilter bounds list queries.
type ListFilter struct {
	Limit  int
	Offset int
}

// InMemoryRepository is a Repository backed by process memory, used in tests
// and local development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory. First-writer-wins on the idempotency key.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lead := &Lead{
		ID:             uuid.New().String(),
		OrgID:          req.OrgID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Message:        req.Message,
		Source:         req.Source,
		ConversationID: uuid.New().String(),
		CreatedAt:      time.Now().UTC(),
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

// GetByID retrieves a lead by ID scoped to the org.
func (r *InMemoryRepository) GetByID(ctx context.Context, orgID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

// GetByIdempotencyKey is unsupported in memory; callers rely on the dedup store.
func (r *InMemoryRepository) GetByIdempotencyKey(ctx context.Context, orgID, key string) (*Lead, error) {
	return nil, ErrLeadNotFound
}

// FindByContact returns the newest lead matching a phone number or email.
func (r *InMemoryRepository) FindByContact(ctx context.Context, orgID, contact string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Lead
	for _, lead := range r.leads {
		if lead.OrgID != orgID {
			continue
		}
		if lead.Phone != contact && lead.Email != contact {
			continue
		}
		if found == nil || lead.CreatedAt.After(found.CreatedAt) {
			found = lead
		}
	}
	if found == nil {
		return nil, ErrLeadNotFound
	}
	return found, nil
}

// ListByOrg lists leads for an org, newest first.
func (r *InMemoryRepository) ListByOrg(ctx context.Context, orgID string, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Lead
	for _, lead := range r.leads {
		if lead.OrgID == orgID {
			out = append(out, lead)
		}
	}
	return out, nil
}
