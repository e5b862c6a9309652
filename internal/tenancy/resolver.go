package tenancy

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// ErrBadCredentials is returned for any missing, unknown, or mismatched
// client_id/secret pair. The error is deliberately uniform so the response
// never discloses whether the org exists.
var ErrBadCredentials = errors.New("tenancy: bad credentials")

// ConfigSource retrieves tenant configuration.
type ConfigSource interface {
	Get(ctx context.Context, orgID string) (*Tenant, error)
}

// Grant is the result of a successful credential resolution.
type Grant struct {
	Tenant *Tenant
	Mode   Mode
}

// Resolver validates inbound webhook credentials and decides live vs test.
type Resolver struct {
	source ConfigSource
	logger *logging.Logger
}

// NewResolver creates a credential resolver over the given config source.
func NewResolver(source ConfigSource, logger *logging.Logger) *Resolver {
	if source == nil {
		panic("tenancy: config source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve checks the shared secret in constant time and returns the tenant
// with the resolved mode. testPath indicates the test endpoint variant was hit.
func (r *Resolver) Resolve(ctx context.Context, clientID, secret string, testPath bool) (Grant, error) {
	if clientID == "" || secret == "" {
		return Grant{}, ErrBadCredentials
	}

	tenant, err := r.source.Get(ctx, clientID)
	if err != nil {
		r.logger.Error("tenant lookup failed", "error", err)
		return Grant{}, err
	}
	if tenant == nil || tenant.WebhookSecret == "" {
		// Burn a comparison anyway so unknown orgs cost the same as mismatches.
		subtle.ConstantTimeCompare([]byte(secret), []byte(secret))
		return Grant{}, ErrBadCredentials
	}

	if subtle.ConstantTimeCompare([]byte(tenant.WebhookSecret), []byte(secret)) != 1 {
		return Grant{}, ErrBadCredentials
	}

	mode := ModeLive
	if testPath {
		mode = ModeTest
	}
	return Grant{Tenant: tenant, Mode: mode}, nil
}
