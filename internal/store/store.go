// Package store persists issued token records and the authorization code
// redemption ledger. Two backends exist: the relational database shared with
// the client registry, and Redis.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/models"
)

var (
	ErrAlreadyRedeemed = errors.New("authorization code already redeemed")
	ErrNotFound        = errors.New("token record not found")
	ErrAlreadyRevoked  = errors.New("token already revoked")
)

// expiryGrace keeps records around for a second past their expiry so that
// token verification, which tolerates the boundary second, never outlives
// the revocation and redemption state it depends on.
const expiryGrace = time.Second

// TokenStore records issued tokens and their revocation state
type TokenStore interface {
	// Record stores a freshly issued token
	Record(ctx context.Context, record *models.TokenRecord) error
	// Revoke marks the token revoked, creating the record when it was never
	// stored. Revoking twice is not an error.
	Revoke(ctx context.Context, record *models.TokenRecord) error
	// RevokeOnce revokes the token only if it is not revoked yet and returns
	// ErrAlreadyRevoked otherwise. Of concurrent callers exactly one succeeds.
	RevokeOnce(ctx context.Context, record *models.TokenRecord) error
	// IsRevoked reports whether jti has been revoked. Unknown tokens are not revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Get returns the stored record for jti or ErrNotFound
	Get(ctx context.Context, jti string) (*models.TokenRecord, error)
}

// RedemptionLedger enforces single use of authorization codes
type RedemptionLedger interface {
	// Redeem consumes codeID. A second call for the same code returns ErrAlreadyRedeemed.
	Redeem(ctx context.Context, codeID, clientID string, expiresAt time.Time) error
}

// Store is both a TokenStore and a RedemptionLedger
type Store interface {
	TokenStore
	RedemptionLedger
}
