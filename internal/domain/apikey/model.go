package apikey

import (
	"time"

	"github.com/google/uuid"
)

type APIKey struct {
	ID             uuid.UUID  `db:"id"`
	KeyHash        string     `db:"key_hash"`
	Prefix         string     `db:"prefix"`
	Name           string     `db:"name"`
	Description    string     `db:"description"`
	PrincipalID    uuid.UUID  `db:"principal_id"`
	IsActive       bool       `db:"is_active"`
	RevokedAt      *time.Time `db:"revoked_at"`
	ExpiresAt      *time.Time `db:"expires_at"`
	AllowedIPs     []string   `db:"allowed_ips"`
	AllowedDomains []string   `db:"allowed_domains"`
	Tier           Tier       `db:"tier"`
	Scopes         ScopeSet   `db:"scopes"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	LastUsedAt     *time.Time `db:"last_used_at"`
}

const (
	APIKeyPrefixLength = 8
	APIKeySecretLength = 32
	APIKeyFormat       = "ag_%s_%s"
)

// LifecycleStatus is the reason-code outcome of the fixed lifecycle check
// order: active flag, revocation, expiry. Missing or ambiguous data fails
// closed.
type LifecycleStatus string

const (
	LifecycleOK       LifecycleStatus = "OK"
	LifecycleInactive LifecycleStatus = "INACTIVE"
	LifecycleRevoked  LifecycleStatus = "REVOKED"
	LifecycleExpired  LifecycleStatus = "EXPIRED"
)

func (k *APIKey) Lifecycle(now time.Time) LifecycleStatus {
	if !k.IsActive {
		return LifecycleInactive
	}
	if k.RevokedAt != nil {
		return LifecycleRevoked
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return LifecycleExpired
	}
	return LifecycleOK
}
