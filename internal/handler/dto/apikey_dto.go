package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateAPIKeyRequest struct {
	Name           string     `json:"name" binding:"required"`
	Description    string     `json:"description"`
	PrincipalID    uuid.UUID  `json:"principal_id" binding:"required"`
	Tier           string     `json:"tier" binding:"omitempty,oneof=BASIC STANDARD PREMIUM ENTERPRISE UNLIMITED"`
	Scopes         []string   `json:"scopes"`
	AllowedIPs     []string   `json:"allowed_ips"`
	AllowedDomains []string   `json:"allowed_domains"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// CreateAPIKeyResponse is the only place the full secret ever leaves the
// service; it is not recoverable afterwards.
type CreateAPIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	FullKey   string    `json:"full_key"`
	Prefix    string    `json:"prefix"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

type UpdateAPIKeyRequest struct {
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	Tier           *string    `json:"tier" binding:"omitempty,oneof=BASIC STANDARD PREMIUM ENTERPRISE UNLIMITED"`
	Scopes         []string   `json:"scopes"`
	AllowedIPs     []string   `json:"allowed_ips"`
	AllowedDomains []string   `json:"allowed_domains"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       *bool      `json:"is_active"`
}

type APIKeyResponse struct {
	ID             uuid.UUID  `json:"id"`
	Prefix         string     `json:"prefix"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	PrincipalID    uuid.UUID  `json:"principal_id"`
	Tier           string     `json:"tier"`
	Scopes         []string   `json:"scopes"`
	AllowedIPs     []string   `json:"allowed_ips,omitempty"`
	AllowedDomains []string   `json:"allowed_domains,omitempty"`
	IsActive       bool       `json:"is_active"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}
