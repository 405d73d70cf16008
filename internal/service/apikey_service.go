package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/handler/dto"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/util"
	"go.uber.org/zap"
)

// KeyCacheInvalidator drops a cached key record after a mutation so the
// gate observes policy changes without waiting out the cache TTL.
type KeyCacheInvalidator interface {
	Invalidate(ctx context.Context, keyHash string)
}

type APIKeyService struct {
	repo   apikey.Repository
	cache  KeyCacheInvalidator
	logger *zap.Logger
}

func NewAPIKeyService(repo apikey.Repository, cache KeyCacheInvalidator, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("APIKeyService"),
	}
}

func (s *APIKeyService) CreateAPIKey(ctx context.Context, req *dto.CreateAPIKeyRequest) (*dto.CreateAPIKeyResponse, error) {
	s.logger.Info("Generating new API key", zap.String("name", req.Name))

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		s.logger.Error("Failed to generate api key components", zap.Error(err))
		return nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
	}

	tier := apikey.Tier(req.Tier)
	if req.Tier == "" {
		tier = apikey.TierBasic
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ierr.ErrValidation, req.Tier)
	}

	scopes, unknown := apikey.ParseScopes(joinTokens(req.Scopes))
	if len(unknown) > 0 {
		s.logger.Warn("Dropping unknown scopes in create request", zap.Strings("unknown_scopes", unknown))
	}

	newKey := &apikey.APIKey{
		KeyHash:        keyHash,
		Prefix:         prefix,
		Name:           req.Name,
		Description:    req.Description,
		PrincipalID:    req.PrincipalID,
		IsActive:       true,
		ExpiresAt:      req.ExpiresAt,
		AllowedIPs:     req.AllowedIPs,
		AllowedDomains: req.AllowedDomains,
		Tier:           tier,
		Scopes:         scopes,
	}

	insertedID, err := s.repo.Create(ctx, newKey)
	if err != nil {
		s.logger.Error("Failed to save new api key", zap.Error(err))
		return nil, fmt.Errorf("repository error creating api key: %w", err)
	}

	resp := &dto.CreateAPIKeyResponse{
		ID:        insertedID,
		FullKey:   fullKey,
		Prefix:    prefix,
		Name:      req.Name,
		Tier:      string(tier),
		Scopes:    scopeStrings(scopes),
		CreatedAt: time.Now().UTC(),
	}

	s.logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("prefix", prefix))
	return resp, nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context, principalID uuid.UUID) ([]*dto.APIKeyResponse, error) {
	keys, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		s.logger.Error("Failed to list api keys from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing api keys: %w", err)
	}

	responses := make([]*dto.APIKeyResponse, len(keys))
	for i, key := range keys {
		responses[i] = toAPIKeyResponse(key)
	}
	return responses, nil
}

func (s *APIKeyService) UpdateAPIKey(ctx context.Context, id uuid.UUID, req *dto.UpdateAPIKeyRequest) (*dto.APIKeyResponse, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Description != nil {
		key.Description = *req.Description
	}
	if req.Tier != nil {
		tier := apikey.Tier(*req.Tier)
		if !tier.Valid() {
			return nil, fmt.Errorf("%w: unknown tier %q", ierr.ErrValidation, *req.Tier)
		}
		key.Tier = tier
	}
	if req.Scopes != nil {
		scopes, unknown := apikey.ParseScopes(joinTokens(req.Scopes))
		if len(unknown) > 0 {
			s.logger.Warn("Dropping unknown scopes in update request",
				zap.String("id", id.String()),
				zap.Strings("unknown_scopes", unknown),
			)
		}
		key.Scopes = scopes
	}
	if req.AllowedIPs != nil {
		key.AllowedIPs = req.AllowedIPs
	}
	if req.AllowedDomains != nil {
		key.AllowedDomains = req.AllowedDomains
	}
	if req.ExpiresAt != nil {
		key.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, key); err != nil {
		s.logger.Error("Failed to update api key via repository", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, key.KeyHash)

	s.logger.Info("API key policy updated", zap.String("id", id.String()))
	return toAPIKeyResponse(key), nil
}

func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Revoke(ctx, id, time.Now().UTC()); err != nil {
		s.logger.Error("Failed to revoke api key via repository", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("repository error revoking api key %s: %w", id, err)
	}
	s.invalidate(ctx, key.KeyHash)

	s.logger.Info("API key revoked successfully", zap.String("id", id.String()))
	return nil
}

func (s *APIKeyService) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete api key via repository", zap.String("id", id.String()), zap.Error(err))
		return err
	}
	s.invalidate(ctx, key.KeyHash)

	s.logger.Info("API key deleted", zap.String("id", id.String()))
	return nil
}

func (s *APIKeyService) invalidate(ctx context.Context, keyHash string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, keyHash)
	}
}

func toAPIKeyResponse(key *apikey.APIKey) *dto.APIKeyResponse {
	return &dto.APIKeyResponse{
		ID:             key.ID,
		Prefix:         key.Prefix,
		Name:           key.Name,
		Description:    key.Description,
		PrincipalID:    key.PrincipalID,
		Tier:           string(key.Tier),
		Scopes:         scopeStrings(key.Scopes),
		AllowedIPs:     key.AllowedIPs,
		AllowedDomains: key.AllowedDomains,
		IsActive:       key.IsActive,
		RevokedAt:      key.RevokedAt,
		ExpiresAt:      key.ExpiresAt,
		CreatedAt:      key.CreatedAt,
		LastUsedAt:     key.LastUsedAt,
	}
}

func scopeStrings(scopes apikey.ScopeSet) []string {
	out := make([]string, len(scopes))
	for i, sc := range scopes {
		out[i] = string(sc)
	}
	return out
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, ",")
}
