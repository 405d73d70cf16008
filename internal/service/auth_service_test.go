package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/makkenzo/apiguard/internal/config"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthService(ttl time.Duration) *AuthService {
	return NewAuthService(memstorage.NewUserRepositoryMock(), &config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  ttl,
		Issuer:    "apiguard-test",
	}, zap.NewNop())
}

func TestLoginAndValidateRoundTrip(t *testing.T) {
	svc := newAuthService(time.Hour)

	token, err := svc.Login(context.Background(), "admin", "adminpassword")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "apiguard-test", claims.Issuer)
	assert.NotEmpty(t, claims.Subject)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthService(time.Hour)

	_, err := svc.Login(context.Background(), "admin", "wrongpassword")
	assert.True(t, errors.Is(err, ierr.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), "nobody", "adminpassword")
	assert.True(t, errors.Is(err, ierr.ErrInvalidCredentials))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(time.Hour)

	_, err := svc.ValidateToken(context.Background(), "not.a.token")
	assert.True(t, errors.Is(err, ierr.ErrInvalidToken))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newAuthService(-time.Minute)

	token, err := svc.Login(context.Background(), "admin", "adminpassword")
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), token)
	assert.True(t, errors.Is(err, ierr.ErrInvalidToken))
}

func TestValidateTokenRejectsForeignIssuer(t *testing.T) {
	issuer := newAuthService(time.Hour)
	token, err := issuer.Login(context.Background(), "admin", "adminpassword")
	require.NoError(t, err)

	verifier := NewAuthService(memstorage.NewUserRepositoryMock(), &config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Issuer:    "someone-else",
	}, zap.NewNop())

	_, err = verifier.ValidateToken(context.Background(), token)
	assert.True(t, errors.Is(err, ierr.ErrInvalidToken))
}
