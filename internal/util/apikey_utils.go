package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/ierr"
)

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// generateRandomString keeps drawing entropy until the requested length is
// reached. Stripping the URL-safe punctuation from the base64 alphabet can
// shorten a single draw, and a short segment would fail the format check on
// the key we just issued.
func generateRandomString(length int) (string, error) {
	var sb strings.Builder
	for sb.Len() < length {
		b, err := generateRandomBytes((length*3 + 3) / 4)
		if err != nil {
			return "", err
		}

		str := base64.URLEncoding.EncodeToString(b)
		str = strings.ReplaceAll(str, "-", "")
		str = strings.ReplaceAll(str, "_", "")
		str = strings.ReplaceAll(str, "=", "")
		sb.WriteString(str)
	}

	return sb.String()[:length], nil
}

func GenerateAPIKey() (fullKey string, prefix string, keyHash string, err error) {
	prefix, err = generateRandomString(apikey.APIKeyPrefixLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}

	secret, err := generateRandomString(apikey.APIKeySecretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	fullKey = fmt.Sprintf(apikey.APIKeyFormat, prefix, secret)

	hashBytes := sha256.Sum256([]byte(fullKey))
	keyHash = fmt.Sprintf("%x", hashBytes)

	return fullKey, prefix, keyHash, nil
}

// ValidateKeyFormat is the cheap reject path run before any hashing or
// store access: expected "ag_<prefix>_<secret>" shape with minimum segment
// lengths. It returns the prefix tag for logging.
func ValidateKeyFormat(fullKey string) (prefix string, err error) {
	parts := strings.SplitN(fullKey, "_", 3)
	if len(parts) != 3 || parts[0] != "ag" {
		return "", fmt.Errorf("%w: unexpected key shape", ierr.ErrMalformedCredential)
	}
	if len(parts[1]) < apikey.APIKeyPrefixLength || len(parts[2]) < apikey.APIKeySecretLength/2 {
		return "", fmt.Errorf("%w: key segments too short", ierr.ErrMalformedCredential)
	}
	return parts[1], nil
}

func HashAPIKey(fullKey string) string {
	hashBytes := sha256.Sum256([]byte(fullKey))
	return fmt.Sprintf("%x", hashBytes)
}

// HashPrefix is the non-secret identifier used in audit logs.
func HashPrefix(keyHash string) string {
	if len(keyHash) < 8 {
		return keyHash
	}
	return keyHash[:8]
}
