package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/ierr"
	"go.uber.org/zap"
)

const wildcard = "*"

// RestrictionValidator checks a caller's IP and origin domain against the
// allow-lists on the key record. The two checks are independent; an empty
// list means no restriction.
type RestrictionValidator struct {
	logger *zap.Logger
}

func NewRestrictionValidator(logger *zap.Logger) *RestrictionValidator {
	return &RestrictionValidator{logger: logger.Named("RestrictionValidator")}
}

// ValidateIP matches the resolved client IP against the allow-list:
// literal addresses plus the "*" sentinel. No CIDR matching.
func (v *RestrictionValidator) ValidateIP(key *apikey.APIKey, clientIP string) error {
	if len(key.AllowedIPs) == 0 {
		return nil
	}
	for _, allowed := range key.AllowedIPs {
		if allowed == wildcard || allowed == clientIP {
			return nil
		}
	}
	v.logger.Warn("Client IP not in allow-list",
		zap.String("key_id", key.ID.String()),
		zap.String("client_ip", clientIP),
	)
	return fmt.Errorf("%w: %s", ierr.ErrIPNotAllowed, clientIP)
}

// ValidateDomain extracts a domain from Origin, falling back to Referer.
// When neither header is present the call is treated as server-to-server
// and passes; this permissive default is deliberate so header-less SDK and
// backend traffic is not locked out by a browser-oriented restriction.
func (v *RestrictionValidator) ValidateDomain(key *apikey.APIKey, origin, referer string) error {
	if len(key.AllowedDomains) == 0 {
		return nil
	}

	domain := extractDomain(origin)
	if domain == "" {
		domain = extractDomain(referer)
	}
	if domain == "" {
		v.logger.Debug("No Origin or Referer header, assuming server-to-server call",
			zap.String("key_id", key.ID.String()),
		)
		return nil
	}

	for _, allowed := range key.AllowedDomains {
		if domainMatches(domain, allowed) {
			return nil
		}
	}
	v.logger.Warn("Client domain not in allow-list",
		zap.String("key_id", key.ID.String()),
		zap.String("domain", domain),
	)
	return fmt.Errorf("%w: %s", ierr.ErrDomainNotAllowed, domain)
}

// domainMatches implements exact, wildcard, and subdomain-suffix matching:
// api.example.com matches example.com, notexample.com does not.
func domainMatches(domain, allowed string) bool {
	allowed = strings.ToLower(strings.TrimSpace(allowed))
	if allowed == "" {
		return false
	}
	if allowed == wildcard || domain == allowed {
		return true
	}
	return strings.HasSuffix(domain, "."+allowed)
}

func extractDomain(headerValue string) string {
	if headerValue == "" {
		return ""
	}
	raw := headerValue
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
