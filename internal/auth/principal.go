package auth

import (
	"context"
	"strings"
	"time"
)

// Principal is the authenticated caller attached to every request.
type Principal struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Tier        Tier      `json:"tier"`
	MFAVerified bool      `json:"mfa_verified"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the principal's session has lapsed.
func (p *Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Anonymous is the public-tier principal used when no credentials are
// presented.
func Anonymous() *Principal {
	return &Principal{UserID: "anonymous", Tier: TierPublic}
}

// DevAdmin is the synthetic principal substituted in dev mode.
func DevAdmin() *Principal {
	return &Principal{UserID: "dev", Tier: TierAdmin, MFAVerified: true}
}

type contextKey struct{}

// WithPrincipal attaches a principal to the request context. The flag is
// request-scoped; there is no process-wide admin toggle.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom extracts the principal, defaulting to anonymous.
func PrincipalFrom(ctx context.Context) *Principal {
	if p, ok := ctx.Value(contextKey{}).(*Principal); ok && p != nil {
		return p
	}
	return Anonymous()
}

// TierForEmail derives a tier from configured admin addresses and
// developer domains. Unknown addresses get the public tier.
func TierForEmail(email string, adminEmails []string, developerDomains []string) Tier {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range adminEmails {
		if strings.EqualFold(admin, email) {
			return TierAdmin
		}
	}
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		domain := email[at+1:]
		for _, d := range developerDomains {
			if strings.EqualFold(d, domain) {
				return TierDeveloper
			}
		}
	}
	return TierPublic
}
