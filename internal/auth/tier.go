// Package auth derives principals from credentials: magic-link sessions
// signed as HS256 JWTs, pre-provisioned API keys, machine-to-machine
// token exchange, and TOTP verification for admin MFA.
package auth

import "github.com/Aman-CERP/amanrag/internal/errors"

// Tier is an access level. Ordering is total; a higher tier subsumes
// every lower one.
type Tier string

const (
	TierPublic    Tier = "public"
	TierDeveloper Tier = "developer"
	TierAdmin     Tier = "admin"
	TierService   Tier = "service"
)

var tierRank = map[Tier]int{
	TierPublic:    0,
	TierDeveloper: 1,
	TierAdmin:     2,
	TierService:   3,
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierRank[t]; !ok {
		return "", errors.Newf(errors.KindValidation, "unknown tier %q", s)
	}
	return t, nil
}

// AtLeast reports whether t grants access requiring minimum.
func (t Tier) AtLeast(minimum Tier) bool {
	return tierRank[t] >= tierRank[minimum]
}

func (t Tier) String() string { return string(t) }
