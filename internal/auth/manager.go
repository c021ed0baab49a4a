package auth

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/errors"
)

const (
	// DefaultMagicLinkTTL bounds how long a magic link stays redeemable.
	DefaultMagicLinkTTL = 15 * time.Minute

	// DefaultSessionDuration applies when config leaves it zero.
	DefaultSessionDuration = 60 * time.Minute

	purposeMagicLink = "magic_link"
	purposeSession   = "session"
	purposeM2M       = "m2m"
)

// Manager implements the authentication provider: magic-link issuance
// and redemption, session JWTs, TOTP verification, API keys, and M2M
// credential exchange. All tokens are HS256 JWTs signed with the
// configured session secret.
type Manager struct {
	cfg      config.AuthConfig
	secret   []byte
	store    SessionStore
	linkTTL  time.Duration
	duration time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	totpByUser map[string]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionStore replaces the default in-memory store.
func WithSessionStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithMagicLinkTTL overrides the magic-link validity window.
func WithMagicLinkTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.linkTTL = d
		}
	}
}

// NewManager creates an auth manager. The session secret is required.
func NewManager(cfg config.AuthConfig, opts ...ManagerOption) (*Manager, error) {
	if cfg.SessionSecret == "" {
		return nil, errors.New(errors.KindValidation, "auth session secret is required")
	}
	m := &Manager{
		cfg:        cfg,
		secret:     []byte(cfg.SessionSecret),
		store:      NewMemoryStore(),
		linkTTL:    DefaultMagicLinkTTL,
		duration:   cfg.SessionDuration,
		logger:     slog.Default().With("component", "auth"),
		now:        time.Now,
		totpByUser: make(map[string]string),
	}
	if m.duration <= 0 {
		m.duration = DefaultSessionDuration
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueMagicLink starts a login: creates a pending session and returns
// the single-use link token to be delivered out of band.
func (m *Manager) IssueMagicLink(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", errors.Validation("email", "a valid email address is required")
	}

	now := m.now()
	session := &Session{
		ID:        uuid.NewString(),
		Email:     email,
		Tier:      TierForEmail(email, m.cfg.AdminEmails, m.cfg.DeveloperDomains),
		State:     StatePendingMagicLink,
		CreatedAt: now,
		ExpiresAt: now.Add(m.linkTTL),
	}
	m.store.Set(session)

	token, err := m.sign(session, purposeMagicLink, session.ExpiresAt)
	if err != nil {
		return "", err
	}
	m.logger.Info("magic link issued", "email", email, "tier", session.Tier)
	return token, nil
}

// RedeemMagicLink completes a login: validates the link token, moves the
// session to authenticated, and returns the session bearer token.
func (m *Manager) RedeemMagicLink(linkToken string) (string, *Principal, error) {
	session, err := m.resolve(linkToken, purposeMagicLink)
	if err != nil {
		return "", nil, err
	}
	if session.State != StatePendingMagicLink {
		return "", nil, errors.New(errors.KindUnauthorized, "magic link already redeemed")
	}

	now := m.now()
	session.State = StateAuthenticated
	session.ExpiresAt = now.Add(m.duration)
	m.store.Set(session)

	token, err := m.sign(session, purposeSession, session.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	return token, m.principal(session), nil
}

// VerifyMFA upgrades an authenticated session after a valid TOTP code
// and returns a refreshed bearer token carrying mfa_verified.
func (m *Manager) VerifyMFA(sessionToken, code string) (string, *Principal, error) {
	session, err := m.resolve(sessionToken, purposeSession)
	if err != nil {
		return "", nil, err
	}
	if session.State != StateAuthenticated && session.State != StateMFAVerified {
		return "", nil, errors.New(errors.KindUnauthorized, "session is not authenticated")
	}

	secret, ok := m.totpSecret(session.Email)
	if !ok {
		return "", nil, errors.New(errors.KindConflict, "no authenticator is enrolled for this account")
	}
	if !VerifyTOTP(secret, code, m.now()) {
		return "", nil, errors.New(errors.KindUnauthorized, "invalid verification code")
	}

	session.State = StateMFAVerified
	session.MFAVerified = true
	m.store.Set(session)

	token, err := m.sign(session, purposeSession, session.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	return token, m.principal(session), nil
}

// EnrollTOTP generates and stores a TOTP secret for an account,
// returning the secret for provisioning an authenticator.
func (m *Manager) EnrollTOTP(email string) (string, error) {
	secret, err := GenerateTOTPSecret()
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "generate totp secret", err)
	}
	m.mu.Lock()
	m.totpByUser[strings.ToLower(email)] = secret
	m.mu.Unlock()
	return secret, nil
}

// ExchangeM2M swaps a pre-provisioned API key for a short-lived bearer
// token at the key's tier. client_id must match the key's name.
func (m *Manager) ExchangeM2M(clientID, clientSecret string) (string, *Principal, error) {
	p, err := m.LookupAPIKey(clientSecret)
	if err != nil {
		return "", nil, err
	}
	if p.UserID != clientID {
		return "", nil, errors.New(errors.KindUnauthorized, "client credentials do not match")
	}

	now := m.now()
	session := &Session{
		ID:          uuid.NewString(),
		Email:       p.Email,
		Tier:        p.Tier,
		State:       StateAuthenticated,
		MFAVerified: p.MFAVerified,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.duration),
	}
	m.store.Set(session)

	token, err := m.sign(session, purposeM2M, session.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	return token, m.principal(session), nil
}

// LookupAPIKey resolves a pre-provisioned key to a principal. Keys map
// to "name:tier" descriptors in config. Service and admin keys count as
// MFA-verified; the key itself is the second factor.
func (m *Manager) LookupAPIKey(key string) (*Principal, error) {
	descriptor, ok := m.cfg.APIKeys[key]
	if !ok {
		return nil, errors.New(errors.KindUnauthorized, "unknown api key")
	}
	name, tierName, found := strings.Cut(descriptor, ":")
	if !found {
		return nil, errors.Newf(errors.KindInternal, "malformed api key descriptor for %q", name)
	}
	tier, err := ParseTier(tierName)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "api key tier", err)
	}
	return &Principal{
		UserID:      name,
		Tier:        tier,
		MFAVerified: tier.AtLeast(TierAdmin),
	}, nil
}

// Authenticate resolves a bearer credential to a principal: session and
// M2M tokens first, then API keys.
func (m *Manager) Authenticate(token string) (*Principal, error) {
	if token == "" {
		return nil, errors.New(errors.KindUnauthorized, "missing credentials")
	}
	if session, err := m.resolveAny(token); err == nil {
		return m.principal(session), nil
	}
	return m.LookupAPIKey(token)
}

// Revoke deletes a session so its tokens stop resolving.
func (m *Manager) Revoke(sessionToken string) {
	if session, err := m.resolveAny(sessionToken); err == nil {
		m.store.Delete(session.ID)
	}
}

func (m *Manager) principal(session *Session) *Principal {
	return &Principal{
		UserID:      session.Email,
		Email:       session.Email,
		Tier:        session.Tier,
		MFAVerified: session.MFAVerified,
		ExpiresAt:   session.ExpiresAt,
	}
}

// sign issues a JWT referencing the session.
func (m *Manager) sign(session *Session, purpose string, expires time.Time) (string, error) {
	tok, err := jwt.NewBuilder().
		Subject(session.Email).
		IssuedAt(m.now()).
		Expiration(expires).
		Claim("sid", session.ID).
		Claim("purpose", purpose).
		Claim("tier", string(session.Tier)).
		Claim("mfa", session.MFAVerified).
		Build()
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "build token", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "sign token", err)
	}
	return string(signed), nil
}

// resolve parses a token, checks its purpose, and loads the session.
func (m *Manager) resolve(token, purpose string) (*Session, error) {
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnauthorized, "invalid token", err)
	}

	got, _ := parsed.Get("purpose")
	if gotStr, _ := got.(string); purpose != "" && gotStr != purpose {
		return nil, errors.New(errors.KindUnauthorized, "token purpose mismatch")
	}

	sidClaim, _ := parsed.Get("sid")
	sid, _ := sidClaim.(string)
	session, ok := m.store.Get(sid)
	if !ok {
		return nil, errors.New(errors.KindUnauthorized, "session not found")
	}
	if session.State == StateExpired || m.now().After(session.ExpiresAt) {
		return nil, errors.New(errors.KindUnauthorized, "session expired")
	}
	return session, nil
}

// resolveAny accepts both session and M2M tokens.
func (m *Manager) resolveAny(token string) (*Session, error) {
	session, err := m.resolve(token, purposeSession)
	if err == nil {
		return session, nil
	}
	return m.resolve(token, purposeM2M)
}

func (m *Manager) totpSecret(email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.totpByUser[strings.ToLower(email)]
	return secret, ok
}
