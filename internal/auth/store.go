package auth

import (
	"sync"
	"time"
)

// SessionState is the lifecycle position of a session.
type SessionState string

const (
	StatePendingMagicLink SessionState = "pending_magic_link"
	StateAuthenticated    SessionState = "authenticated"
	StateMFAVerified      SessionState = "mfa_verified"
	StateExpired          SessionState = "expired"
)

// Session is server-side session state. Tokens reference sessions by id
// so revocation and MFA upgrades take effect without reissuing keys.
type Session struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Tier        Tier         `json:"tier"`
	State       SessionState `json:"state"`
	MFAVerified bool         `json:"mfa_verified"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// SessionStore holds sessions. The in-memory implementation suits a
// single instance; a key-value store can replace it for multi-instance
// deployments.
type SessionStore interface {
	Get(id string) (*Session, bool)
	Set(session *Session)
	Delete(id string)
}

// MemoryStore is a mutex-guarded in-memory SessionStore. Expired
// sessions are dropped lazily on Get.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		expired := *sess
		expired.State = StateExpired
		return &expired, true
	}
	copied := *sess
	return &copied, true
}

func (s *MemoryStore) Set(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
