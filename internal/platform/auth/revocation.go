package auth

import (
	"sort"
	"sync"
	"time"
)

// MaxTokenTTL bounds token lifetime, and so how long a revocation must be
// remembered.
const MaxTokenTTL = 24 * time.Hour

// SessionRevocations rejects tokens after logout or when an administrator
// cuts a user off. Session entries match the sid claim; user entries reject
// every token of that user issued at or before the revocation.
type SessionRevocations struct {
	mu       sync.RWMutex
	sessions map[string]revocation
	users    map[string]revocation
	now      func() time.Time
}

type revocation struct {
	UserID    string
	RevokedAt time.Time
}

// RevocationInfo is one active entry as reported to administrators.
type RevocationInfo struct {
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId"`
	RevokedAt time.Time `json:"revokedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewSessionRevocations() *SessionRevocations {
	return &SessionRevocations{
		sessions: make(map[string]revocation),
		users:    make(map[string]revocation),
		now:      time.Now,
	}
}

// RevokeSession invalidates every token carrying sid.
func (s *SessionRevocations) RevokeSession(sid, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = revocation{UserID: userID, RevokedAt: s.now()}
}

// RevokeUser invalidates every token already issued to userID. Tokens issued
// afterwards are accepted.
func (s *SessionRevocations) RevokeUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = revocation{UserID: userID, RevokedAt: s.now()}
}

// IsRevoked reports whether a token for u issued at issuedAt is no longer
// honoured. A zero issuedAt counts as issued before any user revocation.
func (s *SessionRevocations) IsRevoked(u User, issuedAt time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u.SessionID != "" {
		if _, ok := s.sessions[u.SessionID]; ok {
			return true
		}
	}
	if r, ok := s.users[u.ID]; ok && !issuedAt.After(r.RevokedAt) {
		return true
	}
	return false
}

// Sweep forgets entries older than MaxTokenTTL, since every token they could
// match has expired. Returns how many were dropped.
func (s *SessionRevocations) Sweep() int {
	cutoff := s.now().Add(-MaxTokenTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range []map[string]revocation{s.sessions, s.users} {
		for k, r := range m {
			if r.RevokedAt.Before(cutoff) {
				delete(m, k)
				n++
			}
		}
	}
	return n
}

// Entries returns active revocations, newest first.
func (s *SessionRevocations) Entries() []RevocationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RevocationInfo, 0, len(s.sessions)+len(s.users))
	for sid, r := range s.sessions {
		out = append(out, RevocationInfo{SessionID: sid, UserID: r.UserID, RevokedAt: r.RevokedAt, ExpiresAt: r.RevokedAt.Add(MaxTokenTTL)})
	}
	for _, r := range s.users {
		out = append(out, RevocationInfo{UserID: r.UserID, RevokedAt: r.RevokedAt, ExpiresAt: r.RevokedAt.Add(MaxTokenTTL)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevokedAt.After(out[j].RevokedAt) })
	return out
}
