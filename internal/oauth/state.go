package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"
	"time"
)

// stateTTL is the fixed lifetime of an authorization request.
const stateTTL = 10 * time.Minute

// flowState is the transient record for one in-flight authorization,
// keyed by the random state token.
type flowState struct {
	Platform     string
	UserID       string
	CodeVerifier string // set only for PKCE platforms
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// stateStore owns the bounded, TTL-swept map of state token to flowState.
// The state token is the only serialization key: take is atomic per token, so
// a duplicate callback for the same state is rejected as already consumed.
type stateStore struct {
	mu     sync.Mutex
	states map[string]flowState
	now    func() time.Time
}

func newStateStore() *stateStore {
	return &stateStore{
		states: make(map[string]flowState),
		now:    time.Now,
	}
}

// put registers a new flow state and opportunistically sweeps expired
// entries to bound memory.
func (s *stateStore) put(token string, st flowState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.states {
		if now.After(v.ExpiresAt) {
			delete(s.states, k)
		}
	}
	s.states[token] = st
}

// take removes and returns the state for a token. The second return reports
// whether the token existed at all; the third whether it had expired.
// Removal happens on every path so a state is never replayable.
func (s *stateStore) take(token string) (flowState, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[token]
	if !ok {
		return flowState{}, false, false
	}
	delete(s.states, token)

	if s.now().After(st.ExpiresAt) {
		return flowState{}, true, true
	}
	return st, true, false
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// generateState returns a URL-safe state token with 32 bytes of entropy.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
