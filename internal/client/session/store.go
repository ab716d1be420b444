// Package session owns the client's authentication state: the stored token
// pair, the cached user, single-flight token refresh, and session
// termination.
package session

import (
	"sync"

	"github.com/atinyakov/liftlog/internal/client/storage"
	"go.uber.org/zap"
)

const (
	tokensKey = "auth.tokens"
	userKey   = "auth.user"
)

// TokenStore holds the current token pair and user in memory and mirrors
// them to a durable store.
type TokenStore struct {
	mu     sync.RWMutex
	store  storage.Store
	log    *zap.Logger
	tokens *TokenPair
	user   *User
}

// NewTokenStore creates an empty TokenStore backed by store. Call Load to
// restore a previous session.
func NewTokenStore(store storage.Store, log *zap.Logger) *TokenStore {
	return &TokenStore{store: store, log: log}
}

// Load restores tokens and user from the durable store. Unreadable entries
// are logged and treated as absent.
func (s *TokenStore) Load() {
	var pair TokenPair
	found, err := s.store.Get(tokensKey, &pair)
	if err != nil {
		s.log.Warn("failed to load stored tokens", zap.Error(err))
	}
	var user User
	userFound, err := s.store.Get(userKey, &user)
	if err != nil {
		s.log.Warn("failed to load cached user", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens, s.user = nil, nil
	if found && pair.AccessToken != "" {
		s.tokens = &pair
	}
	if userFound {
		s.user = &user
	}
}

// Tokens returns the current pair and whether one is present.
func (s *TokenStore) Tokens() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return TokenPair{}, false
	}
	return *s.tokens, true
}

// AccessToken returns the current access token or "".
func (s *TokenStore) AccessToken() string {
	pair, _ := s.Tokens()
	return pair.AccessToken
}

// RefreshToken returns the current refresh token or "".
func (s *TokenStore) RefreshToken() string {
	pair, _ := s.Tokens()
	return pair.RefreshToken
}

// User returns the cached user and whether one is present.
func (s *TokenStore) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Set replaces both the token pair and the user.
func (s *TokenStore) Set(pair TokenPair, user User) {
	s.mu.Lock()
	s.tokens = &pair
	s.user = &user
	s.mu.Unlock()

	s.persist(tokensKey, pair)
	s.persist(userKey, user)
}

// SetTokens replaces the token pair and keeps the cached user.
func (s *TokenStore) SetTokens(pair TokenPair) {
	s.mu.Lock()
	s.tokens = &pair
	s.mu.Unlock()

	s.persist(tokensKey, pair)
}

// Clear drops tokens and user from memory and from the durable store.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.tokens, s.user = nil, nil
	s.mu.Unlock()

	for _, key := range []string{tokensKey, userKey} {
		if err := s.store.Remove(key); err != nil {
			s.log.Error("failed to remove session entry", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *TokenStore) persist(key string, value any) {
	if err := s.store.Set(key, value); err != nil {
		s.log.Error("failed to persist session entry", zap.String("key", key), zap.Error(err))
	}
}
