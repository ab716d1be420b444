package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey            = "refresh"
	defaultRefreshTimeout = 15 * time.Second
)

// Manager is the session context handed to every component that needs
// credentials. Tokens change only through Login, Register, RefreshAccessToken
// and Logout.
type Manager struct {
	tokens *TokenStore
	api    AuthAPI
	log    *zap.Logger

	group          singleflight.Group
	refreshTimeout time.Duration
	onTerminate    func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshTimeout bounds a single refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithTerminateHook sets fn to run after the session is terminated, either by
// Logout or by a failed refresh. It is where the caller sends the user back
// to the login surface.
func WithTerminateHook(fn func()) Option {
	return func(m *Manager) { m.onTerminate = fn }
}

// NewManager builds a Manager over tokens. tokens should already be loaded.
func NewManager(tokens *TokenStore, api AuthAPI, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		tokens:         tokens,
		api:            api,
		log:            log,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAuthenticated reports whether an access token is held.
func (m *Manager) IsAuthenticated() bool {
	return m.tokens.AccessToken() != ""
}

// AccessToken returns the current access token or "".
func (m *Manager) AccessToken() string {
	return m.tokens.AccessToken()
}

// User returns the cached user, if any.
func (m *Manager) User() (User, bool) {
	return m.tokens.User()
}

// Login authenticates against the API and stores the resulting session.
func (m *Manager) Login(ctx context.Context, email, password string) (User, error) {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	m.tokens.Set(res.TokenPair, res.User)
	m.log.Info("logged in", zap.String("user_id", res.User.ID))
	return res.User, nil
}

// Register creates an account and stores the resulting session.
func (m *Manager) Register(ctx context.Context, email, password string) (User, error) {
	res, err := m.api.Register(ctx, email, password)
	if err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}
	m.tokens.Set(res.TokenPair, res.User)
	m.log.Info("registered", zap.String("user_id", res.User.ID))
	return res.User, nil
}

// Logout terminates the session. In-flight requests are left alone; a 401
// they receive later fails fast with ErrNoSession.
func (m *Manager) Logout() {
	m.terminate("logout")
}

// RefreshAccessToken exchanges the stored refresh token for a new pair. At
// most one exchange runs at a time; callers arriving while one is in flight
// wait for it and receive the same pair or the same error.
//
// ctx only bounds how long this caller waits. The exchange itself keeps
// running for the other waiters.
func (m *Manager) RefreshAccessToken(ctx context.Context) (TokenPair, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.exchange()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Err
		}
		return res.Val.(TokenPair), nil
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	}
}

func (m *Manager) exchange() (TokenPair, error) {
	refresh := m.tokens.RefreshToken()
	if refresh == "" {
		// Already signed out; a late 401 must not announce it again.
		return TokenPair{}, ErrNoSession
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	pair, err := m.api.Refresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			// Nothing was said about the refresh token; keep the session.
			m.log.Warn("token refresh could not reach the server", zap.Error(err))
			return TokenPair{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		m.log.Warn("token refresh rejected", zap.Error(err))
		m.terminate("refresh rejected")
		return TokenPair{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	m.tokens.SetTokens(pair)
	m.log.Debug("access token refreshed")
	return pair, nil
}

// terminate clears the tokens and runs the hook, once per session.
func (m *Manager) terminate(reason string) {
	if _, held := m.tokens.Tokens(); !held {
		return
	}
	m.tokens.Clear()
	m.log.Info("session terminated", zap.String("reason", reason))
	if m.onTerminate != nil {
		m.onTerminate()
	}
}
