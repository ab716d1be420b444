package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuthAPI struct {
	LoginFunc    func(ctx context.Context, email, password string) (AuthResult, error)
	RegisterFunc func(ctx context.Context, email, password string) (AuthResult, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (TokenPair, error)
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return f.LoginFunc(ctx, email, password)
}

func (f *fakeAuthAPI) Register(ctx context.Context, email, password string) (AuthResult, error) {
	return f.RegisterFunc(ctx, email, password)
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f.RefreshFunc(ctx, refreshToken)
}

func newManager(t *testing.T, api AuthAPI, opts ...Option) (*Manager, *TokenStore, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemory()
	tokens := NewTokenStore(kv, zap.NewNop())
	return NewManager(tokens, api, zap.NewNop(), opts...), tokens, kv
}

func TestTokenStore_LoadRestoresSession(t *testing.T) {
	kv := storage.NewMemory()
	first := NewTokenStore(kv, zap.NewNop())
	first.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1", Email: "u1@example.com"})

	second := NewTokenStore(kv, zap.NewNop())
	second.Load()

	pair, ok := second.Tokens()
	require.True(t, ok)
	assert.Equal(t, TokenPair{AccessToken: "a1", RefreshToken: "r1"}, pair)
	user, ok := second.User()
	require.True(t, ok)
	assert.Equal(t, "u1@example.com", user.Email)
}

func TestTokenStore_ClearRemovesDurableCopies(t *testing.T) {
	kv := storage.NewMemory()
	ts := NewTokenStore(kv, zap.NewNop())
	ts.Set(TokenPair{AccessToken: "a", RefreshToken: "r"}, User{ID: "u"})

	ts.Clear()

	assert.Equal(t, "", ts.AccessToken())
	assert.False(t, kv.Has(tokensKey))
	assert.False(t, kv.Has(userKey))
}

func TestLoginAndLogout(t *testing.T) {
	terminated := 0
	api := &fakeAuthAPI{
		LoginFunc: func(_ context.Context, email, password string) (AuthResult, error) {
			assert.Equal(t, "ann@example.com", email)
			assert.Equal(t, "hunter22", password)
			return AuthResult{
				TokenPair: TokenPair{AccessToken: "a1", RefreshToken: "r1"},
				User:      User{ID: "u1", Email: email},
			}, nil
		},
	}
	m, _, kv := newManager(t, api, WithTerminateHook(func() { terminated++ }))

	user, err := m.Login(context.Background(), "ann@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "a1", m.AccessToken())
	assert.True(t, kv.Has(tokensKey))

	m.Logout()
	assert.False(t, m.IsAuthenticated())
	assert.False(t, kv.Has(userKey))
	assert.Equal(t, 1, terminated)
}

func TestLogin_ErrorLeavesStateUntouched(t *testing.T) {
	api := &fakeAuthAPI{
		LoginFunc: func(context.Context, string, string) (AuthResult, error) {
			return AuthResult{}, errors.New("api /api/auth/login returned status 401")
		},
	}
	m, _, _ := newManager(t, api)
	_, err := m.Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.False(t, m.IsAuthenticated())
}

func TestRefresh_NoSessionFailsFast(t *testing.T) {
	var calls atomic.Int32
	terminated := 0
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{}, nil
	}}
	m, _, _ := newManager(t, api, WithTerminateHook(func() { terminated++ }))

	_, err := m.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(0), calls.Load(), "no exchange without a refresh token")
	assert.Equal(t, 0, terminated, "nothing to terminate")
}

func TestSignOutHookRunsOncePerSession(t *testing.T) {
	terminated := 0
	api := &fakeAuthAPI{
		LoginFunc: func(context.Context, string, string) (AuthResult, error) {
			return AuthResult{TokenPair: TokenPair{AccessToken: "a1", RefreshToken: "r1"}}, nil
		},
		RefreshFunc: func(context.Context, string) (TokenPair, error) {
			t.Fatal("no exchange after logout")
			return TokenPair{}, nil
		},
	}
	m, _, _ := newManager(t, api, WithTerminateHook(func() { terminated++ }))
	_, err := m.Login(context.Background(), "a@b.c", "secret1")
	require.NoError(t, err)

	m.Logout()
	// A request that was in flight during logout comes back with 401.
	_, err = m.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	m.Logout()

	assert.Equal(t, 1, terminated)
}

func TestRefresh_SuccessPersistsNewPair(t *testing.T) {
	api := &fakeAuthAPI{RefreshFunc: func(_ context.Context, refresh string) (TokenPair, error) {
		assert.Equal(t, "r1", refresh)
		return TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
	}}
	m, tokens, kv := newManager(t, api)
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1"})

	pair, err := m.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", pair.AccessToken)

	var stored TokenPair
	found, err := kv.Get(tokensKey, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, TokenPair{AccessToken: "a2", RefreshToken: "r2"}, stored)
	user, ok := m.User()
	require.True(t, ok, "user survives a refresh")
	assert.Equal(t, "u1", user.ID)
}

func TestRefresh_RejectedTerminatesSession(t *testing.T) {
	var calls atomic.Int32
	terminated := 0
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		return TokenPair{}, errors.New("api /api/auth/refresh returned status 401")
	}}
	m, tokens, kv := newManager(t, api, WithTerminateHook(func() { terminated++ }))
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "revoked"}, User{ID: "u1"})

	_, err := m.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.False(t, m.IsAuthenticated())
	assert.False(t, kv.Has(tokensKey))
	assert.Equal(t, 1, terminated)

	_, err = m.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int32(1), calls.Load(), "a failed exchange is never retried")
}

func TestRefresh_UnreachableKeepsSession(t *testing.T) {
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		return TokenPair{}, fmt.Errorf("%w: dial tcp: connection refused", ErrUnreachable)
	}}
	m, tokens, _ := newManager(t, api)
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1"})

	_, err := m.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.True(t, m.IsAuthenticated())
}

func TestRefresh_ConcurrentCallersShareOneExchange(t *testing.T) {
	const callers = 20
	var calls atomic.Int32
	release := make(chan struct{})
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		n := calls.Add(1)
		<-release
		return TokenPair{AccessToken: fmt.Sprintf("a%d", n+1), RefreshToken: fmt.Sprintf("r%d", n+1)}, nil
	}}
	m, tokens, _ := newManager(t, api)
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1"})

	var joined, done sync.WaitGroup
	results := make([]TokenPair, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		joined.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			joined.Done()
			results[i], errs[i] = m.RefreshAccessToken(context.Background())
		}(i)
	}
	joined.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, "a2", results[0].AccessToken)
}

func TestRefresh_ConcurrentCallersShareFailure(t *testing.T) {
	const callers = 10
	var calls atomic.Int32
	release := make(chan struct{})
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		calls.Add(1)
		<-release
		return TokenPair{}, errors.New("revoked")
	}}
	m, tokens, _ := newManager(t, api)
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1"})

	var joined, done sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		joined.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			joined.Done()
			_, errs[i] = m.RefreshAccessToken(context.Background())
		}(i)
	}
	joined.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRefreshFailed)
	}
}

func TestRefresh_CallerContextStopsWaitingOnly(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAuthAPI{RefreshFunc: func(context.Context, string) (TokenPair, error) {
		<-release
		return TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
	}}
	m, tokens, _ := newManager(t, api)
	tokens.Set(TokenPair{AccessToken: "a1", RefreshToken: "r1"}, User{ID: "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return m.AccessToken() == "a2" }, time.Second, 10*time.Millisecond)
}
