package authn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atinyakov/liftlog/internal/client/session"
	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type fakeSession struct {
	mu        sync.Mutex
	token     string
	next      string
	err       error
	refreshes int
}

func (f *fakeSession) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) RefreshAccessToken(context.Context) (session.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return session.TokenPair{}, f.err
	}
	f.token = f.next
	return session.TokenPair{AccessToken: f.next, RefreshToken: "r-" + f.next}, nil
}

func respond(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRoundTrip_AttachesBearer(t *testing.T) {
	var got string
	tr := &Transport{
		Session: &fakeSession{token: "a1"},
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			got = r.Header.Get("Authorization")
			return respond(http.StatusOK, "[]"), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer a1", got)
	assert.Empty(t, req.Header.Get("Authorization"), "original request must not be modified")
}

func TestRoundTrip_NoTokenProceedsUnauthenticated(t *testing.T) {
	var got []string
	tr := &Transport{
		Session: &fakeSession{},
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			got = r.Header.Values("Authorization")
			return respond(http.StatusOK, ""), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)
	_, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRoundTrip_AuthEndpointsBypass(t *testing.T) {
	sess := &fakeSession{token: "a1", next: "a2"}
	calls := 0
	tr := &Transport{
		Session: sess,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			assert.Empty(t, r.Header.Get("Authorization"))
			return respond(http.StatusUnauthorized, "invalid refresh token"), nil
		}),
	}
	for _, path := range []string{"/api/auth/login", "/api/auth/register", "/api/auth/refresh"} {
		req, _ := http.NewRequest(http.MethodPost, "http://api.test"+path, strings.NewReader(`{}`))
		resp, err := tr.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, sess.refreshes)
}

func TestRoundTrip_RefreshesAndRetriesOnce(t *testing.T) {
	sess := &fakeSession{token: "old", next: "new"}
	var auths, bodies []string
	tr := &Transport{
		Session: sess,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			auths = append(auths, r.Header.Get("Authorization"))
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if r.Header.Get("Authorization") == "Bearer old" {
				return respond(http.StatusUnauthorized, "expired"), nil
			}
			return respond(http.StatusCreated, `{"id":"w1"}`), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodPost, "http://api.test/api/workouts", bytes.NewReader([]byte(`{"name":"legs"}`)))

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id":"w1"}`, readBody(t, resp))
	assert.Equal(t, []string{"Bearer old", "Bearer new"}, auths)
	assert.Equal(t, []string{`{"name":"legs"}`, `{"name":"legs"}`}, bodies)
	assert.Equal(t, 1, sess.refreshes)
}

func TestRoundTrip_SecondUnauthorizedIsNotRetried(t *testing.T) {
	sess := &fakeSession{token: "old", next: "new"}
	calls := 0
	tr := &Transport{
		Session: sess,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return respond(http.StatusUnauthorized, r.Header.Get("Authorization")), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer new", readBody(t, resp), "the retried response is returned")
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sess.refreshes)
}

func TestRoundTrip_RefreshFailureReturnsOriginal401(t *testing.T) {
	sess := &fakeSession{token: "old", err: session.ErrRefreshFailed}
	calls := 0
	tr := &Transport{
		Session: sess,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return respond(http.StatusUnauthorized, "token expired"), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "token expired", readBody(t, resp))
	assert.Equal(t, 1, calls)
}

func TestRoundTrip_OtherStatusesPassThrough(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		sess := &fakeSession{token: "a1", next: "a2"}
		calls := 0
		tr := &Transport{
			Session: sess,
			Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				calls++
				return respond(code, ""), nil
			}),
		}
		req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)
		resp, err := tr.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, code, resp.StatusCode)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, sess.refreshes)
	}
}

func TestRoundTrip_TransportErrorPassesThrough(t *testing.T) {
	wantErr := errors.New("connection refused")
	tr := &Transport{
		Session: &fakeSession{token: "a1"},
		Base: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, wantErr
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)
	_, err := tr.RoundTrip(req)
	assert.ErrorIs(t, err, wantErr)
}

func TestRoundTrip_ReusesTokenRefreshedBySibling(t *testing.T) {
	sess := &fakeSession{token: "old", next: "unused"}
	var auths []string
	tr := &Transport{
		Session: sess,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			auths = append(auths, r.Header.Get("Authorization"))
			if len(auths) == 1 {
				// A sibling refresh lands while this request is in flight.
				sess.mu.Lock()
				sess.token = "sibling"
				sess.mu.Unlock()
				return respond(http.StatusUnauthorized, ""), nil
			}
			return respond(http.StatusOK, ""), nil
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer old", "Bearer sibling"}, auths)
	assert.Equal(t, 0, sess.refreshes)
}

type countingAuthAPI struct {
	calls   atomic.Int32
	release chan struct{}
}

func (c *countingAuthAPI) Login(context.Context, string, string) (session.AuthResult, error) {
	return session.AuthResult{}, errors.New("unused")
}

func (c *countingAuthAPI) Register(context.Context, string, string) (session.AuthResult, error) {
	return session.AuthResult{}, errors.New("unused")
}

func (c *countingAuthAPI) Refresh(context.Context, string) (session.TokenPair, error) {
	c.calls.Add(1)
	<-c.release
	return session.TokenPair{AccessToken: "fresh", RefreshToken: "r2"}, nil
}

func TestRoundTrip_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	api := &countingAuthAPI{release: make(chan struct{})}
	tokens := session.NewTokenStore(storage.NewMemory(), zap.NewNop())
	tokens.Set(session.TokenPair{AccessToken: "stale", RefreshToken: "r1"}, session.User{ID: "u1"})
	mgr := session.NewManager(tokens, api, zap.NewNop())

	var mu sync.Mutex
	var retried []string
	var arrived sync.WaitGroup
	const requests = 8
	arrived.Add(requests)
	tr := &Transport{
		Session: mgr,
		Base: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			auth := r.Header.Get("Authorization")
			if auth == "Bearer stale" {
				// Hold every first attempt until all have been sent with the stale token.
				arrived.Done()
				arrived.Wait()
				return respond(http.StatusUnauthorized, ""), nil
			}
			mu.Lock()
			retried = append(retried, auth)
			mu.Unlock()
			return respond(http.StatusOK, ""), nil
		}),
	}

	var done sync.WaitGroup
	for i := 0; i < requests; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			req, _ := http.NewRequest(http.MethodGet, "http://api.test/api/workouts", nil)
			resp, err := tr.RoundTrip(req)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(api.release)
	done.Wait()

	assert.Equal(t, int32(1), api.calls.Load())
	require.Len(t, retried, requests)
	for _, auth := range retried {
		assert.Equal(t, "Bearer fresh", auth)
	}
}
