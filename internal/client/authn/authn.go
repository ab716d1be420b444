// Package authn attaches bearer credentials to outgoing API calls and
// recovers from an expired access token with one refresh-and-retry.
package authn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/liftlog/internal/client/remote"
	"github.com/atinyakov/liftlog/internal/client/session"
	"go.uber.org/zap"
)

// Session is the part of session.Manager the transport needs.
type Session interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context) (session.TokenPair, error)
}

var _ Session = (*session.Manager)(nil)

// Transport is an http.RoundTripper that attaches the current access token.
//
// Auth endpoints pass through untouched. On a 401 from any other endpoint it
// refreshes through Session and re-sends the original request exactly once.
// If the refresh fails the original 401 is returned unchanged.
type Transport struct {
	Base    http.RoundTripper
	Session Session
	Log     *zap.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if remote.IsAuthEndpoint(req.URL.Path) {
		return t.base().RoundTrip(req)
	}

	used := t.Session.AccessToken()
	resp, err := t.base().RoundTrip(withToken(req, used, req.Body))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if !replayable(req) {
		t.log().Warn("cannot retry request without a replayable body", zap.String("path", req.URL.Path))
		return resp, nil
	}

	resp, err = buffer(resp)
	if err != nil {
		return nil, err
	}

	// A sibling request may already have refreshed while this one was in
	// flight; reuse its token instead of rotating again.
	token := t.Session.AccessToken()
	if token == "" || token == used {
		pair, rerr := t.Session.RefreshAccessToken(req.Context())
		if rerr != nil {
			t.log().Info("refresh after 401 failed", zap.String("path", req.URL.Path), zap.Error(rerr))
			return resp, nil
		}
		token = pair.AccessToken
	}

	body, err := freshBody(req)
	if err != nil {
		return resp, nil
	}
	_ = resp.Body.Close()
	return t.base().RoundTrip(withToken(req, token, body))
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) log() *zap.Logger {
	if t.Log != nil {
		return t.Log
	}
	return zap.NewNop()
}

func withToken(req *http.Request, token string, body io.ReadCloser) *http.Request {
	out := req.Clone(req.Context())
	out.Body = body
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func freshBody(req *http.Request) (io.ReadCloser, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req.Body, nil
	}
	return req.GetBody()
}

// buffer reads resp.Body into memory so the response can still be handed to
// the caller after the connection is released.
func buffer(resp *http.Response) (*http.Response, error) {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read 401 response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}
