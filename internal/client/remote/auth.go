package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/atinyakov/liftlog/internal/client/session"
)

var _ session.AuthAPI = (*AuthClient)(nil)

// AuthClient implements session.AuthAPI over the auth endpoints.
type AuthClient struct {
	c *Client
}

// NewAuthClient wraps c.
func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *AuthClient) Login(ctx context.Context, email, password string) (session.AuthResult, error) {
	var res session.AuthResult
	err := a.c.Do(ctx, http.MethodPost, PathLogin, credentials{Email: email, Password: password}, &res)
	return res, classify(err)
}

func (a *AuthClient) Register(ctx context.Context, email, password string) (session.AuthResult, error) {
	var res session.AuthResult
	err := a.c.Do(ctx, http.MethodPost, PathRegister, credentials{Email: email, Password: password}, &res)
	return res, classify(err)
}

func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error) {
	var pair session.TokenPair
	err := a.c.Do(ctx, http.MethodPost, PathRefresh, refreshRequest{RefreshToken: refreshToken}, &pair)
	if err == nil && pair.AccessToken == "" {
		return session.TokenPair{}, fmt.Errorf("refresh response without access token")
	}
	return pair, classify(err)
}

func classify(err error) error {
	if IsUnreachable(err) {
		return fmt.Errorf("%w: %w", session.ErrUnreachable, err)
	}
	return err
}
