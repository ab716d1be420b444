package session

import (
	"context"
	"errors"
)

var (
	// ErrNoSession means there is no refresh token to exchange.
	ErrNoSession = errors.New("no session")
	// ErrRefreshFailed means the refresh exchange was rejected and the
	// session has been terminated.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrUnreachable is wrapped by AuthAPI implementations when the auth
	// service could not be reached at all.
	ErrUnreachable = errors.New("auth service unreachable")
)

// TokenPair is the access/refresh token pair issued by the API. It is always
// replaced as a whole.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// User is the last known authenticated identity. Display only.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResult is returned by login and registration.
type AuthResult struct {
	TokenPair
	User User `json:"user"`
}

// AuthAPI is the remote side of authentication.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (AuthResult, error)
	Register(ctx context.Context, email, password string) (AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}
