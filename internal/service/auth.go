// Package service holds the liftlog server business logic, delegating
// persistence to repository interfaces.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/liftlog/internal/models"
	"github.com/atinyakov/liftlog/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned when registering a taken email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	CreateUser(ctx context.Context, u models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	SaveRefreshToken(ctx context.Context, t models.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldHash string, next models.RefreshToken, now time.Time) (models.RefreshToken, error)
}

// Session is what a successful register, login or refresh hands out.
type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// AuthService implements registration, login and refresh rotation.
type AuthService struct {
	repo       AuthRepository
	jwt        JWT
	refreshTTL time.Duration
	cost       int
	now        func() time.Time
}

// NewAuthService constructs an AuthService. Refresh tokens live for
// refreshTTL.
func NewAuthService(repo AuthRepository, issuer JWT, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		repo:       repo,
		jwt:        issuer,
		refreshTTL: refreshTTL,
		cost:       bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Register creates the account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password string) (Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := models.User{ID: uuid.NewString(), Email: normalizeEmail(email), PasswordHash: hash}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return Session{}, ErrUserExists
		}
		return Session{}, err
	}
	return s.issue(ctx, u)
}

// Login checks the password and signs the user in.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh exchanges refreshToken for a new pair. The presented token is
// revoked; presenting it again fails and revokes the user's other tokens.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrInvalidToken
	}
	raw, next, err := s.newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	old, err := s.repo.RotateRefreshToken(ctx, hashToken(refreshToken), next, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrTokenRevoked),
		errors.Is(err, repository.ErrTokenExpired):
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case err != nil:
		return Session{}, err
	}

	u, err := s.repo.UserByID(ctx, old.UserID)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	access, err := s.jwt.Issue(u.ID, u.Email, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: raw, User: u}, nil
}

func (s *AuthService) issue(ctx context.Context, u models.User) (Session, error) {
	access, err := s.jwt.Issue(u.ID, u.Email, s.now())
	if err != nil {
		return Session{}, err
	}
	raw, rt, err := s.newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	rt.UserID = u.ID
	if err := s.repo.SaveRefreshToken(ctx, rt); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{AccessToken: access, RefreshToken: raw, User: u}, nil
}

func (s *AuthService) newRefreshToken() (string, models.RefreshToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", models.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)
	return raw, models.RefreshToken{Hash: hashToken(raw), ExpiresAt: s.now().Add(s.refreshTTL)}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
