// Package repository provides PostgreSQL persistence for the liftlog server.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/liftlog/internal/models"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrTokenRevoked is returned when a refresh token was already used.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenExpired is returned for a refresh token past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")
)

const uniqueViolation = "23505"

// PostgresAuthRepository stores users and refresh tokens.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a PostgresAuthRepository over db.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// CreateUser inserts u. A taken email yields ErrConflict.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, u models.User) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		u.ID, u.Email, u.PasswordHash,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("user %q: %w", u.Email, ErrConflict)
	}
	return err
}

// UserByEmail returns the user registered under email.
func (r *PostgresAuthRepository) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// UserByID returns the user with id.
func (r *PostgresAuthRepository) UserByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// SaveRefreshToken stores a newly issued refresh token.
func (r *PostgresAuthRepository) SaveRefreshToken(ctx context.Context, t models.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		t.Hash, t.UserID, t.ExpiresAt,
	)
	return err
}

// RotateRefreshToken revokes the token stored under oldHash and stores next
// in one transaction, returning the old token. A token expired at now yields
// ErrTokenExpired. A token that was already revoked yields ErrTokenRevoked
// and revokes every token of its user.
func (r *PostgresAuthRepository) RotateRefreshToken(ctx context.Context, oldHash string, next models.RefreshToken, now time.Time) (models.RefreshToken, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	old := models.RefreshToken{Hash: oldHash}
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, expires_at, revoked FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, oldHash).Scan(&old.UserID, &old.ExpiresAt, &old.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("load refresh token: %w", err)
	}

	if old.Revoked {
		if _, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1`, old.UserID); err != nil {
			return models.RefreshToken{}, fmt.Errorf("revoke user tokens: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return models.RefreshToken{}, fmt.Errorf("commit: %w", err)
		}
		return old, ErrTokenRevoked
	}
	if !old.ExpiresAt.After(now) {
		return old, ErrTokenExpired
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`, oldHash); err != nil {
		return models.RefreshToken{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	next.UserID = old.UserID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		next.Hash, next.UserID, next.ExpiresAt); err != nil {
		return models.RefreshToken{}, fmt.Errorf("store refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.RefreshToken{}, fmt.Errorf("commit: %w", err)
	}
	return old, nil
}
