package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PurgeRefreshTokens removes refresh tokens that were revoked or expired
// before now and reports how many rows went away.
func PurgeRefreshTokens(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE revoked = true OR expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartTokenCleaner runs PurgeRefreshTokens every interval in the background
// until ctx is done.
func StartTokenCleaner(ctx context.Context, db *sql.DB, interval time.Duration, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, err := PurgeRefreshTokens(ctx, db, now)
				switch {
				case err != nil:
					log.Error("failed to clean refresh tokens", zap.Error(err))
				case removed > 0:
					log.Info("cleaned refresh tokens", zap.Int64("removed", removed))
				}
			}
		}
	}()
}
