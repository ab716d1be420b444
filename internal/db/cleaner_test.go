package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPurgeRefreshTokens(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := PurgeRefreshTokens(context.Background(), conn, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartTokenCleaner_PurgesAndLogs(t *testing.T) {
	dbMock, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer dbMock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartTokenCleaner(ctx, dbMock, 10*time.Millisecond, zap.New(core))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("cleaned refresh tokens").Len() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	entry := logs.FilterMessage("cleaned refresh tokens").All()[0]
	assert.Equal(t, int64(4), entry.ContextMap()["removed"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartTokenCleaner_ErrorLogged(t *testing.T) {
	dbMock, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer dbMock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("db fail"))

	core, logs := observer.New(zap.ErrorLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartTokenCleaner(ctx, dbMock, 10*time.Millisecond, zap.New(core))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("failed to clean refresh tokens").Len() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartTokenCleaner_StopsOnCancel(t *testing.T) {
	dbMock, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer dbMock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	StartTokenCleaner(ctx, dbMock, 100*time.Millisecond, zap.NewNop())
	cancel()

	time.Sleep(150 * time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query after cancel")
}
