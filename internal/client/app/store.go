package app

import (
	"database/sql"
	"fmt"

	"github.com/atinyakov/liftlog/internal/client/config"
	"github.com/atinyakov/liftlog/internal/client/storage"
	_ "github.com/lib/pq"
)

const redisKeyPrefix = "liftlog:"

// openStore returns the backend selected by cfg and a function releasing it.
func openStore(cfg config.Config) (storage.Store, func() error, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		s := storage.NewPostgresStore(db)
		if err := s.Migrate(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	case config.StoreRedis:
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := storage.OpenFile(cfg.StatePath())
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}
