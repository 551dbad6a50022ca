// Package timerstore opens the timer persistence selected by STORAGE_DRIVER.
package timerstore

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/config"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
	"github.com/TaomasSpace/clubhall-guard/internal/storage"
	"github.com/TaomasSpace/clubhall-guard/internal/storage/redis"
	"github.com/TaomasSpace/clubhall-guard/internal/storage/sqlite"
)

// Port is a timer store that owns a connection.
type Port interface {
	scheduler.PersistencePort
	io.Closer
}

// Open returns the configured store. The json driver keeps timers in the
// datastore itself; closing it then leaves the datastore open.
func Open(ctx context.Context, cfg *config.Config, store *storage.Storage, log zerolog.Logger) (Port, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRedis:
		s, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return shared{store}, nil
	}
}

type shared struct {
	*storage.Storage
}

func (shared) Close() error { return nil }
