package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/database"
)

// Open connects the KV backend selected by cfg.StorageDriver. The returned
// close func releases the underlying connection.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (KV, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory state store; answers will not survive a restart")
		return NewMemoryKV(), func() {}, nil

	case config.StorageSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLiteDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteKV(db), func() { _ = db.Close() }, nil

	case config.StorageRedis:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisKV(rdb, cfg.RedisStateTTL), func() { _ = rdb.Close() }, nil

	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresKV(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
