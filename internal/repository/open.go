package repository

import (
	"context"
	"fmt"

	"ai-voice-chat/backend/pkg/config"
)

// Open builds the backend named by cfg.Storage.Backend
func Open(ctx context.Context, cfg *config.Config) (KV, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()

	switch cfg.Storage.Backend {
	case "", "memory":
		return NewMemoryKV(), nil
	case "redis":
		return NewRedisKV(ctx, cfg.Storage.RedisURL, cfg.Storage.RedisKeyPrefix)
	case "postgres":
		db, err := config.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewGormKV(db)
	case "sqlite":
		return NewSQLiteKV(ctx, cfg.Storage.SQLitePath)
	case "mongo":
		return NewMongoKV(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
