package app

import (
	"context"
	"database/sql"

	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/config"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/db"
	"github.com/MELEGHOST/STREAMERS-UNIVERSE-sub000/internal/redis"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config, log *zap.Logger) (*Infra, error) {
	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.RunProfilesMigration(ctx, sqlDB); err != nil {
		return nil, err
	}

	log.Info("database ready")

	redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}

	log.Info("redis ready")

	return &Infra{
		DB:    &db.DB{DB: sqlDB},
		Redis: redisClient,
	}, nil
}
