package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
	"github.com/hamed0406/uptimemonitor/internal/repo/mongo"
	"github.com/hamed0406/uptimemonitor/internal/repo/postgres"
)

// openStore picks the adapter from the DATABASE_URL scheme. Empty means
// in-memory.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	dsn := cfg.DatabaseURL
	switch {
	case dsn == "":
		logger.Warn("store_memory", zap.String("note", "data is lost on restart"))
		return memory.New(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := postgres.New(ctx, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info("store_postgres")
		return s, nil
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		s, err := mongo.New(ctx, dsn, cfg.MongoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		logger.Info("store_mongo", zap.String("database", cfg.MongoDB))
		return s, nil
	default:
		return nil, errors.New("unsupported DATABASE_URL scheme")
	}
}
