package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"zontact/backend/internal/config"
	"zontact/backend/internal/logger"
	sqlstore "zontact/backend/internal/storage/sql"
)

// main 执行一次数据库表结构迁移后退出。
// 用于部署流水线中在服务启动前准备好表结构。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Fatal("no database configured, set ZONTACT_DATABASE_TYPE and ZONTACT_DATABASE_DSN")
	}

	store, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	log.Info("database schema up to date",
		zap.String("database", cfg.Database.Type),
		zap.String("schema_version", sqlstore.SchemaVersion),
	)
}
