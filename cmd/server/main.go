package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zontact/backend/internal/auth/nonce"
	"zontact/backend/internal/config"
	"zontact/backend/internal/domain"
	"zontact/backend/internal/health"
	"zontact/backend/internal/logger"
	"zontact/backend/internal/mail"
	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/service"
	"zontact/backend/internal/storage"
	"zontact/backend/internal/storage/hybrid"
	"zontact/backend/internal/storage/memory"
	sqlstore "zontact/backend/internal/storage/sql"
	httptransport "zontact/backend/internal/transport/http"
	"zontact/backend/internal/websocket"
)

// migrator 启动时需要执行表结构迁移的存储实现
type migrator interface {
	Migrate() error
}

// main 启动联系挂件后端服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.LogFile,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting zontact server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 表结构迁移是显式的启动步骤，不在请求路径上自检
	if m, ok := store.(migrator); ok {
		if err := m.Migrate(); err != nil {
			panic(fmt.Sprintf("failed to migrate database: %v", err))
		}
		log.Info("database schema up to date")
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 初始化令牌管理器
	nonceManager := nonce.NewManager(cfg.Nonce.Secret, cfg.Nonce.Issuer, cfg.Form.NonceLifetime)

	// 初始化邮件发送器
	mailer := mail.NewMailer(cfg.SMTP, cfg.Server.SiteDomain, log, metrics)
	mailer.SetOnDeliveryFailure(func(sub *domain.Submission, errMsg string) {
		metrics.RecordError("email_delivery", "mail")
		log.Error("notification delivery failed",
			zap.Int64("submission_id", sub.ID),
			zap.String("error", errMsg),
		)
	})

	// 初始化服务层
	optionsService := service.NewOptionsService(store, cfg.Form.AdminEmail, log)
	submissionService := service.NewSubmissionService(store, optionsService, mailer, nonceManager, log, metrics)
	exportService := service.NewExportService(store, cfg.Admin.ExportEnabled, log, metrics)

	// 创建 WebSocket Hub 并挂接新留言推送
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)
	submissionService.SetEntryNotifier(wsHub.BroadcastNewEntry)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:            cfg,
		SubmissionService: submissionService,
		OptionsService:    optionsService,
		ExportService:     exportService,
		NonceManager:      nonceManager,
		WebSocketHub:      wsHub,
		HealthChecker:     healthChecker,
		Store:             store,
		Metrics:           metrics,
		Logger:            log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时清理超出保留期的留言 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		log.Info("starting retention sweep task", zap.Duration("interval", 1*time.Hour))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("retention sweep task stopped")
				return nil
			case <-ticker.C:
				runRetentionSweep(store, optionsService, metrics, log)
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

// initializeStorage 根据配置选择存储实现。
//
// 数据库 + Redis 走混合存储（读缓存 + Redis 限流）；
// 仅数据库时限流退回进程内计数；都未配置时使用内存存储。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	if cfg.Redis.Address != "" {
		store, err := hybrid.NewStore(hybrid.Options{
			DriverName:      cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			RedisAddr:       cfg.Redis.Address,
			RedisPassword:   cfg.Redis.Password,
			RedisDB:         cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		log.Info("using hybrid storage",
			zap.String("database", cfg.Database.Type),
			zap.String("redis", cfg.Redis.Address),
		)
		return store, nil
	}

	db, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage without redis, rate limiting is per-process",
		zap.String("database", cfg.Database.Type),
	)
	return &dbOnlyStore{Store: db, rates: memory.NewStore()}, nil
}

// dbOnlyStore SQL 存储加进程内限流计数的组合
type dbOnlyStore struct {
	*sqlstore.Store
	rates *memory.Store
}

func (s *dbOnlyStore) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.rates.IncrementRateLimit(key, window)
}

func (s *dbOnlyStore) GetRateLimit(key string) (int64, error) {
	return s.rates.GetRateLimit(key)
}

// runRetentionSweep 删除超过保留期的留言
func runRetentionSweep(store storage.Store, options *service.OptionsService, metrics *monitoring.Metrics, log *zap.Logger) {
	metrics.RecordRetentionSweep()

	opts := options.Effective()
	if opts.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -opts.RetentionDays)
	count, err := store.DeleteSubmissionsBefore(cutoff)
	if err != nil {
		log.Error("retention sweep failed", zap.Error(err))
		metrics.RecordError("retention_sweep", "storage")
		return
	}
	if count > 0 {
		metrics.RecordEntriesDeleted(count)
		log.Info("expired entries deleted",
			zap.Int("count", count),
			zap.Int("retention_days", opts.RetentionDays),
		)
	}
}
