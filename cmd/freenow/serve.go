package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"freenow/internal/api/handler"
	"freenow/internal/api/router"
	"freenow/internal/bot"
	"freenow/internal/catalog"
	"freenow/internal/intake"
	"freenow/internal/job"
	"freenow/internal/render"
	"freenow/internal/repository"
	"freenow/internal/service"
	"freenow/pkg/database"
	"freenow/pkg/jwt"
	"freenow/pkg/redis"
	"freenow/pkg/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务（webhook + REST API）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// dbPinger 健康检查用的数据库探活
type dbPinger struct{ db *sql.DB }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func runServe() error {
	// 1. 加载配置与日志
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	loc, err := cfg.Catalog.Location()
	if err != nil {
		return err
	}
	clock := func() time.Time { return time.Now().In(loc) }

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("acad_year", cfg.Catalog.AcadYear),
		zap.Int("semester", cfg.Catalog.Semester),
	)

	// 2. 连接数据库并迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()
	if err := database.Migrate(db, cfg.Database.Driver, logger); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 3. 连接 Redis（可选：连接失败时降级为进程内实现）
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，降级为进程内缓存与限流", zap.Error(err))
			rdb = nil
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	routerOpts := router.Options{Health: map[string]router.Pinger{"db": dbPinger{sqlDB}}}
	var (
		shared      catalog.SharedStore
		intakeStore intake.Store = intake.NewMemoryStore(cfg.Intake.DraftTTL)
		revoker     handler.TokenRevoker
	)
	if rdb != nil {
		routerOpts.Blacklist = rdb
		routerOpts.RateChecker = rdb
		routerOpts.Health["redis"] = rdb
		intakeStore = intake.NewRedisStore(rdb, cfg.Intake.DraftTTL)
		revoker = rdb
		if cfg.Catalog.RedisCache {
			shared = rdb
		}
	}

	// 4. 课程目录（限速客户端 + 两级缓存）
	cache := catalog.NewCache(
		catalog.NewClient(&cfg.Catalog, logger),
		shared,
		catalog.CacheOptions{
			TTL:       cfg.Catalog.CacheTTL,
			Namespace: fmt.Sprintf("%s:%d", cfg.Catalog.AcadYear, cfg.Catalog.Semester),
		},
		logger,
	)

	// 5. 依赖注入: Repository → Service → Bot / Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	svc := service.NewService(service.Deps{
		Repo:     repository.NewRepository(db),
		Resolver: cache,
		Renderer: render.NewRenderer(render.Options{
			CellWidth:  cfg.Render.CellWidth,
			CellHeight: cfg.Render.CellHeight,
			StartHour:  cfg.Render.StartHour,
			EndHour:    cfg.Render.EndHour,
		}, logger),
		Logger:    logger,
		Clock:     clock,
		ShareBase: cfg.Catalog.ShareBase(),
	})

	var updates handler.UpdateHandler
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewClient(&cfg.Telegram, logger)
		if err != nil {
			return fmt.Errorf("初始化 Telegram 客户端失败: %w", err)
		}
		updates = bot.New(svc, intake.NewManager(intakeStore, logger), tg, jwtMgr, logger)
	} else {
		logger.Warn("未配置 telegram.token，仅提供 REST API")
	}

	h := handler.NewHandler(handler.Deps{
		Service: svc,
		Catalog: cache,
		Updates: updates,
		Revoker: revoker,
	})

	// 6. 定时预热课程目录
	var scheduler *job.Scheduler
	if cfg.Job.WarmSpec != "" {
		warmer := job.NewWarmer(svc.Timetable, cache, 0, logger)
		scheduler, err = job.NewScheduler(cfg.Job.WarmSpec, warmer, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	// 7. 启动 HTTP 服务器（优雅关闭）
	engine := router.Setup(cfg, h, jwtMgr, routerOpts, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 8. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("HTTP 服务器异常", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(ctx)
	}

	logger.Info("服务器已关闭")
	return nil
}
