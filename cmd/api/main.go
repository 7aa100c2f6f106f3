package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/config"
	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/handler"
	"github.com/rembon2016/cts-merchant-sub001/internal/model"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"
	"github.com/rembon2016/cts-merchant-sub001/pkg/database"
	"github.com/rembon2016/cts-merchant-sub001/pkg/jwt"
	"github.com/rembon2016/cts-merchant-sub001/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	cfg := config.LoadEnv()

	zlog, err := logger.New(cfg.Logger, cfg.Server.AppEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Setup Redis
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
	}

	// 3. Setup Stores
	var cache fetch.Cache = fetch.NewMemoryCache()
	if cfg.Cache.Driver == "redis" {
		cache = fetch.NewRedisCache(rdb, fetch.WithRedisTTL(cfg.Cache.TTL))
	}
	sessionRepo := newSessionRepo(cfg, rdb, zlog)

	client, err := api.NewClient(api.Config{
		BaseURL:                       cfg.Backend.BaseURL,
		Timeout:                       cfg.Backend.Timeout,
		UseMethodOverrideForMultipart: cfg.Backend.UseMethodOverrideForMultipart,
	}, zlog)
	if err != nil {
		zlog.Fatal("invalid backend config", zap.Error(err))
	}

	// 4. Setup WebSocket Hub
	wsHub := ws.NewHub(zlog)
	go wsHub.Run(ctx)

	// 5. Dependency Injection (Wiring Layers)
	workspaces := service.NewWorkspaces(client, cache, sessionRepo, zlog,
		service.WithFetchOptions(fetch.WithTTL(cfg.Cache.TTL), fetch.WithTimeout(cfg.Cache.FetchTimeout)),
	)
	sessions := service.NewSessionService(sessionRepo, jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL), workspaces, zlog)
	go evictIdle(ctx, workspaces, cfg.Session.TTL, zlog)

	// 6. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName: "CTS Merchant BFF v1.0",
	})

	// Middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.Server.CORSOrigins}))

	// 7. Routes
	handler.SetupRoutes(app, handler.Deps{
		Sessions:   sessions,
		Workspaces: workspaces,
		Hub:        wsHub,
		Logger:     zlog,
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Graceful Shutdown
	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Panic("server stopped", zap.Error(err))
		}
	}()
	zlog.Info("server started",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("session_driver", cfg.Session.Driver),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}

func newSessionRepo(cfg *config.Config, rdb *redis.Client, zlog *zap.Logger) repository.SessionRepository {
	switch cfg.Session.Driver {
	case "redis":
		return repository.NewRedisSessionRepo(rdb, cfg.Session.TTL)
	case "postgres":
		db, err := database.ConnectDB(cfg.Postgres, cfg.Server.AppEnv != "production")
		if err != nil {
			zlog.Fatal("failed to connect to database", zap.Error(err))
		}
		if err := db.AutoMigrate(&model.SessionRecord{}); err != nil {
			zlog.Fatal("failed to migrate sessions table", zap.Error(err))
		}
		return repository.NewSessionRepo(db)
	default:
		return repository.NewMemorySessionRepo(repository.WithMemoryTTL(cfg.Session.TTL))
	}
}

func evictIdle(ctx context.Context, workspaces *service.Workspaces, maxIdle time.Duration, zlog *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := workspaces.Evict(maxIdle); n > 0 {
				zlog.Debug("evicted idle workspaces", zap.Int("count", n))
			}
		}
	}
}
