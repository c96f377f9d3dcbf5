// Package main is the entry point for the image annotation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/cache"
	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/database"
	"github.com/image-annotator/backend/internal/gateway"
	"github.com/image-annotator/backend/internal/handler"
	"github.com/image-annotator/backend/internal/middleware"
	"github.com/image-annotator/backend/internal/render"
	"github.com/image-annotator/backend/internal/storage"
)

func main() {
	// Parse command line flags
	role := flag.String("role", "", "Service role: gateway or handler (overrides SERVICE_ROLE env var)")
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags win over both the environment and the dotenv file
	if *role != "" {
		os.Setenv("SERVICE_ROLE", *role)
	}
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}

	app := fx.New(
		fx.Provide(
			config.New,
			newLogger,
			newGinEngine,
		),
		fx.Invoke(startServer),
	)

	app.Run()
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORS(cfg.CORSOrigins))

	return engine
}

// backends bundles what the handler role owns and must release on shutdown.
type backends struct {
	repo  database.Repository
	cache cache.Cache
}

func (b backends) close() {
	if b.repo != nil {
		b.repo.Close()
	}
	if b.cache != nil {
		_ = b.cache.Close()
	}
}

// newRepository opens the configured annotation store.
func newRepository(cfg *config.Config, logger *zap.Logger) (database.Repository, error) {
	if cfg.UsesSQLite() {
		return database.NewSQLiteRepository(cfg.SQLitePath, logger)
	}
	return database.NewPostgresRepository(cfg, logger)
}

// newCache connects to Redis, or disables caching when no URL is set.
func newCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		logger.Info("Redis not configured, caching disabled")
		return cache.Noop{}, nil
	}
	return cache.NewRedisCache(cfg, logger)
}

// handlerOptions builds the handler options derived from configuration.
func handlerOptions(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]handler.Option, error) {
	style := render.DefaultStyle()
	style.ShowLabels = true
	style.Arrow.HeadSize = cfg.ArrowHeadSize
	opts := []handler.Option{handler.WithStyle(style)}

	if !cfg.StorageEnabled() {
		return opts, nil
	}

	objects, err := storage.NewObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare bucket: %w", err)
	}
	logger.Info("Object storage enabled",
		zap.String("endpoint", cfg.StorageEndpoint),
		zap.String("bucket", cfg.StorageBucket),
	)
	return append(opts, handler.WithURLSigner(objects)), nil
}

// startServer starts the HTTP server based on the configured role.
func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, engine *gin.Engine) error {
	logger.Info("Starting service",
		zap.String("role", cfg.Role),
		zap.String("port", cfg.ServerPort),
	)

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"role":    cfg.Role,
			"service": "image-annotator",
		})
	})

	// Setup API versioned routes
	apiV1 := engine.Group("/api/v1")

	var owned backends

	if cfg.IsHandler() {
		// Handler mode: connect to database and cache, register handlers
		var err error
		owned.repo, err = newRepository(cfg, logger)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return err
		}

		owned.cache, err = newCache(cfg, logger)
		if err != nil {
			owned.close()
			logger.Error("Failed to connect to Redis", zap.Error(err))
			return err
		}

		opts, err := handlerOptions(context.Background(), cfg, logger)
		if err != nil {
			owned.close()
			logger.Error("Failed to configure handler", zap.Error(err))
			return err
		}

		apiV1.Use(middleware.Authenticate(cfg.JWTSecret, logger))
		h := handler.NewHandler(owned.repo, owned.cache, logger, opts...)
		h.RegisterRoutes(apiV1)

		logger.Info("Handler routes registered", zap.String("driver", cfg.DatabaseDriver))
	} else {
		// Gateway mode: setup proxy to handler
		gw, err := gateway.NewGateway(cfg, logger)
		if err != nil {
			logger.Error("Failed to create gateway", zap.Error(err))
			return err
		}
		gw.RegisterRoutes(apiV1)

		logger.Info("Gateway routes registered",
			zap.String("handler_url", cfg.HandlerURL),
		)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")
			err := server.Shutdown(ctx)
			owned.close()
			return err
		},
	})

	return nil
}
