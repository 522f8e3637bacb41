package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/middleware"
	"github.com/edierwan/serapod2u-prod-sub000/internal/shared/storage"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/handler"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := autoMigrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis, logger)

	var store *storage.ArtifactStore
	if cfg.MinIO.Endpoint != "" {
		store, err = storage.NewArtifactStore(cfg.MinIO)
		if err != nil {
			logger.Fatal("Failed to init artifact store", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureBucket(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to ensure artifact bucket", zap.Error(err))
		}
		cancel()
	} else {
		logger.Warn("MinIO not configured, batch artifacts disabled")
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, store, cfg.Trace, logger)
	handlers := handler.NewHandlers(services, logger)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	services.Shipment.StartJanitor(janitorCtx)

	router := setupRouter(cfg, db, handlers, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("mode", cfg.Server.Mode),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stopJanitor()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("Server stopped")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Organization{},
		&entity.Order{},
		&entity.OrderItem{},
		&entity.Batch{},
		&entity.MasterCode{},
		&entity.UniqueCode{},
		&entity.ScanEvent{},
		&entity.ShipmentSession{},
		&entity.SessionScan{},
		&entity.ValidationReport{},
	)
}

func initRedis(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Host == "" {
		logger.Warn("Redis not configured, session claims use database arbitration only")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, session claims use database arbitration only", zap.Error(err))
		return nil
	}
	return rdb
}

func setupRouter(cfg *config.Config, db *gorm.DB, h *handler.Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.CORS(),
		gzip.Gzip(gzip.DefaultCompression),
	)

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		api.POST("/batches", h.Batch.Generate)
		api.GET("/batches/:id", h.Batch.Get)

		api.POST("/scans/manufacturer", h.Scan.ScanUnique)
		api.GET("/codes/:code", h.Scan.Lookup)
		api.GET("/codes/:code/history", h.Scan.History)

		api.POST("/links", h.Link.Link)

		api.POST("/receiving/scans", h.Receive.Receive)

		api.POST("/sessions", h.Shipment.Open)
		api.GET("/sessions/:id", h.Shipment.Get)
		api.POST("/sessions/:id/scans", h.Shipment.Scan)
		api.POST("/sessions/:id/close", h.Shipment.Close)
		api.POST("/sessions/:id/validate", h.Shipment.Validate)

		api.GET("/reports", h.Report.List)
	}

	return router
}
