package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"prism-board/board-api/api"
	"prism-board/board-api/storage"
	"prism-board/board-api/subscription"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := newLogger(cfg)

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(resource.NewSchemaless(
		attribute.String("service.name", "board-api"),
	)))
	otel.SetTracerProvider(tp)

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	if cfg.DatabaseDriver == "sqlite" {
		// Local runs have no separate migration step.
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := subscription.NewHub()
	opts := api.Options{
		Publisher:      hub,
		Broker:         hub,
		RequestTimeout: cfg.RequestTimeout,
	}
	var rc *redis.Client
	if cfg.RedisConn != "" {
		rc = redis.NewClient(redisOptions(cfg.RedisConn))
		opts.Publisher = storage.NewPublisher(rc, cfg.UpdatesChannel)
		opts.Idempotency = api.NewRedisIdempotency(rc, cfg.IdempotencyTTL)
		go subscription.SubscribeUpdates(ctx, logger, rc, cfg.UpdatesChannel, hub.Broadcast)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set; cache, idempotency replay and cross-instance updates disabled")
	}
	store := storage.NewCache(db, rc, cfg.CacheTTL)

	auth, err := newAuth(cfg)
	if err != nil {
		logger.Fatal(err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(echoprometheus.NewMiddleware("board_api"))
	e.Use(api.GzipRequestMiddleware())
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, auth, logger, opts)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
	_ = tp.Shutdown(shutdownCtx)
	if rc != nil {
		_ = rc.Close()
	}
	_ = db.Close()
}

func newLogger(cfg Config) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}))
	}
	return logger
}

func newAuth(cfg Config) (*api.Auth, error) {
	if api.TestModeEnabled() {
		return api.NewAuth(nil, "", "", cfg.OrgClaim), nil
	}
	if cfg.Auth0Audience == "" || cfg.Auth0Domain == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.OrgClaim), nil
}
