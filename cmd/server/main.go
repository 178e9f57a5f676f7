package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/example/legionbilling/internal/config"
	"github.com/example/legionbilling/internal/database"
	"github.com/example/legionbilling/internal/handlers"
	"github.com/example/legionbilling/internal/logger"
	"github.com/example/legionbilling/internal/metrics"
	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/routes"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/services/daraja"
)

func main() {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, zlog)
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	httpClient := &http.Client{Timeout: cfg.Daraja.RequestTimeout}
	tokens := daraja.NewOAuthTokenProvider(cfg.Daraja.BaseURL, cfg.Daraja.ConsumerKey, cfg.Daraja.ConsumerSecret, httpClient, m)
	gateway := daraja.NewClient(daraja.Config{
		BaseURL:          cfg.Daraja.BaseURL,
		Shortcode:        cfg.Daraja.Shortcode,
		Passkey:          cfg.Daraja.Passkey,
		CallbackURL:      cfg.Daraja.CallbackURL,
		AccountReference: cfg.Daraja.AccountRef,
		Simulate:         !cfg.IsProduction(),
	}, tokens, httpClient, zlog, m)

	telegram := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, zlog)
	payments := services.NewPaymentService(db, gateway, telegram, m, zlog, services.PollConfig{
		Interval:    cfg.Daraja.PollInterval,
		MaxAttempts: cfg.Daraja.PollMaxAttempts,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    cfg.HTTP.BodyLimitBytes,
		ErrorHandler: handlers.ErrorHandler(cfg.IsProduction(), zlog),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(zlog))
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.FrontendURL,
		AllowCredentials: true,
	}))
	app.Use(compress.New())
	app.Use("/api", limiter.New(limiter.Config{
		Max:        cfg.HTTP.RateLimitMax,
		Expiration: cfg.HTTP.RateLimitWindow,
		Next: func(c *fiber.Ctx) bool {
			// Gateway deliveries must never be throttled.
			return c.Path() == "/api/payments/mpesa/callback"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many requests from this IP, please try again later.")
		},
	}))

	routes.Register(app, routes.Deps{
		DB:       db,
		Config:   cfg,
		Log:      zlog,
		Payments: payments,
		Gatherer: registry,
		Started:  started,
	})

	if _, err := tokens.Get(context.Background()); err != nil {
		if errors.Is(err, daraja.ErrCredentialsMissing) {
			zlog.Warn("daraja credentials not configured, gateway calls are simulated")
		} else {
			zlog.Warn("daraja token warm-up failed", zap.Error(err))
		}
	}

	go func() {
		zlog.Info("starting server",
			zap.String("port", cfg.AppPort),
			zap.String("environment", cfg.AppEnv),
		)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			zlog.Fatal("fiber.Listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Error("server shutdown", zap.Error(err))
	}
	payments.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
