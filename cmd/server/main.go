/**
 * @description
 * This is the main entry point for the MealStack commerce service. It is
 * responsible for initializing all components: configuration, database
 * connection, Redis, the RabbitMQ producer, the payment widget bridge
 * client, repositories, the application services, the cron scheduler, and
 * the HTTP server. It wires everything together and starts the service.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/oz-TeamWizard/MealStack/internal/api"
	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/config"
	"github.com/oz-TeamWizard/MealStack/internal/store"
	"github.com/oz-TeamWizard/MealStack/pkg/kakao"
	"github.com/oz-TeamWizard/MealStack/pkg/rabbitmq"
	"github.com/oz-TeamWizard/MealStack/pkg/tosspayments"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env if present; variables can also come from the environment.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		logger.Error("session secret must be configured", "env", "SESSION_SECRET")
		os.Exit(1)
	}

	logger.Info("starting commerce service", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Redis backs SMS send rate limiting; a missing Redis degrades to
	// unlimited sends rather than blocking startup.
	var limiter app.RateLimiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed, sms rate limiting disabled", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed, sms rate limiting disabled", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisSMSRateLimiter(redisClient, cfg.RateLimitPrefix)
				logger.Info("redis connected")
			}
		}
	} else {
		logger.Warn("redis url missing, sms rate limiting disabled", "env", "REDIS_URL")
	}

	// The event producer degrades to a no-op when the broker is down.
	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.OrderEventExchange)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable, using fallback", "error", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		publisher = producer
		logger.Info("rabbitmq producer connected")
	}
	defer publisher.Close()

	// Payment widget bridge client.
	tossClient := tosspayments.NewClient(cfg.TossWidgetBaseURL, cfg.TossClientKey)

	// Data access layer.
	repository := store.NewRepository(dbpool)

	// Application services.
	cartService := app.NewCartService()
	subscriptionService := app.NewSubscriptionService(repository, publisher, logger)
	authService := app.NewAuthService(
		repository,
		repository,
		&app.LogSMSSender{Logger: logger},
		limiter,
		kakao.NewClient(cfg.KakaoAPIBaseURL),
		cfg.SessionSecret,
		cfg.SMSSendLimitPerMinute,
		logger,
	)
	checkoutOrchestrator := app.NewCheckoutOrchestrator(
		app.NewTossWidgetDriver(tossClient),
		cartService,
		repository,
		app.CheckoutConfig{
			SuccessURL:      cfg.CheckoutSuccessURL,
			FailURL:         cfg.CheckoutFailURL,
			VariantKeyDark:  cfg.WidgetVariantKeyDark,
			VariantKeyLight: cfg.WidgetVariantKeyLight,
		},
		logger,
	)
	settlement := app.NewCheckoutSettlement(repository, cartService, subscriptionService, publisher, logger)

	// Scheduled jobs: subscription billing/auto-resume and code cleanup.
	jobs := app.NewJobs(repository, repository, publisher, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	defer func() {
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
	}()

	// API handlers and router.
	handler := api.NewHandler(
		authService,
		cartService,
		subscriptionService,
		checkoutOrchestrator,
		settlement,
		repository,
		repository,
		logger,
	)
	router := api.NewRouter(handler, authService)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
}
