package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/config"
	handlers "github.com/gatekit/admission/pkg/handlers/http"
	"github.com/gatekit/admission/pkg/idempotency"
	infraCache "github.com/gatekit/admission/pkg/infra/cache"
	"github.com/gatekit/admission/pkg/infra/fingerprint"
	infraLogger "github.com/gatekit/admission/pkg/infra/logger"
	"github.com/gatekit/admission/pkg/infra/prometheus"
	"github.com/gatekit/admission/pkg/middleware"
	"github.com/gatekit/admission/pkg/ratelimit"
	"github.com/gatekit/admission/pkg/server"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()

	if err := config.Load("./config"); err != nil {
		logger.WithError(err).Warn("falling back to defaults and environment variables")
	}
	cfg := config.GetConfig()

	prometheus.Initialize()

	limiter, store := buildComponents(cfg, logger)

	keyBuilder := ratelimit.NewKeyBuilder()
	tracker := fingerprint.NewTracker()

	rateLimitMiddleware, err := middleware.NewRateLimitMiddleware(
		logger, limiter, keyBuilder, rateLimitSettings(cfg),
	)
	if err != nil {
		logger.WithError(err).Fatal("invalid rate limit settings")
	}

	middlewareTransport := middleware.Transport{
		FingerprintMiddleware: middleware.NewFingerPrintMiddleware(logger, tracker),
		RateLimitMiddleware:   rateLimitMiddleware,
		IdempotencyMiddleware: middleware.NewIdempotencyMiddleware(logger, store),
	}

	handlerTransport := handlers.HandlerTransport{
		RateLimitCheckHandler:      handlers.NewRateLimitCheckHandler(logger, limiter),
		IdempotencyBeginHandler:    handlers.NewIdempotencyBeginHandler(logger, store),
		IdempotencyCompleteHandler: handlers.NewIdempotencyCompleteHandler(logger, store),
	}

	srv := server.NewAdmissionServer(server.AdmissionServerDI{
		MiddlewareTransport: middlewareTransport,
		HandlerTransport:    handlerTransport,
		Config:              cfg,
		Logger:              logger,
	})

	go func() {
		if err := srv.Run(); err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	fmt.Println("server gracefully stopped")
}

func buildComponents(cfg *config.Config, logger *logrus.Logger) (ratelimit.Limiter, idempotency.Store) {
	idempotencyTTL, err := time.ParseDuration(cfg.Idempotency.TTL)
	if err != nil || idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}

	if cfg.RateLimit.Storage == "memory" && cfg.Idempotency.Storage == "memory" {
		logger.Warn("using in-memory storage, limits and idempotency only hold per-instance")
		limiter := ratelimit.NewMemoryLimiter(&ratelimit.MemoryLimiterOpts{
			SweepInterval: 5 * time.Minute,
		})
		store := idempotency.NewMemoryStore(logger, &idempotency.MemoryStoreOpts{
			TTL: idempotencyTTL,
		})
		return limiter, store
	}

	cacheClient, err := infraCache.NewClient(infraCache.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize redis")
	}

	breakerTimeout, err := time.ParseDuration(cfg.RateLimit.BreakerTimeout)
	if err != nil || breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	limiter := ratelimit.NewBreakerLimiter(
		ratelimit.NewRedisLimiter(cacheClient.RedisClient(), logger, nil),
		ratelimit.ParseFailurePolicy(cfg.RateLimit.FailurePolicy),
		logger,
		cfg.RateLimit.BreakerMaxFailures,
		breakerTimeout,
		nil,
	)

	store := idempotency.NewRedisStore(cacheClient.RedisClient(), logger, &idempotency.RedisStoreOpts{
		TTL: idempotencyTTL,
	})

	return limiter, store
}

func rateLimitSettings(cfg *config.Config) map[string]interface{} {
	endpoints := make(map[string]interface{}, len(cfg.RateLimit.Endpoints))
	for path, policy := range cfg.RateLimit.Endpoints {
		endpoints[path] = map[string]interface{}{
			"limit":  policy.Limit,
			"window": policy.Window,
		}
	}
	return map[string]interface{}{
		"default": map[string]interface{}{
			"limit":  cfg.RateLimit.Default.Limit,
			"window": cfg.RateLimit.Default.Window,
		},
		"endpoints": endpoints,
	}
}
