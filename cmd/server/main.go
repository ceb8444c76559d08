package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/pagora/pagora/internal/acquirer"
	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/handler"
	"github.com/pagora/pagora/internal/pkg/logger"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/service"
	"github.com/pagora/pagora/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// Optional backends. Every store degrades: Redis > Postgres > memory.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		rc, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
			redisClient = rc.Client
		} else {
			logger.Error("redis unavailable, falling back", "error", err.Error())
		}
	}

	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg)
		if err != nil {
			logger.Error("postgres unavailable, falling back", "error", err.Error())
			db = nil
		} else {
			logger.Info("connected to postgres")
		}
	}

	idemTTL := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second

	// Idempotency: fast tier (Redis) over durable tier (Postgres).
	var fastIdem, durableIdem service.IdempotencyStore
	if redisClient != nil {
		fastIdem = repository.NewRedisIdempotencyStore(redisClient, idemTTL)
	}
	if db != nil {
		durableIdem = repository.NewPostgresIdempotencyStore(db)
	}
	if fastIdem == nil && durableIdem == nil {
		fastIdem = repository.NewMemoryIdempotencyStore()
		logger.Warn("idempotency records are in-memory only")
	}
	idemCoord := service.NewCoordinator(fastIdem, durableIdem, idemTTL)

	// Rate counters: Redis is atomic, Postgres approximate, memory last.
	var counterStore service.CounterStore
	switch {
	case redisClient != nil:
		counterStore = repository.NewRedisCounterStore(redisClient)
	case db != nil:
		counterStore = repository.NewPostgresCounterStore(db)
	default:
		counterStore = repository.NewMemoryCounterStore()
	}

	// Audit trail: Postgres preferred, Redis list as a lighter alternative.
	var auditRepo service.AuditRepo
	if db != nil {
		auditRepo = repository.NewPostgresAuditRepo(db)
	} else if redisClient != nil {
		auditRepo = repository.NewRedisAuditRepo(redisClient, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
	}
	auditSvc, err := service.NewAuditService("./logs", auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	var credRepo service.CredentialRepo
	var paymentStore service.PaymentStore
	var webhookStore webhook.Store
	if db != nil {
		credRepo = repository.NewPostgresCredentialRepo(db)
		paymentStore = repository.NewPostgresPaymentStore(db)
		webhookStore = repository.NewPostgresWebhookStore(db)
	} else {
		paymentStore = repository.NewMemoryPaymentStore()
		webhookStore = repository.NewMemoryWebhookStore()
		logger.Warn("payment and webhook state is in-memory only")
	}

	keyValidator := service.NewKeyValidator(cfg, credRepo)
	rateLimiter := service.NewRateLimiter(cfg, counterStore)

	adapters := []acquirer.Adapter{acquirer.NewSimbank()}
	if cfg.Acquirers.RestBridge.BaseURL != "" {
		timeout := time.Duration(cfg.Acquirers.TimeoutMs) * time.Millisecond
		adapters = append(adapters, acquirer.NewRestBridge(
			cfg.Acquirers.DefaultAdapter,
			cfg.Acquirers.RestBridge.BaseURL,
			cfg.Acquirers.RestBridge.APIKey,
			timeout,
		))
	}
	registry := acquirer.NewRegistry(adapters...)
	router := acquirer.NewRouter(cfg, registry)

	enqueuer := webhook.NewEnqueuer(cfg, webhookStore)
	dispatcher := webhook.NewDispatcher(cfg, webhookStore)
	paymentSvc := service.NewPaymentService(cfg, paymentStore, router, enqueuer)

	engine := handler.NewRouter(handler.Deps{
		Config:       cfg,
		KeyValidator: keyValidator,
		RateLimiter:  rateLimiter,
		Idempotency:  idemCoord,
		Payments:     paymentSvc,
		Audit:        auditSvc,
		WebhookStore: webhookStore,
		Dispatcher:   dispatcher,
	})

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	go dispatcher.Run(dispatchCtx, 5*time.Second)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("pagora gateway started", "port", cfg.Server.Port, "adapters", registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopDispatch()
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	logger.Info("server exiting")
}
