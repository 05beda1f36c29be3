package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mwork/payin-api/internal/config"
	"github.com/mwork/payin-api/internal/domain/payin"
	"github.com/mwork/payin-api/internal/domain/pricing"
	"github.com/mwork/payin-api/internal/domain/wallet"
	"github.com/mwork/payin-api/internal/domain/webhook"
	"github.com/mwork/payin-api/internal/middleware"
	"github.com/mwork/payin-api/internal/pkg/database"
	"github.com/mwork/payin-api/internal/pkg/jwt"
	"github.com/mwork/payin-api/internal/pkg/logger"
	"github.com/mwork/payin-api/internal/pkg/provider"
	pkgresponse "github.com/mwork/payin-api/internal/pkg/response"
	"github.com/mwork/payin-api/internal/pkg/storage"
	"github.com/mwork/payin-api/migrations"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Console: cfg.IsDevelopment(), LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("payin_mode", cfg.PayinMode).
		Msg("Starting payin API")

	if cfg.WebhookSecret == "" {
		if cfg.StrictWebhooks() {
			log.Fatal().Msg("WEBHOOK_SECRET is required; every provider callback would be rejected")
		}
		log.Warn().Msg("WEBHOOK_SECRET is empty; all provider callbacks will be rejected")
	}

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.PoolOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if err := database.Migrate(ctx, db, migrations.FS); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, idempotency lock disabled")
		redisClient = nil
	}
	defer database.CloseRedis(redisClient)

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create webhook archive storage")
	}

	r := newRouter(cfg, buildHandlers(cfg, db, redisClient, archiver))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// Payin creation may spend the whole provider retry budget.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type handlers struct {
	jwt      *jwt.Service
	payins   *payin.Handler
	wallets  *wallet.Handler
	pricing  *pricing.Handler
	webhooks *webhook.Handler
	events   *webhook.AuditHandler
}

func buildHandlers(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, archiver *webhook.Archiver) handlers {
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	client := newProviderClient(cfg)
	policy := provider.RetryPolicy{
		MaxAttempts: cfg.ProviderMaxAttempts,
		Timeout:     cfg.ProviderTimeout,
		Delay:       cfg.ProviderRetryDelay,
	}

	// ---------- Repositories ----------
	payinRepo := payin.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	webhookRepo := webhook.NewRepository(db)

	// ---------- Services ----------
	var locker payin.Locker
	if redisClient != nil {
		locker = payin.NewRedisLocker(redisClient)
	}
	priceCache := pricing.NewCache(client, provider.Single(cfg.ProviderTimeout), cfg.PricingFallbackTTL)
	payinService := payin.NewService(payinRepo, payin.NewGuard(payinRepo, locker), client, policy, priceCache)
	walletService := wallet.NewService(walletRepo)
	reconciler := webhook.NewReconciler(payinRepo, walletService, webhookRepo, archiver)

	// ---------- Handlers ----------
	return handlers{
		jwt:      jwtService,
		payins:   payin.NewHandler(payinService),
		wallets:  wallet.NewHandler(walletService),
		pricing:  pricing.NewHandler(priceCache),
		webhooks: webhook.NewHandler(reconciler, cfg.WebhookSecret, cfg.WebhookMaxBodyBytes),
		events:   webhook.NewAuditHandler(webhookRepo, archiver),
	}
}

func newRouter(cfg *config.Config, h handlers) chi.Router {
	authMiddleware := middleware.Auth(h.jwt)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
			"mode":    cfg.PayinMode,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Mount("/payins", h.payins.Routes())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(20 * time.Second))
			r.Mount("/wallets", h.wallets.Routes())
			r.Mount("/pricing", h.pricing.Routes())
			r.Mount("/webhook-events", h.events.Routes())
		})
	})

	r.Mount("/webhooks", h.webhooks.Routes())

	return r
}

func newProviderClient(cfg *config.Config) provider.Client {
	if cfg.IsOffline() {
		log.Warn().Msg("PAYIN_MODE=offline: provider calls are simulated")
		return provider.NewOfflineClient()
	}
	if cfg.ProviderBaseURL == "" {
		log.Fatal().Msg("PROVIDER_BASE_URL is required in live mode")
	}
	return provider.NewHTTPClient(provider.Config{
		BaseURL:   cfg.ProviderBaseURL,
		APIKey:    cfg.ProviderAPIKey,
		Timeout:   cfg.ProviderTimeout,
		UserAgent: "payin-api/" + version,
	})
}

func newArchiver(ctx context.Context, cfg *config.Config) (*webhook.Archiver, error) {
	if !cfg.ArchiveEnabled() {
		return nil, nil
	}
	switch cfg.ArchiveDriver {
	case "s3":
		store, err := storage.NewS3Storage(ctx, storage.Config{
			S3Endpoint:  cfg.S3Endpoint,
			S3Region:    cfg.S3Region,
			S3Bucket:    cfg.S3Bucket,
			S3AccessKey: cfg.S3AccessKey,
			S3SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return webhook.NewArchiver(store), nil
	case "local":
		store, err := storage.NewLocalStorage(cfg.ArchiveLocalPath)
		if err != nil {
			return nil, err
		}
		return webhook.NewArchiver(store), nil
	default:
		return nil, nil
	}
}
