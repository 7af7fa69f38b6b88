package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/config"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
	"github.com/pawtrait/pawtrait-api/internal/pkg/email"
	"github.com/pawtrait/pawtrait-api/internal/pkg/imagegen"
	"github.com/pawtrait/pawtrait-api/internal/pkg/logger"
	"github.com/pawtrait/pawtrait-api/internal/pkg/paypal"
	"github.com/pawtrait/pawtrait-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()

	closer, err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("db_driver", cfg.DBDriver).
		Str("ledger_store", cfg.LedgerStore).
		Msg("Starting Pawtrait API")

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close(db)

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable, rate limiting and token revocation disabled")
		redis = nil
	}
	defer database.CloseRedis(redis)

	// ---------- Ledger store ----------
	var ledgerStore credit.Store = credit.NewSQLStore(db.DB)
	if cfg.LedgerStore == config.LedgerStoreMongo {
		client, mdb, err := database.NewMongo(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer database.CloseMongo(client)

		mongoStore := credit.NewMongoStore(client, mdb)
		if err := mongoStore.EnsureIndexes(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to create ledger indexes")
		}
		ledgerStore = mongoStore
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}

	// ---------- Portrait storage ----------
	var portraits storage.Storage
	var localDir string
	if cfg.R2Enabled() {
		portraits, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 storage")
		}
	} else {
		localDir = cfg.LocalStoragePath
		portraits, err = storage.NewLocalStorage(localDir, cfg.BackendURL+filesPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local storage")
		}
		log.Warn().Str("path", localDir).Msg("R2 not configured, storing portraits on local disk")
	}

	mailer := email.NewService(email.Config{
		SendGrid: email.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  "Pawtrait",
		},
		SupportEmail: cfg.SupportEmail,
		AppURL:       cfg.FrontendURL,
	})
	defer mailer.Close()

	router := newRouter(deps{
		cfg:       cfg,
		db:        db,
		ledger:    credit.NewService(ledgerStore),
		redis:     redis,
		catalog:   cat,
		portraits: portraits,
		localDir:  localDir,
		mailer:    mailer,
		generator: imagegen.NewClient(cfg.ImageGenBaseURL, cfg.ImageGenAPIKey,
			time.Duration(cfg.ImageGenTimeoutSeconds)*time.Second, "pawtrait-api/1.0"),
		paypal: paypal.NewClient(paypal.Config{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			WebhookID:    cfg.PayPalWebhookID,
		}),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.ImageGenTimeoutSeconds)*time.Second + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
