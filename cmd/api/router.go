package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/config"
	"github.com/pawtrait/pawtrait-api/internal/domain/admin"
	"github.com/pawtrait/pawtrait-api/internal/domain/auth"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/generation"
	"github.com/pawtrait/pawtrait-api/internal/domain/payment"
	"github.com/pawtrait/pawtrait-api/internal/domain/subscription"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
	"github.com/pawtrait/pawtrait-api/internal/middleware"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
	"github.com/pawtrait/pawtrait-api/internal/pkg/email"
	"github.com/pawtrait/pawtrait-api/internal/pkg/jwt"
	pkgresponse "github.com/pawtrait/pawtrait-api/internal/pkg/response"
	"github.com/pawtrait/pawtrait-api/internal/pkg/storage"
)

// filesPrefix serves portraits kept on local disk
const filesPrefix = "/files"

type deps struct {
	cfg       *config.Config
	db        *database.DB
	ledger    credit.Service
	redis     *redis.Client
	catalog   *catalog.Catalog
	portraits storage.Storage
	localDir  string
	mailer    *email.Service
	generator generation.Generator
	paypal    payment.Provider
}

func newRouter(d deps) http.Handler {
	cfg := d.cfg
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(d.db.DB)
	generationRepo := generation.NewRepository(d.db.DB)
	paymentRepo := payment.NewRepository(d.db.DB)

	// ---------- Services ----------
	authService := auth.NewService(userRepo, d.ledger, jwtService, d.redis, cfg.SignupCredits, cfg.JWTRefreshTTL)
	subscriptionService := subscription.NewService(userRepo, d.ledger, d.catalog)
	generationService := generation.NewService(generationRepo, d.ledger, d.generator, d.portraits, d.catalog, d.mailer).
		WithLease(2*time.Duration(cfg.ImageGenTimeoutSeconds)*time.Second + time.Minute)
	paymentService := payment.NewService(paymentRepo, d.paypal, d.ledger, subscriptionService, userRepo, d.catalog, d.mailer, payment.Config{
		ReturnURL: cfg.FrontendURL + "/checkout/return",
		CancelURL: cfg.FrontendURL + "/checkout/cancel",
	})
	adminService := admin.NewService(userRepo, d.ledger, d.catalog)

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService)
	creditHandler := credit.NewHandler(d.ledger)
	generationHandler := generation.NewHandler(generationService)
	subscriptionHandler := subscription.NewHandler(subscriptionService)
	paymentHandler := payment.NewHandler(paymentService)
	adminHandler := admin.NewHandler(adminService)

	authMiddleware := middleware.Auth(jwtService)
	generationLimiter := middleware.NewRateLimiter(d.redis, "generations", cfg.GenerationRateLimit, time.Minute)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	if d.localDir != "" {
		r.Handle(filesPrefix+"/*", http.StripPrefix(filesPrefix, http.FileServer(http.Dir(d.localDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/auth", authHandler.Routes(authMiddleware))
		r.Mount("/credits", creditHandler.Routes(authMiddleware))
		r.Mount("/generations", generationHandler.Routes(authMiddleware, generationLimiter.PerUser))
		r.Mount("/subscriptions", subscriptionHandler.Routes(authMiddleware))
		r.Mount("/payments", paymentHandler.Routes(authMiddleware))
	})

	r.Post("/webhooks/paypal", paymentHandler.Webhook)

	r.Mount("/api/admin", adminHandler.Routes(authMiddleware))

	return r
}
