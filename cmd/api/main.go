package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/config"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/auth"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/balance"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/referral"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/domain/user"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/middleware"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/database"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/jwt"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/lock"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/logger"
	pkgresponse "github.com/SHAIKBILLAISMAIL/netsportsproject/internal/pkg/response"
	"github.com/SHAIKBILLAISMAIL/netsportsproject/migrations"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logCloser, err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer logCloser.Close()

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting netsports API")

	// ---------- Infrastructure ----------
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	// Apply embedded schema unless disabled
	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(migrateCtx, db, migrations.FS)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Redis is optional; an empty URL yields a nil client
	redisClient, err := database.NewRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Services ----------
	userRepo := user.NewRepository(db)
	balanceService := balance.NewService(db, userRepo)
	referralService := referral.NewService(
		referral.NewPostgresStore(db),
		lock.NewLocker(redisClient),
		referral.Config{
			WelcomeCoins: cfg.WelcomeCoins,
			RewardAmount: cfg.ReferralReward,
			BulkLockTTL:  cfg.BulkAssignLockTTL,
		},
	)
	authService := auth.NewService(userRepo, jwtService, redisClient, balanceService)
	// Signup opens the ledger row; admin promotions issue AGENT codes
	authService.Subscribe(referralService)
	balanceService.OnAgentGranted(referralService.AgentCodeHook())

	// ---------- Background jobs ----------
	if cfg.BalanceRepairInterval > 0 {
		repairScheduler, err := referral.NewRepairScheduler(referralService, cfg.BalanceRepairInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create repair scheduler")
		}
		repairScheduler.Start()
		defer func() {
			if err := repairScheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Repair scheduler shutdown failed")
			}
		}()
		log.Info().Dur("interval", cfg.BalanceRepairInterval).Msg("Balance repair scheduler started")
	}

	// ---------- Router ----------
	r := newRouter(routerDeps{
		allowedOrigins: cfg.AllowedOrigins,
		authMiddleware: middleware.Auth(jwtService),
		adminOnly:      balance.RequireRole(balanceService, balance.RoleAdmin),
		auth:           auth.NewHandler(authService),
		balance:        balance.NewHandler(balanceService),
		referral:       referral.NewHandler(referralService),
		ready: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctx).Err()
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
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

type routerDeps struct {
	allowedOrigins []string
	authMiddleware func(http.Handler) http.Handler
	adminOnly      func(http.Handler) http.Handler
	auth           *auth.Handler
	balance        *balance.Handler
	referral       *referral.Handler
	ready          func(ctx context.Context) error
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(d.allowedOrigins))
	// Compress for everything else
	r.Use(chimw.Compress(5))

	// Probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.ready(ctx); err != nil {
			pkgresponse.Error(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
		pkgresponse.OK(w, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Mount("/auth", d.auth.Routes(d.authMiddleware))

		r.Group(func(r chi.Router) {
			r.Use(d.authMiddleware)
			// Referral endpoints for any signed-in user
			d.referral.RegisterRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				// Bulk assignment answers 401 itself; the rest sit behind adminOnly
				d.referral.RegisterAdminRoutes(r, d.adminOnly)
				r.Group(func(r chi.Router) {
					r.Use(d.adminOnly)
					d.balance.RegisterRoutes(r)
				})
			})
		})
	})

	return r
}
