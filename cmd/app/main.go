package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"motion-akademija-billing/internal/config"
	mailAdapters "motion-akademija-billing/internal/infra/adapters/mail"
	payAdapters "motion-akademija-billing/internal/infra/adapters/payment"
	pg "motion-akademija-billing/internal/infra/db/postgres"
	"motion-akademija-billing/internal/infra/logging"
	"motion-akademija-billing/internal/infra/metrics"
	red "motion-akademija-billing/internal/infra/redis"
	"motion-akademija-billing/internal/infra/sched"
	"motion-akademija-billing/internal/infra/security"
	"motion-akademija-billing/internal/infra/web"
	"motion-akademija-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Encryption (card tokens at rest) ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("security.encryption_key must be 32 bytes")
		}
		logger.Warn().Msg("security.encryption_key not set; using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption init failed")
	}

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	transactionRepo := pg.NewTransactionRepo(pool)
	callbackLedger := pg.NewCallbackLedger(pool)
	userRepo := pg.NewUserRepo(pool)
	mandateRepo := pg.NewMandateRepo(pool, encSvc)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	courseRepo := pg.NewCourseRepo(pool)

	// ---- Adapters ----
	gateway, err := payAdapters.NewMSUGateway(cfg.MSU)
	if err != nil {
		logger.Fatal().Err(err).Msg("msu gateway init failed")
	}
	mailer := mailAdapters.NewSMTPMailer(cfg.SMTP)

	// ---- Use cases ----
	checkoutUC := usecase.NewCheckoutUseCase(transactionRepo, userRepo, courseRepo, gateway, cfg.MSU.ReturnURL, logger)
	reconcileUC := usecase.NewReconcileUseCase(txManager, transactionRepo, callbackLedger, userRepo, mandateRepo, purchaseRepo, mailer, logger)
	renewalUC := usecase.NewRenewalUseCase(txManager, transactionRepo, userRepo, mandateRepo, gateway, mailer, cfg.Scheduler.InterChargeDelay, logger)
	subUC := usecase.NewSubscriptionUseCase(userRepo, mandateRepo, logger)

	// ---- Scheduled workers ----
	if !cfg.Scheduler.DisableRenewalJob {
		renewalWorker := sched.NewRenewalWorker(cfg.Scheduler.RenewalInterval, cfg.Scheduler.RenewalLockTTL, renewalUC, locker, logger)
		go func() { _ = renewalWorker.Run(ctx) }()
	}
	if !cfg.Scheduler.DisableCleanupJob {
		cleanupWorker := sched.NewCleanupWorker(cfg.Scheduler.CleanupInterval, cfg.Scheduler.ExpiryWarnWindow, subUC, logger)
		go func() { _ = cleanupWorker.Run(ctx) }()
	}

	// ---- HTTP server ----
	srv := web.NewServer(checkoutUC, reconcileUC, subUC, rateLimiter, cfg.Frontend, cfg.Security.JWTSecret, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
