// Package main is the entry point for the coin economy API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"edu-coin-engine/internal/config"
	"edu-coin-engine/internal/handler"
	"edu-coin-engine/internal/pkg/clock"
	"edu-coin-engine/internal/pkg/db"
	"edu-coin-engine/internal/pkg/lock"
	"edu-coin-engine/internal/repository"
	"edu-coin-engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		return err
	}

	loc, err := cfg.Clock.Location()
	if err != nil {
		return err
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	courseRepo := repository.NewCourseRepository(dbPool.Pool)
	examRepo := repository.NewExamRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	storeRepo := repository.NewStoreRepository(dbPool.Pool)
	reportRepo := repository.NewReportRepository(dbPool.Pool)
	transactor := repository.NewTransactor(dbPool.Pool, cfg.Database.TxMaxRetries)

	calendar := clock.NewCalendar(repository.NewServerClock(dbPool.Pool), loc)

	// Initialize services
	accountService := service.NewAccountService(userRepo, txRepo, storeRepo)
	coinService := service.NewCoinService(transactor, userRepo, txRepo)
	rewardPolicy := service.NewRewardPolicy(examRepo, calendar, cfg.Rewards.DailyBonusLimit)
	examService := service.NewExamService(transactor, userRepo, courseRepo, examRepo, coinService, rewardPolicy, calendar)
	redemptionService := service.NewRedemptionService(transactor, userRepo, storeRepo)
	reportService := service.NewReportService(transactor, userRepo, reportRepo, calendar, cfg.Reports.DailyLimit)

	h := handler.NewHandler(accountService, examService, coinService, redemptionService, reportService, dbPool)
	router := handler.NewRouter(h, handler.NewAuthenticator(cfg.Auth), lock.NewUserLock(), handler.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		LockWait:       cfg.Server.LockWait,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("timezone", loc.String()).
			Int("daily_bonus_limit", rewardPolicy.DailyLimit()).
			Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
