package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/raffle-ticket-sales/internal/config"
	"github.com/iliyamo/raffle-ticket-sales/internal/database"
	"github.com/iliyamo/raffle-ticket-sales/internal/handler"
	"github.com/iliyamo/raffle-ticket-sales/internal/idempotency"
	"github.com/iliyamo/raffle-ticket-sales/internal/middleware"
	"github.com/iliyamo/raffle-ticket-sales/internal/queue"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
	"github.com/iliyamo/raffle-ticket-sales/internal/router"
	"github.com/iliyamo/raffle-ticket-sales/internal/service"
	"github.com/iliyamo/raffle-ticket-sales/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName, MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.InitializeSchema(initCtx, db); err != nil {
		cancelInit()
		logger.Fatal().Err(err).Msg("initialize schema")
	}
	cancelInit()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn().Msg("redis unavailable: rate limiting and idempotency keys disabled")
	} else {
		defer rdb.Close()
	}

	var proofs handler.ProofUploader
	if cfg.S3Bucket != "" {
		store, err := storage.NewS3ProofStore(cfg.S3Region, cfg.S3Bucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("init proof store")
		}
		proofs = store
	} else {
		logger.Warn().Msg("S3_BUCKET not set: proof uploads disabled")
	}

	// post-commit notifications; waited for on shutdown
	var notifications errgroup.Group
	dispatch := func(fn func()) {
		notifications.Go(func() error { fn(); return nil })
	}
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithDispatcher(dispatch),
		service.WithNotifyTimeout(cfg.NotifyTimeout),
		service.WithNumberWidth(cfg.TicketNumberWidth),
	}

	txm := repository.NewTxManager(db)
	tickets := repository.NewTicketRepo(db)
	buyers := repository.NewBuyerRepo(db)
	sellers := repository.NewSellerRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	publisher := queue.NewPublisher(cfg.RabbitURL, logger)

	reservations := service.NewReservationService(txm, tickets, buyers, sellers, publisher, opts...)
	settlements := service.NewSettlementService(txm, tickets, publisher, opts...)
	reports := service.NewReportingService(tickets, sellers, cfg.TicketUnitPrice, cfg.TicketAllotment)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, sellers, logger), cfg.JWTSecret)
	router.RegisterSeller(e,
		handler.NewSellerHandler(reservations, idempotency.NewStore(rdb, cfg.IdempotencyTTL), logger),
		handler.NewProofHandler(proofs, logger),
		cfg.JWTSecret, limit)
	router.RegisterTreasury(e, handler.NewTreasuryHandler(settlements, reports, logger), cfg.JWTSecret, limit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return queue.NewConsumer(cfg.RabbitURL, cfg.NotificationLogDir, logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
	_ = notifications.Wait()
	logger.Info().Msg("bye")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.Env == "dev" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(level).With().Timestamp().Str("service", "raffle-ticket-sales").Logger()
}
