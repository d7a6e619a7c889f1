package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal"
	"github.com/dvrhoads/njord/internal/address"
	"github.com/dvrhoads/njord/internal/coupon"
	"github.com/dvrhoads/njord/internal/gateway"
	"github.com/dvrhoads/njord/internal/handler"
	"github.com/dvrhoads/njord/internal/middleware"
	"github.com/dvrhoads/njord/internal/notify"
	"github.com/dvrhoads/njord/internal/service"
	"github.com/dvrhoads/njord/internal/shipping"
	"github.com/dvrhoads/njord/internal/store"
	"github.com/dvrhoads/njord/internal/store/memory"
	"github.com/dvrhoads/njord/internal/store/postgres"
	"github.com/dvrhoads/njord/internal/tax"
	"github.com/dvrhoads/njord/internal/telemetry"
	"github.com/dvrhoads/njord/internal/worker"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	st, healthDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := st.(interface{ Close() }); ok {
		defer c.Close()
	}

	events := openDispatcher(cfg, logger)
	defer events.Close()

	provider := openGateway(cfg, logger)

	var taxes tax.Calculator = tax.NewNoTaxCalculator()
	if cfg.Tax.Rate > 0 {
		taxes, err = tax.NewPercentageCalculator(cfg.Tax.Rate)
		if err != nil {
			return fmt.Errorf("tax calculator: %w", err)
		}
	}
	ship, err := shipping.NewFlatRateProvider(cfg.Shipping.FlatRateCents, cfg.Shipping.FreeOverCents)
	if err != nil {
		return fmt.Errorf("shipping provider: %w", err)
	}

	carts := service.NewCartService(st.Carts(), logger)
	coupons := coupon.NewEngine(st.Coupons())
	checkout := service.NewCheckoutService(st, carts, coupons, address.NewBasicValidator(), taxes, ship, events, logger, cfg.Currency)
	orders := service.NewOrderService(st, events, logger)
	reconciler := service.NewPaymentReconciler(st, provider, events, logger, cfg.Gateway.VerifyTimeout)
	refunds := service.NewRefundProcessor(st, provider, events, logger)

	if cfg.Sweep.Enabled {
		sweeper := worker.NewSweeper(st, orders, worker.Config{
			Interval:   cfg.Sweep.Interval,
			PendingTTL: cfg.Sweep.PendingTTL,
		}, logger)
		go sweeper.Start(ctx)
	}

	telemetry.InitBusinessMetrics(cfg.Metrics.Namespace)
	metrics := middleware.NewMetrics(cfg.Metrics.Namespace)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	handler.RegisterRoutes(e, handler.Handlers{
		Cart:    handler.NewCartHandler(carts),
		Coupon:  handler.NewCouponHandler(coupons, carts, ship),
		Order:   handler.NewOrderHandler(checkout, orders),
		Payment: handler.NewPaymentHandler(reconciler, refunds, logger),
		Health:  handler.NewHealthHandler(healthDB),
	}, logger, metrics)

	addr := fmt.Sprintf(":%d", cfg.Port)
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore connects to postgres and runs migrations, or falls back to
// the in-memory store in dev when no DATABASE_URL is set. The returned
// Pinger backs the readiness probe and is nil for the memory store.
func openStore(ctx context.Context, cfg *internal.Config, logger zerolog.Logger) (store.Store, handler.Pinger, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("no DATABASE_URL set, using in-memory store")
		return memory.NewStore(), nil, nil
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	logger.Info().Msg("running database migrations")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}

	st, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("database connection established")
	return st, st, nil
}

func openDispatcher(cfg *internal.Config, logger zerolog.Logger) notify.Dispatcher {
	if cfg.NatsURL == "" {
		logger.Warn().Msg("no NATS_URL set, events will be dropped")
		return notify.NopDispatcher{}
	}
	events, err := notify.NewNatsDispatcher(cfg.NatsURL, logger)
	if err != nil {
		// The dispatcher reconnects on its own once the broker comes
		// up, but a bad URL should not take the storefront down.
		logger.Error().Err(err).Msg("nats connection failed, events will be dropped")
		return notify.NopDispatcher{}
	}
	logger.Info().Str("url", cfg.NatsURL).Msg("nats connected")
	return events
}

func openGateway(cfg *internal.Config, logger zerolog.Logger) gateway.Provider {
	if cfg.Gateway.Provider == "stripe" {
		return gateway.NewStripeProvider(cfg.Gateway.SecretKey, cfg.Gateway.WebhookSecret)
	}
	logger.Warn().Msg("using mock payment gateway")
	return gateway.NewMockProvider(cfg.Gateway.WebhookSecret)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
