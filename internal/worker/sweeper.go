// Package worker runs the background maintenance loops. The only loop
// today is the abandonment sweeper, which cancels orders whose payment
// never arrived so their coupon reservations flow back into the pool.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvrhoads/njord/internal/service"
	"github.com/dvrhoads/njord/internal/store"
)

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often to scan for stale orders.
	Interval time.Duration

	// PendingTTL is how long an order may sit pending before it is
	// considered abandoned. It must comfortably exceed the gateway's
	// webhook retry window so a slow payment is never raced.
	PendingTTL time.Duration

	// BatchSize caps how many orders one sweep processes.
	BatchSize int32
}

// Sweeper periodically expires abandoned pending orders.
type Sweeper struct {
	config Config
	store  store.Store
	orders *service.OrderService
	logger zerolog.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper. Zero config fields get defaults.
func NewSweeper(st store.Store, orders *service.OrderService, config Config, logger zerolog.Logger) *Sweeper {
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.PendingTTL == 0 {
		config.PendingTTL = 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	return &Sweeper{
		config: config,
		store:  st,
		orders: orders,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("pending_ttl", s.config.PendingTTL).
		Msg("abandonment sweeper starting")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("abandonment sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires one batch of stale pending orders. Each order is
// handled independently: one failure does not stop the batch, and a
// lost transition race just means someone else settled the order.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.config.PendingTTL)
	stale, err := s.store.Orders().ListStalePending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list stale orders")
		return
	}
	if len(stale) == 0 {
		return
	}

	expired := 0
	for _, order := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := s.orders.ExpireOrder(ctx, order.ID); err != nil {
			s.logger.Error().Err(err).
				Str("order_id", order.ID.String()).
				Msg("failed to expire order")
			continue
		}
		expired++
	}

	s.logger.Info().
		Int("found", len(stale)).
		Int("expired", expired).
		Msg("sweep completed")
}
