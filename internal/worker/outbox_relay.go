package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
)

// OutboxRelay publishes committed outbox rows through the dispatcher. Delivery
// is at least once: a row is marked published only after every handler
// accepted it, and failed rows are retried until MaxAttempts.
type OutboxRelay struct {
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.OutboxConfig
	clock      func() time.Time
}

// NewOutboxRelay builds a relay.
func NewOutboxRelay(store repository.Store, dispatcher events.Dispatcher, logger *zap.Logger, cfg config.OutboxConfig) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &OutboxRelay{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		clock:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize))
	for {
		if _, _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox relay failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce claims one batch and publishes it. No transaction or store lock
// is held while handlers run. Two relays may both deliver a row; consumers
// dedupe by event ID. Handler failures are recorded on the row and do not fail
// the batch.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (published, failed int, err error) {
	outbox := r.store.Outbox()
	rows, err := outbox.ClaimBatch(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return published, failed, err
		}
		event, deliverErr := events.FromOutbox(row)
		if deliverErr == nil {
			deliverErr = r.dispatcher.Publish(ctx, event)
		}
		if deliverErr != nil {
			failed++
			r.logger.Warn("outbox event not delivered",
				zap.String("event_id", row.ID),
				zap.String("event_type", row.EventType),
				zap.Int("attempt", row.Attempts+1),
				zap.Error(deliverErr))
			if err := outbox.MarkFailed(ctx, row.ID, deliverErr.Error()); err != nil {
				return published, failed, err
			}
			continue
		}
		if err := outbox.MarkPublished(ctx, row.ID, r.clock().UTC()); err != nil {
			return published, failed, err
		}
		published++
	}
	if published > 0 || failed > 0 {
		r.logger.Debug("outbox batch relayed", zap.Int("published", published), zap.Int("failed", failed))
	}
	return published, failed, nil
}
