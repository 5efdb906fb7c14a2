package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/observability"
	"github.com/helpdesk-hub/ticket-service/internal/persistence"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	"github.com/helpdesk-hub/ticket-service/internal/sla"
)

// runtimeDeps holds the process-wide dependencies shared by the commands.
type runtimeDeps struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
	store  repository.Store
}

func bootstrap(ctx context.Context) (*runtimeDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Version == "dev" {
		cfg.App.Version = version
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, pg, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &runtimeDeps{cfg: cfg, logger: logger, pg: pg, store: store}, nil
}

func (rt *runtimeDeps) close() {
	if rt.pg != nil {
		rt.pg.Close()
	}
	_ = rt.logger.Sync()
}

func slaPolicies(cfg config.SLAConfig) map[string]sla.Policy {
	out := make(map[string]sla.Policy)
	for priority, hours := range cfg.ByPriority() {
		if hours.Response > 0 || hours.Resolution > 0 {
			out[priority] = sla.Policy{ResponseHours: hours.Response, ResolutionHours: hours.Resolution}
		}
	}
	return out
}
