package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-hub/ticket-service/internal/api/http"
	"github.com/helpdesk-hub/ticket-service/internal/api/http/handlers"
	"github.com/helpdesk-hub/ticket-service/internal/auth"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/observability"
	"github.com/helpdesk-hub/ticket-service/internal/persistence"
	"github.com/helpdesk-hub/ticket-service/internal/service"
	"github.com/helpdesk-hub/ticket-service/internal/sla"
	"github.com/helpdesk-hub/ticket-service/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox relay",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	shutdownTracing := observability.SetupTracing(ctx, cfg.Tracing, cfg.App.Version, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	checks := map[string]handlers.Pinger{"store": rt.store}
	if rt.pg != nil {
		if cfg.Postgres.RunMigrations {
			if _, err := rt.pg.Migrate(ctx, migrate.Up, logger); err != nil {
				return err
			}
		}
		checks["postgres"] = rt.pg
	}

	dispatcher := events.NewInMemoryDispatcher()
	var sinks []events.EventHandler
	if redis := persistence.NewRedis(ctx, cfg.Redis, logger); redis != nil {
		defer redis.Close()
		checks["redis"] = redis
		sinks = append(sinks, redis.Publish)
	}
	worker.StartNotificationWorker(dispatcher, logger, cfg.Notification, sinks...)

	metrics := observability.NewMetrics()
	deps := service.Dependencies{
		Store:      rt.store,
		SLA:        sla.NewCalculator(slaPolicies(cfg.SLA)),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     observability.Tracer(),
		MaxRetries: cfg.Lifecycle.MaxRetries,
		CodePrefix: cfg.Lifecycle.CodePrefix,
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, metrics),
		Tickets:        handlers.NewTicketsHandler(service.NewTicketService(deps)),
		SubTickets:     handlers.NewSubTicketsHandler(service.NewSubTicketService(deps)),
		Approvals:      handlers.NewApprovalsHandler(service.NewApprovalService(deps)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.Required),
	})

	relayDone := make(chan error, 1)
	if cfg.Outbox.Enabled {
		relay := worker.NewOutboxRelay(rt.store, dispatcher, logger, cfg.Outbox)
		go func() { relayDone <- relay.Run(ctx) }()
	} else {
		relayDone <- nil
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()), zap.String("version", cfg.App.Version))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
			stop()
			<-relayDone
			return err
		}
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := <-relayDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("outbox relay", zap.Error(err))
	}
	return nil
}
