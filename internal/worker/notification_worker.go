package worker

import (
	"go.uber.org/zap"

	"github.com/helpdesk-hub/ticket-service/internal/config"
	"github.com/helpdesk-hub/ticket-service/internal/events"
	"github.com/helpdesk-hub/ticket-service/internal/service"
)

// StartNotificationWorker subscribes everything that consumes relayed events
// to the dispatcher the outbox relay publishes to: the notification handlers,
// then every sink (such as the Redis fan-out) for all event types. Nil sinks
// are skipped.
func StartNotificationWorker(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, sinks ...events.EventHandler) *service.NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	notifications := service.NewNotificationService(dispatcher, logger, cfg)
	notifications.RegisterHandlers()

	attached := 0
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		dispatcher.SubscribeAll(sink)
		attached++
	}
	logger.Info("notification worker subscribed",
		zap.Int("sinks", attached),
		zap.Bool("email", cfg.EmailFrom != ""),
		zap.Bool("webhook", cfg.WebhookURL != ""))
	return notifications
}
