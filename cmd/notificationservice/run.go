package notificationservice

import (
	"context"

	service "orderflow/internal/app/notificationservice"
	"orderflow/internal/shared/config"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/rabbitmq"
)

// Run wires the notification subscriber and blocks until ctx is cancelled.
func Run(ctx context.Context) error {
	log := logger.New("notification-subscriber")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	log.Info(ctx, "service_started", "Notification subscriber started", nil)

	service.ConsumeForever(ctx, rmq, log)

	log.Info(ctx, "graceful_shutdown", "Notification subscriber stopped", nil)
	return nil
}
