package dispatchworker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/govalues/decimal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	service "orderflow/internal/app/dispatchworker"
	"orderflow/internal/dispatch"
	"orderflow/internal/shared/config"
	"orderflow/internal/shared/logger"
	"orderflow/internal/shared/metrics"
	pg "orderflow/internal/shared/postgres"
	"orderflow/internal/shared/rabbitmq"
	"orderflow/internal/shared/retry"
	"orderflow/internal/shared/validate"
	"orderflow/internal/workflow"
)

// Run wires the dispatch worker and blocks until ctx is cancelled or a loop
// fails terminally.
func Run(ctx context.Context, workerName string, channels *string, heartbeat, prefetch, metricsPort int) error {
	log := logger.New("dispatch-worker")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	pool, err := pg.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	validator, err := validate.New()
	if err != nil {
		log.Error(ctx, "validator_init_failed", "Failed to compile order schema", err)
		return err
	}

	highValue, err := decimal.Parse(cfg.Workflow.HighValueThreshold)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Invalid high_value_threshold", err)
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	uow := pg.NewUnitOfWork(pool)
	workerSvc := service.NewWorkerService(uow, pg.NewWorkersRepo(), log)

	flow := workflow.New(workflow.Config{
		Selector: dispatch.NewSelector(dispatch.Config{
			UrgentPoolSize:   cfg.Dispatch.UrgentPoolSize,
			ExpressPoolSize:  cfg.Dispatch.ExpressPoolSize,
			StandardPoolSize: cfg.Dispatch.StandardPoolSize,
		}),
		Dispatcher: &rabbitmq.TopicPublisher{Client: rmq},
		Notifier:   &rabbitmq.FanoutPublisher{Client: rmq},
		Validator:  validator,
		Payments:   workflow.NewSimulatedPayments(cfg.Workflow.PaymentFailureMarker),
		Journal:    pg.NewTxJournal(uow, pg.NewEventsRepo()),
		Metrics:    m,
		Logger:     log,
		Retry: retry.Config{
			MaxRetries: cfg.Workflow.MaxPublishRetries,
			Base:       cfg.RetryBase(),
			Cap:        cfg.RetryCap(),
		},
		HighValueThreshold: highValue,
		EmittedBy:          workerName,
	})

	processor := service.NewProcessor(flow, workerSvc, log)

	channelsCSV := normalizeChannels(channels)

	// register (or exit if duplicate)
	ok, err := workerSvc.RegisterOrExit(ctx, workerName, channelsCSV)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("worker %q is already online", workerName)
	}

	log.Info(ctx, "service_started", "Dispatch worker started", map[string]any{
		"name":      workerName,
		"channels":  channelsCSV,
		"heartbeat": heartbeat,
		"prefetch":  prefetch,
	})

	g, gctx := errgroup.WithContext(ctx)

	// heartbeat loop
	g.Go(func() error {
		hb := time.NewTicker(time.Duration(heartbeat) * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-hb.C:
				if err := workerSvc.Heartbeat(gctx, workerName); err != nil {
					log.Error(gctx, "heartbeat_failed", "Heartbeat update failed", err)
					return err
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	// consumer loop
	g.Go(func() error {
		consumeLoop(gctx, log, rmq, processor, workerName, channelsCSV, prefetch)
		return nil
	})

	// optional metrics endpoint
	if metricsPort > 0 {
		g.Go(func() error {
			return serveMetrics(gctx, reg, metricsPort)
		})
	}

	retErr := g.Wait()

	// attempt graceful offline mark
	graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := workerSvc.GracefulOffline(graceCtx, workerName); err != nil {
		log.Error(ctx, "graceful_offline_failed", "Failed to mark offline during shutdown", err)
	} else {
		log.Info(ctx, "graceful_shutdown", "Worker shutdown completed", map[string]any{
			"name": workerName,
		})
	}

	return retErr
}

// serveMetrics exposes the worker's Prometheus registry on /metrics.
func serveMetrics(ctx context.Context, reg *prometheus.Registry, port int) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
