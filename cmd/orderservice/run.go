package orderservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/govalues/decimal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	service "orderflow/internal/app/orderservice"
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

// Run wires the order intake service and blocks until ctx is cancelled.
func Run(ctx context.Context, port int, maxConcurrent int) error {
	log := logger.New("order-service")
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
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	uow := pg.NewUnitOfWork(pool)

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
		EmittedBy:          "order-service",
	})

	svc := service.New(flow, log)
	h := service.NewOrderHTTPHandler(svc, validator, log)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := withConcurrencyLimit(int64(maxConcurrent), mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Order service started on port %d", port),
		map[string]any{"port": port, "max_concurrent": maxConcurrent},
	)

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
		// drain keep-alives and in-flight requests
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// withConcurrencyLimit wraps an http.Handler with a weighted-semaphore
// limiter. Acquisition blocks, which provides natural backpressure.
func withConcurrencyLimit(n int64, next http.Handler) http.Handler {
	sem := semaphore.NewWeighted(n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}
