package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"orderflow/internal/ports"
	"orderflow/internal/shared/config"
	"orderflow/internal/shared/logger"
)

// Exchange and queue names of the dispatch topology.
const (
	DispatchExchange = "orders.dispatch"     // topic; routing key is the dispatch channel
	StatusExchange   = "orders.status"       // fanout; status updates and notifications
	DeadExchange     = "orders.dispatch.dlx" // topic; rejected dispatch deliveries

	DispatchQueue = "dispatch_queue"
	DeadQueue     = "dispatch_dlx_queue"
	StatusQueue   = "status_updates_queue"
)

// Client is a resilient RabbitMQ connector with auto-reconnect and topology setup.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // carries context with request_id across reconnects

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closed    chan struct{}
	reconnect chan struct{}
}

// TopicPublisher routes dispatch-channel messages through the topic exchange.
// The destination passed to Publish becomes the routing key.
type TopicPublisher struct {
	Client *Client
}

var _ ports.Publisher = (*TopicPublisher)(nil)

func (p *TopicPublisher) Publish(ctx context.Context, destination string, body []byte, headers map[string]any) error {
	return p.Client.PublishMessage(ctx, DispatchExchange, destination, body, headers)
}

// FanoutPublisher broadcasts on the status exchange; the destination is
// carried only as informational metadata since fanout ignores routing keys.
type FanoutPublisher struct {
	Client *Client
}

var _ ports.Publisher = (*FanoutPublisher)(nil)

func (p *FanoutPublisher) Publish(ctx context.Context, destination string, body []byte, headers map[string]any) error {
	return p.Client.PublishMessage(ctx, StatusExchange, destination, body, headers)
}

// Connect establishes the connection and starts a background watcher that
// reconnects on failures.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)

	client := &Client{
		url:       url,
		logger:    log,
		logCtx:    context.WithoutCancel(ctx), // avoid ctx cancel on reconnects
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(ctx); err != nil {
		return nil, err
	}

	// background watcher for reconnects
	go client.watch()

	return client, nil
}

// NewConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) NewConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, err
		}
	}

	return ch, nil
}

// PublishMessage publishes a persistent JSON message with the given headers.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte, headers map[string]any) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(ctx,
		exchange, routingKey, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers:      amqp.Table(headers),
			Body:         body,
		})
}

// Ping checks connectivity by dialing TCP to the RabbitMQ host.
func (client *Client) Ping(timeout time.Duration) error {
	client.mu.RLock()
	conn := client.conn
	url := client.url
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: no connection")
	}

	u, err := amqp.ParseURI(url)
	if err != nil {
		return fmt.Errorf("rabbitmq: bad url: %w", err)
	}
	addr := net.JoinHostPort(u.Host, fmt.Sprintf("%d", u.Port))

	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}

	_ = c.Close()
	return nil
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	select {
	case <-client.closed:
		// already closed
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()
}

// --- internals ---

// connectOnce tries to connect and set up topology once.
func (client *Client) connectOnce(ctx context.Context) error {
	start := time.Now().UTC()

	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	// declare/ensure topology idempotently
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	client.mu.Lock()
	client.conn = conn
	if client.pubChan != nil {
		_ = client.pubChan.Close()
	}
	client.pubChan = ch
	client.mu.Unlock()

	// watch for connection/channel closures and trigger reconnect
	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued; no-op
		}
	}()

	client.logger.Info(ctx, "rabbitmq_connected",
		"Connected to RabbitMQ; exchanges: orders.dispatch, orders.status",
		map[string]any{"duration_ms": time.Since(start).Milliseconds()})

	return nil
}

// watch runs in background and attempts reconnects with exponential backoff.
func (client *Client) watch() {
	backoff := time.Second
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			// attempt reconnect until success or Close()
			for {
				select {
				case <-client.closed:
					return
				default:
				}

				ctx, cancel := context.WithTimeout(client.logCtx, 30*time.Second)
				err := client.connectOnce(ctx)
				cancel()

				if err == nil {
					backoff = time.Second
					client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology", nil)
					break
				}

				client.logger.Error(client.logCtx, "retry_attempted", fmt.Sprintf("RabbitMQ reconnect failed: %v", err), err)

				time.Sleep(backoff)
				if backoff < 30*time.Second {
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
				}
			}
		}
	}
}

// declareTopology declares exchanges, queues, and bindings.
func declareTopology(ch *amqp.Channel) error {
	// exchanges
	if err := ch.ExchangeDeclare(DispatchExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(StatusExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	// main dispatch queue: durable, dead-letters to the DLX
	_, err := ch.QueueDeclare(
		DispatchQueue, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": DeadExchange,
		},
	)
	if err != nil {
		return err
	}
	// dispatch channels share the "dispatch." prefix (escalation, pooled, bulk, fallback)
	if err := ch.QueueBind(DispatchQueue, "dispatch.#", DispatchExchange, false, nil); err != nil {
		return err
	}

	// DLX + DLQ
	if err := ch.ExchangeDeclare(DeadExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DeadQueue, "#", DeadExchange, false, nil); err != nil {
		return err
	}

	// status updates queue bound to fanout
	if _, err := ch.QueueDeclare(StatusQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(StatusQueue, "", StatusExchange, false, nil); err != nil {
		return err
	}

	return nil
}
