package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"spendwise/internal/retry"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures      = 5
	openTimeout      = 30 * time.Second
	publishTimeout   = 5 * time.Second
	reconnectBase    = time.Second
	reconnectMaxWait = 30 * time.Second

	// A message whose handler keeps failing is requeued with growing delays
	// and dropped after maxHandleAttempts.
	maxHandleAttempts = 5
	requeueBase       = time.Second
	requeueMaxWait    = 30 * time.Second
)

var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrChannelClosed = errors.New("message channel closed")
)

// Handler processes one decoded message. Returning an error requeues it.
type Handler func(ctx context.Context, msg *ExpenseMessage) error

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name for a direct exchange.
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ensureChannel reconnects when the channel or connection has gone away.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch, conn := c.channel, c.conn
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() && conn != nil && !conn.IsClosed() {
		return ch, nil
	}
	if conn != nil {
		conn.Close()
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

// isCircuitOpen reports whether publishing should fail fast. An open circuit
// moves to half-open once openTimeout has passed since the last failure.
func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		elapsed := time.Since(c.lastFailure)
		c.mu.Unlock()
		if elapsed > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// Publish sends msg to the exchange as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, msg *ExpenseMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", msg.Type, ErrCircuitOpen)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Type:         msg.Type,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published expense message",
		"type", msg.Type,
		"id", msg.ID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishExpenseSync publishes an expense sync message
func (c *Client) PublishExpenseSync(ctx context.Context, owner, id string) error {
	return c.Publish(ctx, NewExpenseSyncMessage(owner, id))
}

// PublishExpenseDelete publishes an expense delete message
func (c *Client) PublishExpenseDelete(ctx context.Context, owner, id, monthKey string) error {
	return c.Publish(ctx, NewExpenseDeleteMessage(owner, id, monthKey))
}

// Consume delivers messages to handler until ctx is done or the channel
// closes. Malformed bodies are dropped; handler errors requeue.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	return c.consume(ctx, newDispatcher(handler), nil)
}

// consume runs d over the queue. delivered, when set, is called after every
// decoded delivery.
func (c *Client) consume(ctx context.Context, d *dispatcher, delivered func()) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming expense messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			d.dispatch(ctx, amqpDelivery{delivery})
			if delivered != nil {
				delivered()
			}
		}
	}
}

// acknowledger is the part of amqp091.Delivery that dispatch needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type delivery interface {
	acknowledger
	body() []byte
}

type amqpDelivery struct{ amqp091.Delivery }

func (d amqpDelivery) body() []byte { return d.Body }

// dispatcher decodes deliveries, runs the handler and settles each one.
// It is used from a single consumer goroutine.
type dispatcher struct {
	handler     Handler
	maxAttempts int
	delayBase   time.Duration
	delayMax    time.Duration
	wait        func(ctx context.Context, d time.Duration)

	// failures counts consecutive handler errors per message type and ID.
	failures map[string]int
}

func newDispatcher(handler Handler) *dispatcher {
	return &dispatcher{
		handler:     handler,
		maxAttempts: maxHandleAttempts,
		delayBase:   requeueBase,
		delayMax:    requeueMaxWait,
		wait:        sleepCtx,
		failures:    make(map[string]int),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *dispatcher) dispatch(ctx context.Context, d delivery) {
	msg, err := ExpenseMessageFromJSON(d.body())
	if err != nil {
		slog.ErrorContext(ctx, "Failed to decode message", "error", err)
		_ = d.Nack(false, false) // reject and don't requeue
		return
	}
	key := msg.Type + ":" + msg.ID

	if err := p.handler(ctx, msg); err != nil {
		p.failures[key]++
		attempt := p.failures[key]
		if attempt >= p.maxAttempts {
			delete(p.failures, key)
			slog.ErrorContext(ctx, "Dropping message after repeated failures",
				"error", err,
				"type", msg.Type,
				"id", msg.ID,
				"attempt", attempt)
			_ = d.Nack(false, false)
			return
		}

		wait := retry.Backoff(attempt-1, p.delayBase, p.delayMax)
		slog.ErrorContext(ctx, "Failed to handle message",
			"error", err,
			"type", msg.Type,
			"id", msg.ID,
			"attempt", attempt,
			"requeue_in", wait)
		// With a prefetch of one, holding the message paces redelivery.
		p.wait(ctx, wait)
		_ = d.Nack(false, true)
		return
	}

	delete(p.failures, key)
	_ = d.Ack(false)
	slog.InfoContext(ctx, "Successfully processed expense message",
		"type", msg.Type,
		"id", msg.ID)
}

// ConsumeWithReconnect keeps consuming across broker restarts, backing off
// exponentially between reconnect attempts. The backoff restarts once a
// reconnected consumer has received a message. It returns when ctx is done
// or on an error that is not connection related.
func (c *Client) ConsumeWithReconnect(ctx context.Context, handler Handler) error {
	d := newDispatcher(handler)
	return reconnectLoop(ctx, func(ctx context.Context, delivered func()) error {
		return c.consume(ctx, d, delivered)
	}, func(attempt int) time.Duration {
		return retry.Backoff(attempt, reconnectBase, reconnectMaxWait)
	})
}

func reconnectLoop(ctx context.Context, consume func(ctx context.Context, delivered func()) error, backoff func(attempt int) time.Duration) error {
	attempt := 0
	for {
		err := consume(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, ErrChannelClosed) && !retry.IsConnectionError(err) {
			return err
		}

		wait := backoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"error", err, "attempt", attempt, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
