package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives all account events.
const DefaultQueue = "account.events"

const (
	DefaultDialTimeout = 3 * time.Second
	DefaultRetryDelay  = 30 * time.Second
)

// ErrBrokerUnavailable is returned without dialing while a failed connection
// attempt is still inside its retry delay.
var ErrBrokerUnavailable = errors.New("amqp broker unavailable")

// AMQPPublisher publishes persistent JSON messages to a durable queue on
// the default exchange. The connection is opened lazily and reopened after
// the broker drops it. Publish runs on the request path, so dialing is
// bounded by dialTimeout and a failed attempt is not repeated for retryDelay.
type AMQPPublisher struct {
	url         string
	queue       string
	dialTimeout time.Duration
	retryDelay  time.Duration
	dial        func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
	lastErr error
}

// NewAMQPPublisher returns a publisher for url. An empty queue selects DefaultQueue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	p := &AMQPPublisher{
		url:         url,
		queue:       queue,
		dialTimeout: DefaultDialTimeout,
		retryDelay:  DefaultRetryDelay,
	}
	p.dial = p.dialBroker
	return p, nil
}

func (p *AMQPPublisher) dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.ch, p.conn = nil, nil
	return err
}

func (p *AMQPPublisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()
	if time.Now().Before(p.retryAt) {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, p.lastErr)
	}

	ch, err := p.connectLocked()
	if err != nil {
		p.retryAt = time.Now().Add(p.retryDelay)
		p.lastErr = err
		return nil, err
	}
	p.retryAt, p.lastErr = time.Time{}, nil
	return ch, nil
}

func (p *AMQPPublisher) connectLocked() (*amqp.Channel, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}
