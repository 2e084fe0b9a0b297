// Package broker publishes JSON events to a RabbitMQ exchange.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second
	redialInterval = 5 * time.Second
)

// ErrUnavailable is returned while the broker connection is down and the next
// redial attempt is not yet due.
var ErrUnavailable = errors.New("broker unavailable")

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// session is one connection and channel pair. closed fires when the broker
// closes either of them.
type session struct {
	conn    io.Closer
	channel amqpChannel
	closed  <-chan *amqp091.Error
}

func (s *session) alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *session) close() error {
	var errs []error
	if err := s.channel.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errors.Join(errs...)
}

// Publisher publishes persistent JSON messages to a durable direct exchange.
// A dropped connection is redialled on the next Publish, at most once per
// redialInterval.
type Publisher struct {
	mu       sync.Mutex
	session  *session
	dial     func() (*session, error)
	nextDial time.Time
	now      func() time.Time
	exchange string
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(rawURL, exchange string) (*Publisher, error) {
	amqpURL, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		return nil, errors.New("exchange name is required")
	}

	p := newPublisher(exchange, func() (*session, error) {
		return dialSession(amqpURL, exchange)
	})
	if p.session, err = p.dial(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(exchange string, dial func() (*session, error)) *Publisher {
	return &Publisher{
		dial:     dial,
		now:      time.Now,
		exchange: exchange,
	}
}

func dialSession(amqpURL, exchange string) (*session, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &session{
		conn:    conn,
		channel: channel,
		closed:  channel.NotifyClose(make(chan *amqp091.Error, 1)),
	}, nil
}

// Publish marshals payload to JSON and publishes it with the given routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := newPublishing(payload, p.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	sess, err := p.current()
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	err = sess.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		if !sess.alive() {
			p.drop()
		}
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	slog.Debug("published event", "exchange", p.exchange, "routing_key", routingKey)
	return nil
}

// current returns a live session, redialling when the previous one was closed.
// Callers hold p.mu.
func (p *Publisher) current() (*session, error) {
	if p.session != nil && p.session.alive() {
		return p.session, nil
	}
	if p.session != nil {
		slog.Warn("broker connection lost", "exchange", p.exchange)
		p.drop()
	}

	now := p.now()
	if now.Before(p.nextDial) {
		return nil, ErrUnavailable
	}

	sess, err := p.dial()
	if err != nil {
		p.nextDial = now.Add(redialInterval)
		slog.Warn("broker redial failed", "exchange", p.exchange, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	slog.Info("broker connection restored", "exchange", p.exchange)
	p.session = sess
	p.nextDial = time.Time{}
	return sess, nil
}

func (p *Publisher) drop() {
	if p.session == nil {
		return
	}
	_ = p.session.close()
	p.session = nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	err := p.session.close()
	p.session = nil
	return err
}

func newPublishing(payload any, now time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
		Body:         body,
	}, nil
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if clean == "" {
		return "", errors.New("broker url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", fmt.Errorf("unsupported broker url scheme %q", u.Scheme)
	}
	return clean, nil
}
