package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parking-gate/internal/config"
	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/model"
)

var (
	errPublisherClosed = errors.New("queue: publisher closed")
	errNoGateCommand   = errors.New("queue: decision has no gate command")
)

// Publisher sends gate commands to the command topic. The connection is
// opened lazily and reopened after a failed publish.
type Publisher struct {
	url      string
	exchange string
	topic    string
	logger   *log.Logger
	metrics  *metrics.Metrics

	dialTimeout time.Duration

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewPublisher does not dial; the first Publish does. Each dial is bounded
// by cfg.DialTimeout and by the caller's context.
func NewPublisher(cfg config.BusConfig, logger *log.Logger, m *metrics.Metrics) *Publisher {
	if logger == nil {
		logger = log.New("bus")
	}
	return &Publisher{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		topic:    cfg.CommandTopic,
		logger:   logger,
		metrics:  m,

		dialTimeout: cfg.DialTimeout,
	}
}

// Publish sends d.Wire() as a plain text message. The decision event id
// travels as the correlation id. Decisions for anything but entry or exit
// are refused since no gate listens for them.
func (p *Publisher) Publish(ctx context.Context, d model.Decision) error {
	if !d.Direction.Valid() {
		return fmt.Errorf("%w: %q", errNoGateCommand, d.Wire())
	}
	msg := amqp.Publishing{
		ContentType:   "text/plain",
		DeliveryMode:  amqp.Transient,
		MessageId:     uuid.NewString(),
		CorrelationId: d.EventID,
		Timestamp:     d.DecidedAt,
		Headers: amqp.Table{
			"credential_id": d.CredentialID,
			"reason":        d.Reason,
			"allowed":       d.Allowed,
		},
		Body: []byte(d.Wire()),
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var ch *amqp.Channel
		ch, err = p.channel(ctx)
		if err == nil {
			err = ch.PublishWithContext(ctx, p.exchange, p.topic, false, false, msg)
		}
		if err == nil {
			p.metrics.RecordPublish(true)
			return nil
		}
		if errors.Is(err, errPublisherClosed) || ctx.Err() != nil {
			break
		}
		p.logger.Warnf("bus: publish %s failed: %v", d.Wire(), err)
		p.discard(ch)
	}
	p.metrics.RecordPublish(false)
	return err
}

// channel returns the cached channel, dialling if needed. The dial runs
// without mu held so that a slow broker only delays its own caller.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	p.reset()
	p.mu.Unlock()

	conn, err := dial(ctx, p.url, p.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		_ = conn.Close()
		return nil, errPublisherClosed
	case p.ch != nil && !p.ch.IsClosed():
		// Another publisher dialled first.
		_ = conn.Close()
		return p.ch, nil
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// discard drops ch if it is still the cached channel.
func (p *Publisher) discard(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch != nil && ch == p.ch {
		p.reset()
	}
}

// reset closes the cached connection. Callers hold mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the connection. Later publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}

// declareExchange makes sure a custom exchange exists. Broker built-ins
// (amq.*) may not be redeclared by clients.
func declareExchange(ch *amqp.Channel, name string) error {
	if name == "" || strings.HasPrefix(name, "amq.") {
		return nil
	}
	if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}
