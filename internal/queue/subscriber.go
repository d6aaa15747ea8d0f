package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parking-gate/internal/config"
)

// Subscriber consumes sensor and card-reader messages and feeds them to a
// Dispatcher.
type Subscriber struct {
	cfg        config.BusConfig
	dispatcher *Dispatcher
	logger     *log.Logger
}

// NewSubscriber builds a Subscriber; Run starts it.
func NewSubscriber(cfg config.BusConfig, dispatcher *Dispatcher, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.New("bus")
	}
	return &Subscriber{cfg: cfg, dispatcher: dispatcher, logger: logger}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff whenever the broker goes away.
// It returns nil after cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := dial(ctx, s.cfg.URL, s.cfg.DialTimeout)
		if err != nil {
			s.logger.Warnf("bus: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff *= 2; backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}
		backoff = time.Second
		s.logger.Infof("bus: connected, consuming %s and %s", s.cfg.SlotTopic, s.cfg.RFIDTopic)

		err = s.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warnf("bus: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		s.logger.Warnf("bus: set QoS failed: %v", err)
	}
	if err := declareExchange(ch, s.cfg.Exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range []string{s.cfg.SlotTopic, s.cfg.RFIDTopic} {
		if err := ch.QueueBind(s.cfg.Queue, key, s.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("queue bind %s: %w", key, err)
		}
	}

	msgs, err := ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			s.settle(d, s.dispatcher.Dispatch(ctx, Message{
				RoutingKey:  d.RoutingKey,
				Body:        d.Body,
				MessageID:   d.MessageId,
				Timestamp:   d.Timestamp,
				Redelivered: d.Redelivered,
			}))
		}
	}
}

func (s *Subscriber) settle(d amqp.Delivery, action Action) {
	var err error
	switch action {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		s.logger.Warnf("bus: %s of delivery %d failed: %v", action, d.DeliveryTag, err)
	}
}

// sleep waits for d or until ctx ends; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
