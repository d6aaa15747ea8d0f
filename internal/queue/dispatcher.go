package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
)

// GateHandler decides credential events; *gate.Engine satisfies it.
type GateHandler interface {
	Handle(ctx context.Context, ev model.GateEvent) (model.Decision, error)
}

// SlotSetter applies sensor reports; *slot.Registry satisfies it.
type SlotSetter interface {
	Capacity() int
	SetStatus(ctx context.Context, slotID int, status model.SlotStatus) error
}

// DecisionPublisher sends a gate command back to the devices.
type DecisionPublisher interface {
	Publish(ctx context.Context, d model.Decision) error
}

// Action tells the subscriber how to settle a delivery.
type Action int

const (
	// Ack removes the message from the queue.
	Ack Action = iota
	// Requeue hands the message back to the broker for one more attempt.
	Requeue
	// Drop rejects the message without requeueing it.
	Drop
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "drop"
	}
}

// Message is the broker-independent part of a delivery.
type Message struct {
	RoutingKey  string
	Body        []byte
	MessageID   string
	Timestamp   time.Time
	Redelivered bool
}

// Dispatcher routes bus messages by topic. It holds no broker state, so the
// subscriber loop and tests share it.
type Dispatcher struct {
	gate      GateHandler
	slots     SlotSetter
	publisher DecisionPublisher
	slotTopic string
	rfidTopic string
	now       func() time.Time
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher wires a Dispatcher. publisher may be nil, in which case
// decisions are only logged.
func NewDispatcher(gate GateHandler, slots SlotSetter, publisher DecisionPublisher, slotTopic, rfidTopic string, logger *log.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = log.New("bus")
	}
	return &Dispatcher{
		gate:      gate,
		slots:     slots,
		publisher: publisher,
		slotTopic: slotTopic,
		rfidTopic: rfidTopic,
		now:       time.Now,
		logger:    logger,
		metrics:   m,
	}
}

// Dispatch processes one message and reports how it should be settled.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Action {
	switch msg.RoutingKey {
	case d.slotTopic:
		return d.slotUpdate(ctx, msg)
	case d.rfidTopic:
		return d.credentialEvent(ctx, msg)
	default:
		d.logger.Warnf("bus: no handler for routing key %q", msg.RoutingKey)
		d.metrics.RecordBusMessage(msg.RoutingKey, "unroutable")
		return Drop
	}
}

func (d *Dispatcher) slotUpdate(ctx context.Context, msg Message) Action {
	u, err := ParseSlotUpdate(msg.Body, d.slots.Capacity())
	if err != nil {
		d.logger.Warnf("bus: slot update dropped: %v", err)
		d.metrics.RecordBusMessage(msg.RoutingKey, "malformed")
		return Drop
	}

	err = d.slots.SetStatus(ctx, u.SlotID, u.Status)
	switch {
	case err == nil:
		d.metrics.RecordBusMessage(msg.RoutingKey, "ok")
		return Ack
	case parking.IsRetryable(err) && !msg.Redelivered:
		d.logger.Warnf("bus: slot %d -> %s failed, requeueing: %v", u.SlotID, u.Status, err)
		d.metrics.RecordBusMessage(msg.RoutingKey, "requeued")
		return Requeue
	case errors.Is(err, parking.ErrUnknownSlot), errors.Is(err, parking.ErrInvalidSlotStatus):
		d.logger.Warnf("bus: slot update dropped: %v", err)
		d.metrics.RecordBusMessage(msg.RoutingKey, "malformed")
		return Drop
	default:
		d.logger.Errorj(log.JSON{
			"event":  "slot_update_failed",
			"slot":   u.SlotID,
			"status": u.Status,
			"error":  err.Error(),
		})
		d.metrics.RecordBusMessage(msg.RoutingKey, "failed")
		return Drop
	}
}

// credentialEvent always settles with Ack once the payload parses. A
// redelivered entry would be answered as a duplicate, so a retry after a
// lost command would turn an open gate into a refusal.
func (d *Dispatcher) credentialEvent(ctx context.Context, msg Message) Action {
	dir, credentialID, err := ParseCredentialEvent(msg.Body)
	if err != nil {
		d.logger.Warnf("bus: credential event dropped: %v", err)
		d.metrics.RecordBusMessage(msg.RoutingKey, "malformed")
		return Drop
	}

	ev := model.GateEvent{
		ID:           msg.MessageID,
		CredentialID: credentialID,
		Direction:    dir,
		OccurredAt:   msg.Timestamp,
		Source:       model.SourceBus,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now()
	}

	decision, _ := d.gate.Handle(ctx, ev)
	result := "ok"
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, decision); err != nil {
			d.logger.Errorf("bus: command %s for event %s not delivered: %v", decision.Wire(), ev.ID, err)
			result = "publish_failed"
		}
	}
	d.metrics.RecordBusMessage(msg.RoutingKey, result)
	return Ack
}
