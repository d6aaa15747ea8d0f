package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-gate/internal/model"
)

// GateDecider is satisfied by *gate.Engine.
type GateDecider interface {
	Handle(ctx context.Context, ev model.GateEvent) (model.Decision, error)
}

// DecisionPublisher is satisfied by *queue.Publisher.
type DecisionPublisher interface {
	Publish(ctx context.Context, d model.Decision) error
}

const defaultPublishTimeout = 2 * time.Second

// GateHandler is the HTTP ingestion adapter of the gate engine.
type GateHandler struct {
	engine         GateDecider
	publisher      DecisionPublisher
	publishTimeout time.Duration
}

// NewGateHandler wires the handler. With a non-nil publisher every HTTP
// decision is also sent to the gates over the bus, waiting at most
// publishTimeout (2s when zero) before the response is written.
func NewGateHandler(engine GateDecider, publisher DecisionPublisher, publishTimeout time.Duration) *GateHandler {
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &GateHandler{engine: engine, publisher: publisher, publishTimeout: publishTimeout}
}

// gateEventReq accepts JSON or form bodies. rfid and gate are the field
// names older card readers post.
type gateEventReq struct {
	EventID      string `json:"event_id" form:"event_id"`
	CredentialID string `json:"credential_id" form:"credential_id"`
	Direction    string `json:"direction" form:"direction"`
	OccurredAt   string `json:"occurred_at" form:"occurred_at"`
	RFID         string `json:"rfid" form:"rfid"`
	Gate         string `json:"gate" form:"gate"`
}

// PostEvent handles POST /v1/gate/events. The body is always the decision;
// the status tells allowed (200) from the kind of refusal.
func (h *GateHandler) PostEvent(c echo.Context) error {
	var req gateEventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CredentialID == "" {
		req.CredentialID = req.RFID
	}
	if req.Direction == "" {
		req.Direction = req.Gate
	}

	ev := model.GateEvent{
		ID:           strings.TrimSpace(req.EventID),
		CredentialID: req.CredentialID,
		Direction:    model.Direction(strings.ToLower(strings.TrimSpace(req.Direction))),
		Source:       model.SourceHTTP,
	}
	if ev.ID == "" {
		ev.ID = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if req.OccurredAt != "" {
		at, err := time.Parse(time.RFC3339Nano, req.OccurredAt)
		if err != nil {
			return badRequest(c, "occurred_at must be RFC 3339")
		}
		ev.OccurredAt = at
	}

	ctx := c.Request().Context()
	d, err := h.engine.Handle(ctx, ev)
	// Gates only understand entry and exit commands.
	if h.publisher != nil && d.Direction.Valid() {
		h.publish(ctx, c.Logger(), d)
	}
	return c.JSON(statusOf(err), d)
}

// publish survives the client hanging up but not a stalled broker: the
// decision is already committed and the caller is waiting at the barrier.
func (h *GateHandler) publish(ctx context.Context, logger echo.Logger, d model.Decision) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, d); err != nil {
		logger.Warnf("gate: publishing %s for event %s failed: %v", d.Wire(), d.EventID, err)
	}
}
