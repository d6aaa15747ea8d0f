// Package gate turns entry and exit events into gate commands. It is the
// only place that coordinates the slot registry and the session ledger; both
// ingestion adapters (HTTP and the bus) hand their events to one Engine.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-gate/internal/billing"
	"github.com/iliyamo/parking-gate/internal/ledger"
	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// Credentials resolves a presented RFID to its registration.
type Credentials interface {
	GetByID(ctx context.Context, id string) (model.Credential, error)
}

// SlotRegistry is the part of slot.Registry the engine needs.
type SlotRegistry interface {
	HasFreeSlot(ctx context.Context) (bool, error)
	Occupy(ctx context.Context) (int, error)
}

// SessionLedger is the part of ledger.Ledger the engine needs.
type SessionLedger interface {
	Open(ctx context.Context, credentialID string, at time.Time) (int64, error)
	Close(ctx context.Context, credentialID string, at time.Time) (ledger.Closed, error)
	IsParked(ctx context.Context, credentialID string) (bool, error)
}

// Options tunes an Engine.
type Options struct {
	// OccupyOnEntry marks a free slot occupied as part of an accepted entry,
	// so the capacity check sees the car before its slot sensor reports.
	OccupyOnEntry bool
	// Timeout bounds the store work of one event. Zero means no bound.
	Timeout time.Duration
	Now     func() time.Time
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Engine is safe for concurrent use.
type Engine struct {
	credentials   Credentials
	slots         SlotRegistry
	sessions      SessionLedger
	occupyOnEntry bool
	timeout       time.Duration
	now           func() time.Time
	logger        *log.Logger
	metrics       *metrics.Metrics
}

// NewEngine wires an Engine.
func NewEngine(credentials Credentials, slots SlotRegistry, sessions SessionLedger, opts Options) *Engine {
	e := &Engine{
		credentials:   credentials,
		slots:         slots,
		sessions:      sessions,
		occupyOnEntry: opts.OccupyOnEntry,
		timeout:       opts.Timeout,
		now:           opts.Now,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = log.New("gate")
	}
	return e
}

// Handle decides one gate event. The returned Decision is always usable:
// on any error it carries a deny command, so the physical gate never opens
// by default. err is nil exactly when the decision allows passage.
//
// The work is detached from ctx cancellation so that a client hanging up
// cannot interrupt a transition halfway; the engine timeout still bounds it.
func (e *Engine) Handle(ctx context.Context, ev model.GateEvent) (model.Decision, error) {
	start := e.now()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = start
	}
	ev.CredentialID = strings.TrimSpace(ev.CredentialID)

	ctx = context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	d := model.Decision{
		EventID:      ev.ID,
		CredentialID: ev.CredentialID,
		Direction:    ev.Direction,
	}
	var err error
	switch ev.Direction {
	case model.DirectionEntry:
		err = e.entry(ctx, ev, &d)
	case model.DirectionExit:
		err = e.exit(ctx, ev, &d)
	default:
		err = parking.ErrInvalidEvent
	}

	d.Reason = parking.Code(err)
	d.DecidedAt = e.now().UTC()
	if err != nil {
		d.Allowed = false
		d.Command = denyCommand(err)
		d.Message = denyMessage(err)
		d.SessionID, d.SlotID, d.DurationSeconds, d.Duration, d.Amount = 0, 0, 0, "", 0
	} else {
		d.Allowed = true
		d.Command = model.CommandOpen
	}

	e.metrics.RecordDecision(string(ev.Direction), d.Reason, string(ev.Source), e.now().Sub(start))
	e.logDecision(ev, d, err)
	return d, err
}

func (e *Engine) entry(ctx context.Context, ev model.GateEvent, d *model.Decision) error {
	c, err := e.resolve(ctx, ev.CredentialID)
	if err != nil {
		return err
	}
	if c.Role == model.RoleOwner {
		return parking.ErrOwnerNotPermitted
	}

	free, err := e.slots.HasFreeSlot(ctx)
	if err != nil {
		return err
	}
	if !free {
		// A parked credential re-reading its card at a full facility is a
		// duplicate, not a capacity problem.
		parked, err := e.sessions.IsParked(ctx, ev.CredentialID)
		if err != nil {
			return err
		}
		if parked {
			return parking.ErrDuplicateEntry
		}
		return parking.ErrFacilityFull
	}

	id, err := e.sessions.Open(ctx, ev.CredentialID, ev.OccurredAt)
	if errors.Is(err, parking.ErrSessionAlreadyOpen) {
		return parking.ErrDuplicateEntry
	}
	if err != nil {
		return err
	}
	d.SessionID = id
	d.Message = "Entry granted"

	if e.occupyOnEntry {
		slotID, err := e.slots.Occupy(ctx)
		if err != nil {
			// The session is already open and the car is at the barrier;
			// the slot sensor will reconcile occupancy.
			e.logger.Warnf("entry %s: session %d opened but no slot occupied: %v", ev.CredentialID, id, err)
		} else {
			d.SlotID = slotID
		}
	}
	return nil
}

func (e *Engine) exit(ctx context.Context, ev model.GateEvent, d *model.Decision) error {
	// Role is not checked on exit: a card switched to owner while parked
	// must still be able to leave.
	if _, err := e.resolve(ctx, ev.CredentialID); err != nil {
		return err
	}

	closed, err := e.sessions.Close(ctx, ev.CredentialID, ev.OccurredAt)
	if errors.Is(err, parking.ErrNoOpenSession) {
		return parking.ErrNoActiveSession
	}
	if err != nil {
		return err
	}
	d.SessionID = closed.SessionID
	d.DurationSeconds = closed.DurationSeconds
	d.Duration = billing.FormatDuration(closed.DurationSeconds)
	d.Amount = closed.Amount
	d.Message = fmt.Sprintf("Exit granted. Duration: %s, charge: %d", d.Duration, d.Amount)
	return nil
}

func (e *Engine) resolve(ctx context.Context, id string) (model.Credential, error) {
	if id == "" {
		return model.Credential{}, parking.ErrUnknownCredential
	}
	c, err := e.credentials.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Credential{}, parking.ErrUnknownCredential
	}
	if err != nil {
		return model.Credential{}, parking.Unavailable(err)
	}
	return c, nil
}

func denyCommand(err error) string {
	if errors.Is(err, parking.ErrFacilityFull) {
		return model.CommandFull
	}
	return model.CommandUnauthorized
}

func denyMessage(err error) string {
	switch {
	case errors.Is(err, parking.ErrFacilityFull):
		return "Parking full"
	case errors.Is(err, parking.ErrDuplicateEntry):
		return "Already parked"
	case errors.Is(err, parking.ErrNoActiveSession):
		return "No active parking session"
	case errors.Is(err, parking.ErrOwnerNotPermitted):
		return "Owner card cannot be used for parking"
	case errors.Is(err, parking.ErrStoreUnavailable):
		return "Service unavailable, try again"
	default:
		return "Unauthorized"
	}
}

func (e *Engine) logDecision(ev model.GateEvent, d model.Decision, err error) {
	entry := log.JSON{
		"event":      "gate_decision",
		"event_id":   ev.ID,
		"credential": ev.CredentialID,
		"direction":  ev.Direction,
		"source":     ev.Source,
		"command":    d.Wire(),
		"reason":     d.Reason,
	}
	if d.SessionID != 0 {
		entry["session_id"] = d.SessionID
	}
	if d.Amount != 0 {
		entry["amount"] = d.Amount
	}
	if parking.IsRetryable(err) || (err != nil && !parking.IsKnown(err)) {
		entry["error"] = err.Error()
		e.logger.Errorj(entry)
		return
	}
	e.logger.Infoj(entry)
}
