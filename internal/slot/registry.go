// Package slot tracks the occupancy of the facility's fixed set of slots.
package slot

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// Registry answers "is there room?" from the persisted slot relation and
// applies status reports from sensors and the operator. It holds no state of
// its own besides the configured capacity.
type Registry struct {
	repo     repository.SlotRepository
	capacity int
	timeout  time.Duration
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// NewRegistry binds a registry to repo. capacity is the number of slots
// provisioned as 1..capacity. timeout bounds every store call when > 0.
func NewRegistry(repo repository.SlotRepository, capacity int, timeout time.Duration, logger *log.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = log.New("slot")
	}
	return &Registry{repo: repo, capacity: capacity, timeout: timeout, logger: logger, metrics: m}
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Capacity returns the fixed number of slots.
func (r *Registry) Capacity() int { return r.capacity }

// Provision creates slots 1..Capacity as free if they do not exist yet.
func (r *Registry) Provision(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.repo.EnsureSlots(ctx, r.capacity); err != nil {
		return parking.Unavailable(err)
	}
	r.refreshGauge(ctx)
	return nil
}

// OccupiedCount returns the number of slots currently marked occupied.
func (r *Registry) OccupiedCount(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.repo.CountByStatus(ctx, model.SlotOccupied)
	if err != nil {
		return 0, parking.Unavailable(err)
	}
	return n, nil
}

// HasFreeSlot reports whether OccupiedCount is below Capacity.
func (r *Registry) HasFreeSlot(ctx context.Context) (bool, error) {
	n, err := r.OccupiedCount(ctx)
	if err != nil {
		return false, err
	}
	return n < r.capacity, nil
}

// SetStatus records the status of one slot. Repeating the current status is
// a successful no-op.
func (r *Registry) SetStatus(ctx context.Context, slotID int, status model.SlotStatus) error {
	if slotID < 1 || slotID > r.capacity {
		return parking.ErrUnknownSlot
	}
	if !status.Valid() {
		return parking.ErrInvalidSlotStatus
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.repo.UpdateStatus(ctx, slotID, status)
	if errors.Is(err, repository.ErrNotFound) {
		return parking.ErrUnknownSlot
	}
	if err != nil {
		return parking.Unavailable(err)
	}
	r.logger.Debugf("slot %d -> %s", slotID, status)
	r.refreshGauge(ctx)
	return nil
}

// Occupy marks the lowest numbered free slot occupied and returns its id.
// ErrFacilityFull when none is free.
func (r *Registry) Occupy(ctx context.Context) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := r.repo.OccupyFirstFree(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, parking.ErrFacilityFull
	}
	if err != nil {
		return 0, parking.Unavailable(err)
	}
	r.refreshGauge(ctx)
	return id, nil
}

// List returns every slot in id order.
func (r *Registry) List(ctx context.Context) ([]model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	slots, err := r.repo.List(ctx)
	if err != nil {
		return nil, parking.Unavailable(err)
	}
	return slots, nil
}

func (r *Registry) refreshGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	n, err := r.repo.CountByStatus(ctx, model.SlotOccupied)
	if err != nil {
		r.logger.Warnf("occupancy gauge: %v", err)
		return
	}
	r.metrics.SetOccupancy(n, r.capacity)
}
