package repository

import (
	"context"
	"time"

	"github.com/iliyamo/parking-gate/internal/model"
)

// CredentialRepository manages the `credentials` relation.
type CredentialRepository interface {
	GetByID(ctx context.Context, id string) (model.Credential, error)
	List(ctx context.Context) ([]model.Credential, error)
	Create(ctx context.Context, c model.Credential) error
	// Update changes name and role; balance is only touched by MarkPaid.
	Update(ctx context.Context, c model.Credential) error
	// Delete removes the credential together with all of its sessions.
	Delete(ctx context.Context, id string) error
}

// SlotRepository manages the `slots` relation. Every method is a single
// atomic write or read; different slots never contend.
type SlotRepository interface {
	List(ctx context.Context) ([]model.Slot, error)
	CountByStatus(ctx context.Context, status model.SlotStatus) (int, error)
	// UpdateStatus sets the status of one slot, ErrNotFound if the slot was
	// never provisioned. Writing the current value again succeeds.
	UpdateStatus(ctx context.Context, id int, status model.SlotStatus) error
	// OccupyFirstFree marks the lowest numbered free slot occupied and
	// returns its id, or ErrNotFound when every slot is occupied.
	OccupyFirstFree(ctx context.Context) (int, error)
	// EnsureSlots provisions slots 1..n as free, leaving existing rows alone.
	EnsureSlots(ctx context.Context, n int) error
}

// SessionRepository manages the `sessions` relation.
type SessionRepository interface {
	// CreateOpen inserts an open session. ErrConflict when the credential
	// already has one open, ErrNotFound when the credential does not exist.
	CreateOpen(ctx context.Context, credentialID string, entry time.Time) (int64, error)
	// LatestOpen returns the open session with the highest entry time (then
	// highest id) for the credential, ErrNotFound when there is none.
	LatestOpen(ctx context.Context, credentialID string) (model.Session, error)
	// Close writes exit, duration and amount in one conditional update.
	// ErrConflict when the session is no longer open.
	Close(ctx context.Context, id int64, exit time.Time, durationSeconds, amount int64) error
	// MarkPaid flips an unpaid closed session to paid and adds its amount to
	// the credential balance in the same transaction.
	MarkPaid(ctx context.Context, id int64, credentialID string) (model.Session, error)
	// ListByCredential returns the credential's sessions, newest entry first.
	ListByCredential(ctx context.Context, credentialID string) ([]model.Session, error)
	// ListWithNames returns every session joined with its credential name,
	// newest entry first.
	ListWithNames(ctx context.Context) ([]model.SessionView, error)
}

// Store bundles the three relations behind one handle so that a storage
// engine is chosen once at startup and injected everywhere.
type Store interface {
	Credentials() CredentialRepository
	Slots() SlotRepository
	Sessions() SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
