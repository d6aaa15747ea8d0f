// Package ledger owns the lifecycle of parking sessions: open on entry,
// priced and closed on exit, paid afterwards. Every mutation for one
// credential runs under that credential's lock and ends in a single atomic
// store write, so a failure never leaves a half-closed session behind.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-gate/internal/billing"
	"github.com/iliyamo/parking-gate/internal/lock"
	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/parking"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// Closed describes a session the moment it was closed.
type Closed struct {
	SessionID       int64
	EntryTime       time.Time
	ExitTime        time.Time
	DurationSeconds int64
	Amount          int64
}

// Statement is a credential's account overview: its sessions split by
// payment status and the totals of each side.
type Statement struct {
	Credential  model.Credential    `json:"credential"`
	Active      *model.SessionView  `json:"active,omitempty"`
	Unpaid      []model.SessionView `json:"unpaid"`
	Paid        []model.SessionView `json:"paid"`
	UnpaidTotal int64               `json:"unpaid_total"`
	PaidTotal   int64               `json:"paid_total"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	sessions    repository.SessionRepository
	credentials repository.CredentialRepository
	locker      lock.Locker
	policy      billing.Policy
	timeout     time.Duration
	logger      *log.Logger
	metrics     *metrics.Metrics
}

// Options configures a Ledger. Zero values fall back to an in-process
// locker, the default tariff and no store timeout.
type Options struct {
	Locker  lock.Locker
	Policy  billing.Policy
	Timeout time.Duration
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// New builds a Ledger over the given store.
func New(store repository.Store, opts Options) *Ledger {
	l := &Ledger{
		sessions:    store.Sessions(),
		credentials: store.Credentials(),
		locker:      opts.Locker,
		policy:      opts.Policy,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if l.locker == nil {
		l.locker = lock.NewKeyedMutex()
	}
	if l.policy.RatePerHour <= 0 {
		l.policy = billing.NewPolicy(billing.DefaultRatePerHour)
	}
	if l.logger == nil {
		l.logger = log.New("ledger")
	}
	return l
}

// Policy returns the tariff used to price closed sessions.
func (l *Ledger) Policy() billing.Policy { return l.policy }

// Stored timestamps carry millisecond precision; truncating up front keeps
// in-memory and persisted values identical.
func normalize(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func (l *Ledger) begin(ctx context.Context, credentialID string) (context.Context, func(), error) {
	cancel := func() {}
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	unlock, err := l.locker.Lock(ctx, "credential:"+credentialID)
	if err != nil {
		cancel()
		return nil, nil, parking.Unavailable(err)
	}
	return ctx, func() { unlock(); cancel() }, nil
}

// Open starts a session for credentialID at the given time.
// ErrSessionAlreadyOpen if one is already open, ErrUnknownCredential if the
// credential is not registered.
func (l *Ledger) Open(ctx context.Context, credentialID string, at time.Time) (int64, error) {
	ctx, done, err := l.begin(ctx, credentialID)
	if err != nil {
		return 0, err
	}
	defer done()

	id, err := l.sessions.CreateOpen(ctx, credentialID, normalize(at))
	switch {
	case errors.Is(err, repository.ErrConflict):
		return 0, parking.ErrSessionAlreadyOpen
	case errors.Is(err, repository.ErrNotFound):
		return 0, parking.ErrUnknownCredential
	case err != nil:
		return 0, parking.Unavailable(err)
	}
	l.logger.Debugf("session %d opened for %s", id, credentialID)
	return id, nil
}

// Close ends the credential's open session at the given time and fixes its
// amount. With several open sessions (legacy data) the one with the latest
// entry is closed. ErrNoOpenSession if there is none, ErrClockSkew if at
// precedes the entry.
func (l *Ledger) Close(ctx context.Context, credentialID string, at time.Time) (Closed, error) {
	ctx, done, err := l.begin(ctx, credentialID)
	if err != nil {
		return Closed{}, err
	}
	defer done()

	open, err := l.sessions.LatestOpen(ctx, credentialID)
	if errors.Is(err, repository.ErrNotFound) {
		return Closed{}, parking.ErrNoOpenSession
	}
	if err != nil {
		return Closed{}, parking.Unavailable(err)
	}

	exit := normalize(at)
	if exit.Before(open.EntryTime) {
		return Closed{}, parking.ErrClockSkew
	}
	elapsed := int64(exit.Sub(open.EntryTime) / time.Second)
	amount := l.policy.Charge(elapsed)

	err = l.sessions.Close(ctx, open.ID, exit, elapsed, amount)
	switch {
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
		// Closed by another writer after we read it.
		return Closed{}, parking.ErrNoOpenSession
	case err != nil:
		return Closed{}, parking.Unavailable(err)
	}
	return Closed{
		SessionID:       open.ID,
		EntryTime:       open.EntryTime,
		ExitTime:        exit,
		DurationSeconds: elapsed,
		Amount:          amount,
	}, nil
}

// MarkPaid records payment of a closed session by its owning credential and
// credits the amount to the credential balance. ErrNotFound if the session
// does not exist or belongs to someone else, ErrSessionNotClosed while it is
// open, ErrAlreadyPaid on repetition.
func (l *Ledger) MarkPaid(ctx context.Context, sessionID int64, credentialID string) (model.Session, error) {
	ctx, done, err := l.begin(ctx, credentialID)
	if err != nil {
		return model.Session{}, err
	}
	defer done()

	sess, err := l.sessions.MarkPaid(ctx, sessionID, credentialID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		err = parking.ErrNotFound
	case errors.Is(err, repository.ErrNotClosed):
		err = parking.ErrSessionNotClosed
	case errors.Is(err, repository.ErrConflict):
		err = parking.ErrAlreadyPaid
	case err != nil:
		err = parking.Unavailable(err)
	}
	l.metrics.RecordPayment(parking.Code(err))
	if err != nil {
		return model.Session{}, err
	}
	l.logger.Infof("session %d paid by %s: %d", sessionID, credentialID, sess.Amount.Int64)
	return sess, nil
}

// ListFor returns the credential's sessions, newest entry first.
func (l *Ledger) ListFor(ctx context.Context, credentialID string) ([]model.Session, error) {
	ctx, cancel := l.readContext(ctx)
	defer cancel()
	list, err := l.sessions.ListByCredential(ctx, credentialID)
	if err != nil {
		return nil, parking.Unavailable(err)
	}
	return list, nil
}

// ListAll returns every session with its credential name and a readable
// duration, newest entry first.
func (l *Ledger) ListAll(ctx context.Context) ([]model.SessionView, error) {
	ctx, cancel := l.readContext(ctx)
	defer cancel()
	views, err := l.sessions.ListWithNames(ctx)
	if err != nil {
		return nil, parking.Unavailable(err)
	}
	for i := range views {
		views[i].Duration = durationText(views[i].Session)
	}
	return views, nil
}

// Statement builds the account overview of credentialID.
func (l *Ledger) Statement(ctx context.Context, credentialID string) (Statement, error) {
	ctx, cancel := l.readContext(ctx)
	defer cancel()

	cred, err := l.credentials.GetByID(ctx, credentialID)
	if errors.Is(err, repository.ErrNotFound) {
		return Statement{}, parking.ErrUnknownCredential
	}
	if err != nil {
		return Statement{}, parking.Unavailable(err)
	}
	list, err := l.sessions.ListByCredential(ctx, credentialID)
	if err != nil {
		return Statement{}, parking.Unavailable(err)
	}

	st := Statement{Credential: cred, Unpaid: []model.SessionView{}, Paid: []model.SessionView{}}
	for _, s := range list {
		v := model.SessionView{Session: s, CredentialName: cred.Name, Duration: durationText(s)}
		switch {
		case s.IsOpen():
			if st.Active == nil {
				active := v
				st.Active = &active
			}
		case s.PaymentStatus == model.PaymentPaid:
			st.Paid = append(st.Paid, v)
			st.PaidTotal += s.Amount.Int64
		default:
			st.Unpaid = append(st.Unpaid, v)
			st.UnpaidTotal += s.Amount.Int64
		}
	}
	return st, nil
}

func (l *Ledger) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

func durationText(s model.Session) string {
	if !s.DurationSeconds.Valid {
		return ""
	}
	return billing.FormatDuration(s.DurationSeconds.Int64)
}

// IsParked reports whether credentialID has an open session.
func (l *Ledger) IsParked(ctx context.Context, credentialID string) (bool, error) {
	ctx, cancel := l.readContext(ctx)
	defer cancel()
	_, err := l.sessions.LatestOpen(ctx, credentialID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, parking.Unavailable(err)
	}
	return true, nil
}
