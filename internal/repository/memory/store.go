// Package memory is an in-process implementation of repository.Store used by
// tests and by single-node demos (STORE_DRIVER=memory). Nothing survives a
// restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// Store keeps the three relations in maps guarded by one RWMutex. Every
// method holds the lock for a few map operations only.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]model.Credential
	slots       map[int]model.Slot
	sessions    map[int64]model.Session
	nextID      int64
	now         func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		credentials: make(map[string]model.Credential),
		slots:       make(map[int]model.Slot),
		sessions:    make(map[int64]model.Session),
		now:         time.Now,
	}
}

func (s *Store) Credentials() repository.CredentialRepository { return credentialRepo{s} }
func (s *Store) Slots() repository.SlotRepository             { return slotRepo{s} }
func (s *Store) Sessions() repository.SessionRepository       { return sessionRepo{s} }
func (s *Store) Ping(context.Context) error                   { return nil }
func (s *Store) Close() error                                 { return nil }

type credentialRepo struct{ s *Store }

func (r credentialRepo) GetByID(_ context.Context, id string) (model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.credentials[id]
	if !ok {
		return model.Credential{}, repository.ErrNotFound
	}
	return c, nil
}

func (r credentialRepo) List(context.Context) ([]model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Credential, 0, len(r.s.credentials))
	for _, c := range r.s.credentials {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r credentialRepo) Create(_ context.Context, c model.Credential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.credentials[c.ID]; ok {
		return repository.ErrDuplicateKey
	}
	c.Balance = 0
	c.CreatedAt = r.s.now().UTC()
	r.s.credentials[c.ID] = c
	return nil
}

func (r credentialRepo) Update(_ context.Context, c model.Credential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.credentials[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name = c.Name
	cur.Role = c.Role
	r.s.credentials[c.ID] = cur
	return nil
}

func (r credentialRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.credentials[id]; !ok {
		return repository.ErrNotFound
	}
	for sid, sess := range r.s.sessions {
		if sess.CredentialID == id {
			delete(r.s.sessions, sid)
		}
	}
	delete(r.s.credentials, id)
	return nil
}

type slotRepo struct{ s *Store }

func (r slotRepo) List(context.Context) ([]model.Slot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Slot, 0, len(r.s.slots))
	for _, sl := range r.s.slots {
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r slotRepo) CountByStatus(_ context.Context, status model.SlotStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, sl := range r.s.slots {
		if sl.Status == status {
			n++
		}
	}
	return n, nil
}

func (r slotRepo) UpdateStatus(_ context.Context, id int, status model.SlotStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sl, ok := r.s.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	sl.Status = status
	sl.UpdatedAt = r.s.now().UTC()
	r.s.slots[id] = sl
	return nil
}

func (r slotRepo) OccupyFirstFree(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	best := 0
	for id, sl := range r.s.slots {
		if sl.Status == model.SlotFree && (best == 0 || id < best) {
			best = id
		}
	}
	if best == 0 {
		return 0, repository.ErrNotFound
	}
	sl := r.s.slots[best]
	sl.Status = model.SlotOccupied
	sl.UpdatedAt = r.s.now().UTC()
	r.s.slots[best] = sl
	return best, nil
}

func (r slotRepo) EnsureSlots(_ context.Context, n int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id := 1; id <= n; id++ {
		if _, ok := r.s.slots[id]; !ok {
			r.s.slots[id] = model.Slot{ID: id, Status: model.SlotFree, UpdatedAt: r.s.now().UTC()}
		}
	}
	return nil
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) CreateOpen(_ context.Context, credentialID string, entry time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.credentials[credentialID]; !ok {
		return 0, repository.ErrNotFound
	}
	for _, sess := range r.s.sessions {
		if sess.CredentialID == credentialID && sess.IsOpen() {
			return 0, repository.ErrConflict
		}
	}
	r.s.nextID++
	r.s.sessions[r.s.nextID] = model.Session{
		ID:            r.s.nextID,
		CredentialID:  credentialID,
		EntryTime:     entry,
		PaymentStatus: model.PaymentUnpaid,
	}
	return r.s.nextID, nil
}

func (r sessionRepo) LatestOpen(_ context.Context, credentialID string) (model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		best  model.Session
		found bool
	)
	for _, sess := range r.s.sessions {
		if sess.CredentialID != credentialID || !sess.IsOpen() {
			continue
		}
		if !found || newer(sess, best) {
			best, found = sess, true
		}
	}
	if !found {
		return model.Session{}, repository.ErrNotFound
	}
	return best, nil
}

func (r sessionRepo) Close(_ context.Context, id int64, exit time.Time, durationSeconds, amount int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !sess.IsOpen() {
		return repository.ErrConflict
	}
	sess.ExitTime = null.TimeFrom(exit)
	sess.DurationSeconds = null.IntFrom(durationSeconds)
	sess.Amount = null.IntFrom(amount)
	r.s.sessions[id] = sess
	return nil
}

func (r sessionRepo) MarkPaid(_ context.Context, id int64, credentialID string) (model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.CredentialID != credentialID {
		return model.Session{}, repository.ErrNotFound
	}
	if sess.IsOpen() {
		return model.Session{}, repository.ErrNotClosed
	}
	if sess.PaymentStatus == model.PaymentPaid {
		return model.Session{}, repository.ErrConflict
	}
	sess.PaymentStatus = model.PaymentPaid
	r.s.sessions[id] = sess
	if c, ok := r.s.credentials[credentialID]; ok {
		c.Balance += sess.Amount.Int64
		r.s.credentials[credentialID] = c
	}
	return sess, nil
}

func (r sessionRepo) ListByCredential(_ context.Context, credentialID string) ([]model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.Session{}
	for _, sess := range r.s.sessions {
		if sess.CredentialID == credentialID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (r sessionRepo) ListWithNames(context.Context) ([]model.SessionView, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.SessionView, 0, len(r.s.sessions))
	for _, sess := range r.s.sessions {
		out = append(out, model.SessionView{Session: sess, CredentialName: r.s.credentials[sess.CredentialID].Name})
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].Session, out[j].Session) })
	return out, nil
}

// newer orders sessions by entry time, then id, both descending.
func newer(a, b model.Session) bool {
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.After(b.EntryTime)
	}
	return a.ID > b.ID
}
