// Package bolt implements repository.Store on an embedded BoltDB file, for a
// gate controller that runs without a database server. Records are stored
// as JSON. Bolt allows one writer at a time, so every check-then-write below
// happens inside a single Update transaction.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"gopkg.in/guregu/null.v4"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

var (
	bucketCredentials  = []byte("credentials")
	bucketSlots        = []byte("slots")
	bucketSessions     = []byte("sessions")
	bucketOpenSessions = []byte("open_sessions") // credential id -> session key
)

// Store wraps a BoltDB database file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCredentials, bucketSlots, bucketSessions, bucketOpenSessions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Credentials() repository.CredentialRepository { return credentialRepo{s} }
func (s *Store) Slots() repository.SlotRepository             { return slotRepo{s} }
func (s *Store) Sessions() repository.SessionRepository       { return sessionRepo{s} }

// Ping succeeds while the file is open.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

func slotKey(id int) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}

func sessionKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func put(b *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

type credentialRepo struct{ s *Store }

func (r credentialRepo) GetByID(_ context.Context, id string) (model.Credential, error) {
	var c model.Credential
	err := r.s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get([]byte(id))
		if v == nil {
			return repository.ErrNotFound
		}
		return json.Unmarshal(v, &c)
	})
	return c, err
}

func (r credentialRepo) List(context.Context) ([]model.Credential, error) {
	out := []model.Credential{}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).ForEach(func(_, v []byte) error {
			var c model.Credential
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func (r credentialRepo) Create(_ context.Context, c model.Credential) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if b.Get([]byte(c.ID)) != nil {
			return repository.ErrDuplicateKey
		}
		c.Balance = 0
		c.CreatedAt = r.s.now().UTC()
		return put(b, []byte(c.ID), c)
	})
}

func (r credentialRepo) Update(_ context.Context, c model.Credential) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		v := b.Get([]byte(c.ID))
		if v == nil {
			return repository.ErrNotFound
		}
		var cur model.Credential
		if err := json.Unmarshal(v, &cur); err != nil {
			return err
		}
		cur.Name = c.Name
		cur.Role = c.Role
		return put(b, []byte(c.ID), cur)
	})
}

func (r credentialRepo) Delete(_ context.Context, id string) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		creds := tx.Bucket(bucketCredentials)
		if creds.Get([]byte(id)) == nil {
			return repository.ErrNotFound
		}
		sessions := tx.Bucket(bucketSessions)
		var doomed [][]byte
		err := sessions.ForEach(func(k, v []byte) error {
			var sess model.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if sess.CredentialID == id {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// Deleting while iterating with ForEach is not allowed.
		for _, k := range doomed {
			if err := sessions.Delete(k); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketOpenSessions).Delete([]byte(id)); err != nil {
			return err
		}
		return creds.Delete([]byte(id))
	})
}

type slotRepo struct{ s *Store }

func (r slotRepo) List(context.Context) ([]model.Slot, error) {
	out := []model.Slot{}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		// Big-endian keys iterate in slot order.
		return tx.Bucket(bucketSlots).ForEach(func(_, v []byte) error {
			var sl model.Slot
			if err := json.Unmarshal(v, &sl); err != nil {
				return err
			}
			out = append(out, sl)
			return nil
		})
	})
	return out, err
}

func (r slotRepo) CountByStatus(ctx context.Context, status model.SlotStatus) (int, error) {
	slots, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sl := range slots {
		if sl.Status == status {
			n++
		}
	}
	return n, nil
}

func (r slotRepo) UpdateStatus(_ context.Context, id int, status model.SlotStatus) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		if b.Get(slotKey(id)) == nil {
			return repository.ErrNotFound
		}
		return put(b, slotKey(id), model.Slot{ID: id, Status: status, UpdatedAt: r.s.now().UTC()})
	})
}

func (r slotRepo) OccupyFirstFree(context.Context) (int, error) {
	var id int
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sl model.Slot
			if err := json.Unmarshal(v, &sl); err != nil {
				return err
			}
			if sl.Status != model.SlotFree {
				continue
			}
			sl.Status = model.SlotOccupied
			sl.UpdatedAt = r.s.now().UTC()
			id = sl.ID
			return put(b, k, sl)
		}
		return repository.ErrNotFound
	})
	return id, err
}

func (r slotRepo) EnsureSlots(_ context.Context, n int) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		for id := 1; id <= n; id++ {
			if b.Get(slotKey(id)) != nil {
				continue
			}
			if err := put(b, slotKey(id), model.Slot{ID: id, Status: model.SlotFree, UpdatedAt: r.s.now().UTC()}); err != nil {
				return err
			}
		}
		return nil
	})
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) CreateOpen(_ context.Context, credentialID string, entry time.Time) (int64, error) {
	var id int64
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCredentials).Get([]byte(credentialID)) == nil {
			return repository.ErrNotFound
		}
		open := tx.Bucket(bucketOpenSessions)
		if open.Get([]byte(credentialID)) != nil {
			return repository.ErrConflict
		}
		sessions := tx.Bucket(bucketSessions)
		seq, err := sessions.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		sess := model.Session{
			ID:            id,
			CredentialID:  credentialID,
			EntryTime:     entry.UTC(),
			PaymentStatus: model.PaymentUnpaid,
		}
		if err := put(sessions, sessionKey(id), sess); err != nil {
			return err
		}
		return open.Put([]byte(credentialID), sessionKey(id))
	})
	return id, err
}

func (r sessionRepo) LatestOpen(_ context.Context, credentialID string) (model.Session, error) {
	var sess model.Session
	err := r.s.db.View(func(tx *bolt.Tx) error {
		k := tx.Bucket(bucketOpenSessions).Get([]byte(credentialID))
		if k == nil {
			return repository.ErrNotFound
		}
		v := tx.Bucket(bucketSessions).Get(k)
		if v == nil {
			return repository.ErrNotFound
		}
		return json.Unmarshal(v, &sess)
	})
	return sess, err
}

func (r sessionRepo) Close(_ context.Context, id int64, exit time.Time, durationSeconds, amount int64) error {
	return r.s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		v := sessions.Get(sessionKey(id))
		if v == nil {
			return repository.ErrNotFound
		}
		var sess model.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		if !sess.IsOpen() {
			return repository.ErrConflict
		}
		sess.ExitTime = null.TimeFrom(exit.UTC())
		sess.DurationSeconds = null.IntFrom(durationSeconds)
		sess.Amount = null.IntFrom(amount)
		if err := put(sessions, sessionKey(id), sess); err != nil {
			return err
		}
		return tx.Bucket(bucketOpenSessions).Delete([]byte(sess.CredentialID))
	})
}

func (r sessionRepo) MarkPaid(_ context.Context, id int64, credentialID string) (model.Session, error) {
	var sess model.Session
	err := r.s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		v := sessions.Get(sessionKey(id))
		if v == nil {
			return repository.ErrNotFound
		}
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		if sess.CredentialID != credentialID {
			return repository.ErrNotFound
		}
		if sess.IsOpen() {
			return repository.ErrNotClosed
		}
		if sess.PaymentStatus == model.PaymentPaid {
			return repository.ErrConflict
		}
		sess.PaymentStatus = model.PaymentPaid
		if err := put(sessions, sessionKey(id), sess); err != nil {
			return err
		}

		creds := tx.Bucket(bucketCredentials)
		cv := creds.Get([]byte(credentialID))
		if cv == nil {
			return nil
		}
		var c model.Credential
		if err := json.Unmarshal(cv, &c); err != nil {
			return err
		}
		c.Balance += sess.Amount.Int64
		return put(creds, []byte(credentialID), c)
	})
	if err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (r sessionRepo) ListByCredential(_ context.Context, credentialID string) ([]model.Session, error) {
	out := []model.Session{}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var sess model.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if sess.CredentialID == credentialID {
				out = append(out, sess)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, err
}

func (r sessionRepo) ListWithNames(context.Context) ([]model.SessionView, error) {
	out := []model.SessionView{}
	err := r.s.db.View(func(tx *bolt.Tx) error {
		creds := tx.Bucket(bucketCredentials)
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var view model.SessionView
			if err := json.Unmarshal(v, &view.Session); err != nil {
				return err
			}
			if cv := creds.Get([]byte(view.CredentialID)); cv != nil {
				var c model.Credential
				if err := json.Unmarshal(cv, &c); err != nil {
					return err
				}
				view.CredentialName = c.Name
			}
			out = append(out, view)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return newer(out[i].Session, out[j].Session) })
	return out, err
}

func newer(a, b model.Session) bool {
	if !a.EntryTime.Equal(b.EntryTime) {
		return a.EntryTime.After(b.EntryTime)
	}
	return a.ID > b.ID
}
