package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// SessionRepo reads and writes the `sessions` table. The table carries a
// unique index on a generated column that equals credential_id only while
// exit_time is NULL, so the database itself refuses a second open session.
type SessionRepo struct{ db *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = "id, credential_id, entry_time, exit_time, duration_seconds, amount, payment_status"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.CredentialID, &s.EntryTime, &s.ExitTime, &s.DurationSeconds, &s.Amount, &s.PaymentStatus)
	return s, err
}

// CreateOpen inserts an unpaid session without exit.
func (r *SessionRepo) CreateOpen(ctx context.Context, credentialID string, entry time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (credential_id, entry_time, payment_status) VALUES (?, ?, 'unpaid')",
		credentialID, entry.UTC())
	switch mysqlErrNumber(err) {
	case errDupEntry:
		return 0, repository.ErrConflict
	case errNoReferencedRow:
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestOpen returns the credential's open session.
func (r *SessionRepo) LatestOpen(ctx context.Context, credentialID string) (model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE credential_id = ? AND exit_time IS NULL "+
			"ORDER BY entry_time DESC, id DESC LIMIT 1", credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, repository.ErrNotFound
	}
	return s, err
}

// Close is a compare-and-swap on exit_time IS NULL: of two racing closes
// exactly one matches the row.
func (r *SessionRepo) Close(ctx context.Context, id int64, exit time.Time, durationSeconds, amount int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET exit_time = ?, duration_seconds = ?, amount = ? WHERE id = ? AND exit_time IS NULL",
		exit.UTC(), durationSeconds, amount, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return repository.ErrConflict
}

// MarkPaid locks the session row, flips it to paid and credits the amount
// to the credential balance, all in one transaction.
func (r *SessionRepo) MarkPaid(ctx context.Context, id int64, credentialID string) (model.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, err
	}
	committed := false
	defer rollback(tx, &committed)

	s, err := scanSession(tx.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ? AND credential_id = ? FOR UPDATE",
		id, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	if s.IsOpen() {
		return model.Session{}, repository.ErrNotClosed
	}
	if s.PaymentStatus == model.PaymentPaid {
		return model.Session{}, repository.ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET payment_status = 'paid' WHERE id = ?", id); err != nil {
		return model.Session{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE credentials SET balance = balance + ? WHERE id = ?", s.Amount.Int64, credentialID); err != nil {
		return model.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, err
	}
	committed = true
	s.PaymentStatus = model.PaymentPaid
	return s, nil
}

// ListByCredential returns the credential's sessions, newest entry first.
func (r *SessionRepo) ListByCredential(ctx context.Context, credentialID string) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE credential_id = ? ORDER BY entry_time DESC, id DESC",
		credentialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListWithNames joins every session with its credential name.
func (r *SessionRepo) ListWithNames(ctx context.Context) ([]model.SessionView, error) {
	const q = `SELECT s.id, s.credential_id, s.entry_time, s.exit_time, s.duration_seconds,
                      s.amount, s.payment_status, COALESCE(c.name, '')
               FROM sessions s
               LEFT JOIN credentials c ON c.id = s.credential_id
               ORDER BY s.entry_time DESC, s.id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SessionView{}
	for rows.Next() {
		var v model.SessionView
		if err := rows.Scan(&v.ID, &v.CredentialID, &v.EntryTime, &v.ExitTime, &v.DurationSeconds,
			&v.Amount, &v.PaymentStatus, &v.CredentialName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
