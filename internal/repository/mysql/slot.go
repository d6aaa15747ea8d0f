package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// SlotRepo reads and writes the `slots` table. Each status write is a
// single-row statement, so different slots never contend.
type SlotRepo struct{ db *sql.DB }

func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// List returns all slots ordered by slot_id.
func (r *SlotRepo) List(ctx context.Context) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT slot_id, status, updated_at FROM slots ORDER BY slot_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Slot{}
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.Status, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountByStatus counts the slots currently in status.
func (r *SlotRepo) CountByStatus(ctx context.Context, status model.SlotStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slots WHERE status = ?", string(status)).Scan(&n)
	return n, err
}

// UpdateStatus overwrites the status of one slot.
func (r *SlotRepo) UpdateStatus(ctx context.Context, id int, status model.SlotStatus) error {
	res, err := r.db.ExecContext(ctx, "UPDATE slots SET status = ? WHERE slot_id = ?", string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// OccupyFirstFree claims the lowest free slot. SKIP LOCKED lets two
// concurrent entries claim two different slots instead of queueing on one.
func (r *SlotRepo) OccupyFirstFree(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer rollback(tx, &committed)

	var id int
	err = tx.QueryRowContext(ctx,
		"SELECT slot_id FROM slots WHERE status = 'free' ORDER BY slot_id LIMIT 1 FOR UPDATE SKIP LOCKED").
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE slots SET status = 'occupied' WHERE slot_id = ?", id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return id, nil
}

// EnsureSlots inserts slots 1..n as free in a single statement. Existing
// rows keep their status.
func (r *SlotRepo) EnsureSlots(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	query := "INSERT IGNORE INTO slots (slot_id, status) VALUES "
	args := make([]interface{}, 0, n)
	for id := 1; id <= n; id++ {
		if id > 1 {
			query += ","
		}
		query += "(?, 'free')"
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
