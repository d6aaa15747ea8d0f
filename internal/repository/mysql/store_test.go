package mysql

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var sessionCols = []string{"id", "credential_id", "entry_time", "exit_time", "duration_seconds", "amount", "payment_status"}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestCredentialGetByIDNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(q("FROM credentials WHERE id = ?")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "role", "balance", "created_at"}))

	_, err := s.Credentials().GetByID(context.Background(), "42")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialCreateDuplicate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO credentials")).
		WithArgs("1", "User", "user").
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry '1'"})

	err := s.Credentials().Create(context.Background(), model.Credential{ID: "1", Name: "User", Role: model.RoleUser})
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialDeleteCascades(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM sessions WHERE credential_id = ?")).
		WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("DELETE FROM credentials WHERE id = ?")).
		WithArgs("1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Credentials().Delete(context.Background(), "1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialDeleteMissingRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM sessions")).WithArgs("9").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM credentials")).WithArgs("9").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.Credentials().Delete(context.Background(), "9"), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotUpdateStatusUnknown(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(q("UPDATE slots SET status = ? WHERE slot_id = ?")).
		WithArgs("occupied", 99).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Slots().UpdateStatus(context.Background(), 99, model.SlotOccupied)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotOccupyFirstFree(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow(3))
	mock.ExpectExec(q("UPDATE slots SET status = 'occupied' WHERE slot_id = ?")).
		WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := s.Slots().OccupyFirstFree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotOccupyFirstFreeNoneLeft(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).WillReturnRows(sqlmock.NewRows([]string{"slot_id"}))
	mock.ExpectRollback()

	_, err := s.Slots().OccupyFirstFree(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotEnsureSlots(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(q("INSERT IGNORE INTO slots (slot_id, status) VALUES (?, 'free'),(?, 'free'),(?, 'free')")).
		WithArgs(1, 2, 3).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.Slots().EnsureSlots(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionCreateOpenErrors(t *testing.T) {
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		number uint16
		want   error
	}{
		{"already open", 1062, repository.ErrConflict},
		{"unknown credential", 1452, repository.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectExec(q("INSERT INTO sessions")).
				WithArgs("1", entry).
				WillReturnError(&gomysql.MySQLError{Number: tt.number})

			_, err := s.Sessions().CreateOpen(context.Background(), "1", entry)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionCreateOpen(t *testing.T) {
	s, mock := newMock(t)
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(q("INSERT INTO sessions")).WithArgs("1", entry).WillReturnResult(sqlmock.NewResult(17, 1))

	id, err := s.Sessions().CreateOpen(context.Background(), "1", entry)
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
}

func TestSessionCloseLostRace(t *testing.T) {
	s, mock := newMock(t)
	exit := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(q("UPDATE sessions SET exit_time = ?, duration_seconds = ?, amount = ? WHERE id = ? AND exit_time IS NULL")).
		WithArgs(exit, int64(3600), int64(50), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM sessions WHERE id = ?")).
		WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err := s.Sessions().Close(context.Background(), 5, exit, 3600, 50)
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionCloseMissing(t *testing.T) {
	s, mock := newMock(t)
	exit := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(q("UPDATE sessions SET exit_time")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM sessions")).WillReturnRows(sqlmock.NewRows([]string{"1"}))

	err := s.Sessions().Close(context.Background(), 5, exit, 3600, 50)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionMarkPaid(t *testing.T) {
	s, mock := newMock(t)
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	exit := entry.Add(90 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM sessions WHERE id = ? AND credential_id = ? FOR UPDATE")).
		WithArgs(int64(5), "1").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(int64(5), "1", entry, exit, int64(5400), int64(100), "unpaid"))
	mock.ExpectExec(q("UPDATE sessions SET payment_status = 'paid' WHERE id = ?")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE credentials SET balance = balance + ? WHERE id = ?")).
		WithArgs(int64(100), "1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sess, err := s.Sessions().MarkPaid(context.Background(), 5, "1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, sess.PaymentStatus)
	assert.Equal(t, int64(100), sess.Amount.Int64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionMarkPaidRejections(t *testing.T) {
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	tests := []struct {
		name string
		row  []driver.Value
		want error
	}{
		{"still open", []driver.Value{int64(5), "1", entry, nil, nil, nil, "unpaid"}, repository.ErrNotClosed},
		{"already paid", []driver.Value{int64(5), "1", entry, exit, int64(3600), int64(50), "paid"}, repository.ErrConflict},
		{"foreign or missing", nil, repository.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)
			rows := sqlmock.NewRows(sessionCols)
			if tt.row != nil {
				rows.AddRow(tt.row...)
			}
			mock.ExpectBegin()
			mock.ExpectQuery(q("FOR UPDATE")).WithArgs(int64(5), "1").WillReturnRows(rows)
			mock.ExpectRollback()

			_, err := s.Sessions().MarkPaid(context.Background(), 5, "1")
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionListWithNames(t *testing.T) {
	s, mock := newMock(t)
	entry := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cols := append(append([]string{}, sessionCols...), "name")
	mock.ExpectQuery(q("LEFT JOIN credentials")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), "1", entry, nil, nil, nil, "unpaid", "User").
			AddRow(int64(1), "7", entry.Add(-time.Hour), entry, int64(3600), int64(50), "paid", ""))

	views, err := s.Sessions().ListWithNames(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "User", views[0].CredentialName)
	assert.True(t, views[0].IsOpen())
	assert.False(t, views[1].IsOpen())
	assert.Equal(t, int64(50), views[1].Amount.Int64)
}
