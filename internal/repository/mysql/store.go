// Package mysql implements repository.Store on top of database/sql and the
// go-sql-driver/mysql driver. The schema it expects is created by
// internal/database.Migrate.
package mysql

import (
	"context"
	"database/sql"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/iliyamo/parking-gate/internal/repository"
)

// MySQL server error numbers the repositories translate.
const (
	errDupEntry        = 1062
	errNoReferencedRow = 1452
)

// Store bundles the three MySQL repositories over one connection pool.
type Store struct {
	db          *sql.DB
	credentials *CredentialRepo
	slots       *SlotRepo
	sessions    *SessionRepo
}

// New wraps an open pool. The pool is closed by Store.Close.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		credentials: NewCredentialRepo(db),
		slots:       NewSlotRepo(db),
		sessions:    NewSessionRepo(db),
	}
}

func (s *Store) Credentials() repository.CredentialRepository { return s.credentials }
func (s *Store) Slots() repository.SlotRepository             { return s.slots }
func (s *Store) Sessions() repository.SessionRepository       { return s.sessions }

// DB exposes the pool for migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// mysqlErrNumber returns the server error number carried by err, or 0.
func mysqlErrNumber(err error) uint16 {
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// rollback is deferred by every transaction; it is a no-op once committed.
func rollback(tx *sql.Tx, committed *bool) {
	if !*committed {
		_ = tx.Rollback()
	}
}
