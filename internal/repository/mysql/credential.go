package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/repository"
)

// CredentialRepo reads and writes the `credentials` table.
type CredentialRepo struct{ db *sql.DB }

func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{db: db} }

const credentialColumns = "id, name, role, balance, created_at"

// GetByID fetches one credential. ErrNotFound if the id is not registered.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	var c model.Credential
	err := r.db.QueryRowContext(ctx,
		"SELECT "+credentialColumns+" FROM credentials WHERE id = ? LIMIT 1", id).
		Scan(&c.ID, &c.Name, &c.Role, &c.Balance, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, repository.ErrNotFound
	}
	return c, err
}

// List returns every credential ordered by id.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+credentialColumns+" FROM credentials ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Credential{}
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.Name, &c.Role, &c.Balance, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create registers a credential with a zero balance.
func (r *CredentialRepo) Create(ctx context.Context, c model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO credentials (id, name, role, balance) VALUES (?, ?, ?, 0)",
		c.ID, c.Name, string(c.Role))
	if mysqlErrNumber(err) == errDupEntry {
		return repository.ErrDuplicateKey
	}
	return err
}

// Update changes name and role of an existing credential.
func (r *CredentialRepo) Update(ctx context.Context, c model.Credential) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE credentials SET name = ?, role = ? WHERE id = ?",
		c.Name, string(c.Role), c.ID)
	if err != nil {
		return err
	}
	// The DSN sets clientFoundRows, so an unchanged row still counts.
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the credential and its sessions in one transaction.
func (r *CredentialRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer rollback(tx, &committed)

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE credential_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
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
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
