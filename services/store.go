package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chain-credentials/issuer-api/models"
)

func (s *Service) createTables() error {
	// The partial unique index enforces at most one non-burned credential
	// per (owner, issuer) pair, which backstops the per-pair lock across
	// processes sharing the database file.
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			issuer TEXT NOT NULL,
			status_list_file_id TEXT NOT NULL,
			status_list_index INTEGER NOT NULL,
			asset_serial TEXT NOT NULL,
			encryption_iv BLOB,
			internal_status TEXT NOT NULL,
			chain_status TEXT NOT NULL,
			expiration_date INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS credentials_active_pair
			ON credentials (owner, issuer) WHERE internal_status != 'BURNED';
	`)
	return err
}

func (s *Service) prepareStatements() error {
	var err error

	if s.insertCredStmt, err = s.db.Prepare(`
		INSERT INTO credentials (
			id, owner, issuer, status_list_file_id, status_list_index,
			asset_serial, encryption_iv, internal_status, chain_status,
			expiration_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`); err != nil {
		return err
	}

	if s.updateCredStmt, err = s.db.Prepare(`
		UPDATE credentials
		SET asset_serial = ?, encryption_iv = ?, internal_status = ?,
			chain_status = ?, updated_at = ?
		WHERE id = ?;
	`); err != nil {
		return err
	}

	if s.getCredByPairStmt, err = s.db.Prepare(`
		SELECT id, owner, issuer, status_list_file_id, status_list_index,
			asset_serial, encryption_iv, internal_status, chain_status,
			expiration_date, created_at, updated_at
		FROM credentials
		WHERE owner = ? AND issuer = ? AND internal_status != 'BURNED'
		LIMIT 1;
	`); err != nil {
		return err
	}

	if s.getCredByIDStmt, err = s.db.Prepare(`
		SELECT id, owner, issuer, status_list_file_id, status_list_index,
			asset_serial, encryption_iv, internal_status, chain_status,
			expiration_date, created_at, updated_at
		FROM credentials
		WHERE id = ?;
	`); err != nil {
		return err
	}

	if s.listUnburnedStmt, err = s.db.Prepare(`
		SELECT id FROM credentials WHERE internal_status != 'BURNED';
	`); err != nil {
		return err
	}

	return nil
}

func scanCredential(row *sql.Row) (*models.Credential, error) {
	var cred models.Credential
	var expiration, created, updated int64
	err := row.Scan(
		&cred.ID, &cred.Owner, &cred.Issuer,
		&cred.StatusListFileID, &cred.StatusListIndex,
		&cred.AssetSerial, &cred.EncryptionIV,
		&cred.InternalStatus, &cred.ChainStatus,
		&expiration, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	cred.ExpirationDate = time.Unix(expiration, 0)
	cred.CreatedAt = time.Unix(created, 0)
	cred.UpdatedAt = time.Unix(updated, 0)
	return &cred, nil
}

// insertCredential stores a freshly registered credential record.
func (s *Service) insertCredential(ctx context.Context, cred *models.Credential) error {
	_, err := s.insertCredStmt.ExecContext(ctx,
		cred.ID, cred.Owner, cred.Issuer,
		cred.StatusListFileID, cred.StatusListIndex,
		cred.AssetSerial, cred.EncryptionIV,
		cred.InternalStatus, cred.ChainStatus,
		cred.ExpirationDate.Unix(), cred.CreatedAt.Unix(), cred.UpdatedAt.Unix(),
	)
	return err
}

// updateCredential persists the mutable fields of a credential after a
// completed step or status refresh.
func (s *Service) updateCredential(ctx context.Context, cred *models.Credential) error {
	cred.UpdatedAt = s.clock.Now()
	_, err := s.updateCredStmt.ExecContext(ctx,
		cred.AssetSerial, cred.EncryptionIV, cred.InternalStatus,
		cred.ChainStatus, cred.UpdatedAt.Unix(), cred.ID,
	)
	return err
}

// credentialByPair returns the single non-burned credential for an
// (owner, issuer) pair, or nil if none exists.
func (s *Service) credentialByPair(ctx context.Context, owner, issuer string) (*models.Credential, error) {
	cred, err := scanCredential(s.getCredByPairStmt.QueryRowContext(ctx, owner, issuer))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cred, err
}

// credentialByID returns a credential by record id. Burned records remain
// queryable.
func (s *Service) credentialByID(ctx context.Context, id string) (*models.Credential, error) {
	cred, err := scanCredential(s.getCredByIDStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{"credential not found"}
	}
	return cred, err
}

// listUnburnedIDs returns the ids of all credentials that still have a
// live asset, for the background chain-status sweep.
func (s *Service) listUnburnedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.listUnburnedStmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
