package statestore

import (
	"context"
	"database/sql"
	"time"

	"closure-core/pkg/db"
)

// SQLStore persists keys in the service database so state survives restarts.
// Expiry is lazy on read; Cleanup sweeps expired rows for long-lived processes.
type SQLStore struct {
	db *db.Database
	// now is swappable in tests.
	now func() time.Time
}

// NewSQLStore wraps the service database as a Store.
func NewSQLStore(database *db.Database) *SQLStore {
	return &SQLStore{db: database, now: time.Now}
}

// Get reads a key, treating expired rows as absent.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT value, expires_at FROM state_kv WHERE key = ?
	`, key)

	var value []byte
	var expires sql.NullTime
	if err := row.Scan(&value, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if expires.Valid && !expires.Time.After(s.now()) {
		// Expired: clear it so the table does not accumulate dead rows.
		_, _ = s.db.DB.ExecContext(ctx, `DELETE FROM state_kv WHERE key = ?`, key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set writes a key with an optional TTL.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = s.now().Add(ttl).UTC()
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO state_kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, key, value, expires)
	return err
}

// Delete removes a key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM state_kv WHERE key = ?`, key)
	return err
}

// Cleanup removes all expired rows and reports how many were deleted.
func (s *SQLStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, `
		DELETE FROM state_kv WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
