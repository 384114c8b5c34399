package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type PeriodBlob struct {
	UserKey string
	DataKey string
	Blob    []byte
	Version int64
}

const getBlob = `SELECT user_key, data_key, blob, version FROM period_blobs WHERE user_key = ? AND data_key = ?`

func (q *Queries) GetBlob(ctx context.Context, userKey, dataKey string) (PeriodBlob, error) {
	var b PeriodBlob
	err := q.db.QueryRowContext(ctx, getBlob, userKey, dataKey).Scan(&b.UserKey, &b.DataKey, &b.Blob, &b.Version)
	return b, err
}

const upsertBlob = `
INSERT INTO period_blobs (user_key, data_key, blob) VALUES (?, ?, ?)
ON CONFLICT (user_key, data_key) DO UPDATE SET
    blob = excluded.blob,
    version = period_blobs.version + 1,
    updated_at = CURRENT_TIMESTAMP
RETURNING version`

func (q *Queries) UpsertBlob(ctx context.Context, userKey, dataKey string, blob []byte) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, upsertBlob, userKey, dataKey, blob).Scan(&version)
	return version, err
}

const insertBlobIfAbsent = `
INSERT INTO period_blobs (user_key, data_key, blob) VALUES (?, ?, ?)
ON CONFLICT (user_key, data_key) DO NOTHING
RETURNING version`

// InsertBlobIfAbsent returns sql.ErrNoRows when the key already exists.
func (q *Queries) InsertBlobIfAbsent(ctx context.Context, userKey, dataKey string, blob []byte) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, insertBlobIfAbsent, userKey, dataKey, blob).Scan(&version)
	return version, err
}

const updateBlobIfVersion = `
UPDATE period_blobs SET
    blob = ?,
    version = version + 1,
    updated_at = CURRENT_TIMESTAMP
WHERE user_key = ? AND data_key = ? AND version = ?
RETURNING version`

// UpdateBlobIfVersion returns sql.ErrNoRows when the stored version differs.
func (q *Queries) UpdateBlobIfVersion(ctx context.Context, userKey, dataKey string, blob []byte, version int64) (int64, error) {
	var next int64
	err := q.db.QueryRowContext(ctx, updateBlobIfVersion, blob, userKey, dataKey, version).Scan(&next)
	return next, err
}

// Prefix matching uses substr rather than LIKE so '%' and '_' in keys are literal.
const listBlobsByPrefix = `
SELECT user_key, data_key, blob, version FROM period_blobs
WHERE user_key = ? AND substr(data_key, 1, length(?)) = ?
ORDER BY data_key`

func (q *Queries) ListBlobsByPrefix(ctx context.Context, userKey, prefix string) ([]PeriodBlob, error) {
	rows, err := q.db.QueryContext(ctx, listBlobsByPrefix, userKey, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PeriodBlob
	for rows.Next() {
		var b PeriodBlob
		if err := rows.Scan(&b.UserKey, &b.DataKey, &b.Blob, &b.Version); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const listUsers = `SELECT DISTINCT user_key FROM period_blobs ORDER BY user_key`

func (q *Queries) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
