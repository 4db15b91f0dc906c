//go:build sqlite

package storage

import (
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	driver: "sqlite",
	createDDL: `
		CREATE TABLE IF NOT EXISTS partials (
			key TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			task TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`,
	upsert: `
		INSERT INTO partials (key, subject, task, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`,
	selectOne: `SELECT payload FROM partials WHERE key = ?`,
	selectAll: `SELECT key FROM partials ORDER BY key`,
}

type SQLiteStore struct {
	sqlStore
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{sqlStore: sqlStore{dialect: sqliteDialect, dsn: path}}
}
