package storage

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	driver: "pgx",
	createDDL: `
		CREATE TABLE IF NOT EXISTS partials (
			key TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			task TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BYTEA NOT NULL
		)
	`,
	upsert: `
		INSERT INTO partials (key, subject, task, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			codec_version = EXCLUDED.codec_version,
			payload = EXCLUDED.payload
	`,
	selectOne: `SELECT payload FROM partials WHERE key = $1`,
	selectAll: `SELECT key FROM partials ORDER BY key`,
}

// PostgresStore keeps partial results in a postgres table through the pgx
// database/sql driver.
type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{sqlStore: sqlStore{dialect: postgresDialect, dsn: dsn}}
}
