package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"audimg/internal/model"
	"audimg/internal/study"
)

// dialect carries the statements that differ between SQL backends.
type dialect struct {
	driver    string
	createDDL string
	upsert    string
	selectOne string
	selectAll string
}

// sqlStore implements Store over database/sql; the backend types embed it.
type sqlStore struct {
	dialect dialect
	dsn     string

	mu sync.RWMutex
	db *sql.DB
}

func (s *sqlStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s data source is required", s.dialect.driver)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, s.dialect.createDDL); err != nil {
		_ = db.Close()
		return fmt.Errorf("create tables: %w", err)
	}

	s.db = db
	return nil
}

func (s *sqlStore) SavePartial(ctx context.Context, partial model.PartialResult) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePartial(partial)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, s.dialect.upsert,
		partial.Key(), string(partial.Subject), string(partial.Task),
		partial.SchemaVersion, partial.CodecVersion, payload)
	return err
}

func (s *sqlStore) GetPartial(ctx context.Context, subject study.Subject, task study.Task) (model.PartialResult, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PartialResult{}, false, err
	}

	key := model.PartialKey(subject, task)
	var payload []byte
	err = db.QueryRowContext(ctx, s.dialect.selectOne, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PartialResult{}, false, nil
		}
		return model.PartialResult{}, false, err
	}

	partial, err := DecodePartial(payload)
	if err != nil {
		return model.PartialResult{}, false, fmt.Errorf("decode partial %s: %w", key, err)
	}
	return partial, true, nil
}

func (s *sqlStore) ListPartials(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, s.dialect.selectAll)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}
