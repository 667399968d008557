package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyndegarde/Maters-Project/utils"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveWeights(ctx context.Context, runID string, weights *utils.ModelWeights) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeWeights(weights)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO weights (run_id, model, version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			model = excluded.model,
			version = excluded.version,
			payload = excluded.payload
	`, runID, weights.Model, weights.Version, payload)
	return err
}

func (s *SQLiteStore) GetWeights(ctx context.Context, runID string) (*utils.ModelWeights, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM weights WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	w, err := DecodeWeights(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode weights %s: %w", runID, err)
	}
	return w, true, nil
}

func (s *SQLiteStore) SaveTrace(ctx context.Context, runID string, trace TraceRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrace(trace)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO traces (run_id, steps, batch, classes, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			steps = excluded.steps,
			batch = excluded.batch,
			classes = excluded.classes,
			payload = excluded.payload
	`, runID, trace.Steps, trace.Batch, trace.Classes, payload)
	return err
}

func (s *SQLiteStore) GetTrace(ctx context.Context, runID string) (TraceRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return TraceRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM traces WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TraceRecord{}, false, nil
		}
		return TraceRecord{}, false, err
	}

	r, err := DecodeTrace(payload)
	if err != nil {
		return TraceRecord{}, false, fmt.Errorf("decode trace %s: %w", runID, err)
	}
	return r, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS weights (
			run_id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			version TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS traces (
			run_id TEXT PRIMARY KEY,
			steps INTEGER NOT NULL,
			batch INTEGER NOT NULL,
			classes INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
