package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps snapshots as JSONB rows.
type PostgresStore struct {
	db *sql.DB

	schemaMu    sync.Mutex
	schemaReady bool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newPostgresStore(db), nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reading_sessions (
  id TEXT PRIMARY KEY,
  payload JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);`

// ensureSchema runs the DDL until it succeeds once.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if err := ValidateID(id); err != nil {
		return Snapshot{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("ensure schema: %w", err)
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reading_sessions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("select session %s: %w", id, err)
	}
	snap, err := decode(payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session %s: %w", id, err)
	}
	return snap, nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, snap Snapshot) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO reading_sessions (id, payload, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (id)
DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		id, string(data))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", id, err)
	}
	return nil
}
