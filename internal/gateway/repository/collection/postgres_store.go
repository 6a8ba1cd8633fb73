package collectionrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shiyin/internal/collection"
)

type PostgresStore struct {
	db *sql.DB

	// schemaMu guards schemaReady; a failed attempt is retried by the next call.
	schemaMu    sync.Mutex
	schemaReady bool
}

// OpenPostgres opens and pings a pgx-backed database/sql pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS collections (
    owner TEXT PRIMARY KEY,
    items JSONB NOT NULL DEFAULT '[]'::jsonb,
    item_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`); err != nil {
		return fmt.Errorf("ensure collections schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, owner string) ([]collection.Item, error) {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT items FROM collections WHERE owner=$1`, owner).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeItems(raw)
}

func (s *PostgresStore) Save(ctx context.Context, owner string, items []collection.Item) error {
	owner, err := normalizeOwner(owner)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := encodeItems(items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO collections (owner, items, item_count, updated_at)
VALUES ($1, $2::jsonb, $3, $4)
ON CONFLICT (owner)
DO UPDATE SET items=EXCLUDED.items, item_count=EXCLUDED.item_count, updated_at=EXCLUDED.updated_at
`, owner, string(raw), len(items), time.Now())
	return err
}
