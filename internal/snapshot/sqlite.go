package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

// SQLiteStore persists the current snapshot in a single-row table. The
// document is stored whole; the database is a durable key-value slot, not a
// relational model of tasks.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the snapshot database.
// If dbPath is empty, defaults to "./data/priospace.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/priospace.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load returns the stored snapshot, or an empty one when none has been
// saved yet.
func (s *SQLiteStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM snapshot WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	return Decode([]byte(doc))
}

// Save replaces the stored snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, doc, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		string(doc), time.Now().UTC().Format(time.RFC3339))
	return err
}
