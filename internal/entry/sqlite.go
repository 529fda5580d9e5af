package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a single SQLite table. Data and options
// are stored as JSON documents.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS config_entries (
		entry_id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		unique_id TEXT,
		data JSON NOT NULL,
		options JSON NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_config_entries_domain ON config_entries(domain);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load returns every stored entry in creation order
func (s *SQLiteStore) Load(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, domain, title, source, unique_id, data, options, created_at, updated_at
		FROM config_entries
		ORDER BY created_at, entry_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                    Entry
			source               string
			uniqueID             sql.NullString
			data, options        []byte
			createdAt, updatedAt time.Time
		)

		if err := rows.Scan(&e.EntryID, &e.Domain, &e.Title, &source, &uniqueID, &data, &options, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data of entry %s: %w", e.EntryID, err)
		}
		if err := json.Unmarshal(options, &e.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options of entry %s: %w", e.EntryID, err)
		}

		e.Source = Source(source)
		e.UniqueID = uniqueID.String
		e.CreatedAt = createdAt
		e.UpdatedAt = updatedAt
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

// Save inserts or replaces an entry
func (s *SQLiteStore) Save(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entry data: %w", err)
	}

	options, err := json.Marshal(e.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal entry options: %w", err)
	}

	var uniqueID sql.NullString
	if e.UniqueID != "" {
		uniqueID = sql.NullString{String: e.UniqueID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_entries (entry_id, domain, title, source, unique_id, data, options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			title = excluded.title,
			unique_id = excluded.unique_id,
			data = excluded.data,
			options = excluded.options,
			updated_at = excluded.updated_at
	`, e.EntryID, e.Domain, e.Title, string(e.Source), uniqueID, data, options, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save entry %s: %w", e.EntryID, err)
	}

	return nil
}

// Delete removes an entry; deleting a missing entry is not an error
func (s *SQLiteStore) Delete(ctx context.Context, entryID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", entryID, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
