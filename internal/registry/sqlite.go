package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"snapconvert/internal/logging"
)

// SQLiteStore persists results in a SQLite database so registrations
// survive a restart. Files removed while the process was down are caught
// by the registry's existence check.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path. The
// parent directory must exist.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	logging.Info("Registry database path: %s", path)

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close registry database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close registry database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		original_name TEXT NOT NULL,
		converted_name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, res Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results
			(id, file_path, original_name, converted_name, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.FilePath, res.OriginalName, res.ConvertedName, res.ContentType, res.Size,
		res.CreatedAt.UnixNano(),
	)
	return err
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Result, error) {
	var res Result
	var created int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, original_name, converted_name, content_type, size, created_at
		FROM results WHERE id = ?`, id,
	).Scan(&res.ID, &res.FilePath, &res.OriginalName, &res.ConvertedName, &res.ContentType, &res.Size, &created)

	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, err
	}

	res.CreatedAt = time.Unix(0, created)
	return res, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n)
	return n, err
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
