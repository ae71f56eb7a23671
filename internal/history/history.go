// Package history keeps a local ledger of completed uploads so the CLI
// can answer "what did I already send" without a network call. The
// ledger is an embedded SQLite database under the user's data
// directory; it is informational only and never consulted by the
// upload path itself.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one completed upload.
type Record struct {
	ID         int64
	FileName   string
	Size       int64
	WebURL     string
	Source     string
	UploadedAt time.Time
}

// Store persists upload records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DefaultPath returns the standard ledger location, honoring
// XDG_DATA_HOME.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("history: resolving home directory: %w", err)
		}

		base = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(base, "photorelay", "history.db"), nil
}

// Open opens (or creates) the ledger at dbPath and applies pending
// migrations. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("history: creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: setting WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
		)
	}

	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records one completed upload.
func (s *Store) Add(ctx context.Context, rec Record) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}

	if rec.Source == "" {
		rec.Source = "direct"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (file_name, size, web_url, source, uploaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.FileName, rec.Size, rec.WebURL, rec.Source,
		rec.UploadedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: recording upload: %w", err)
	}

	return nil
}

// List returns the most recent records, newest first. limit <= 0 means
// no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, file_name, size, web_url, source, uploaded_at
	          FROM uploads ORDER BY uploaded_at DESC, id DESC`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: listing uploads: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var (
			rec       Record
			timestamp string
		)

		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.Size, &rec.WebURL, &rec.Source, &timestamp); err != nil {
			return nil, fmt.Errorf("history: scanning upload row: %w", err)
		}

		rec.UploadedAt, err = time.Parse(time.RFC3339, timestamp)
		if err != nil {
			s.logger.Warn("unparseable upload timestamp",
				slog.Int64("id", rec.ID),
				slog.String("value", timestamp),
			)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating upload rows: %w", err)
	}

	return records, nil
}
