// Package ledger persists signed step uploads in a local SQLite outbox until
// they have been delivered.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fwdtrain/fwdtrain/train/ledger/migrations"
	"github.com/fwdtrain/fwdtrain/train/upload"
)

const migrationTable = "schema_migrations"

// Store is the SQLite-backed upload outbox.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) a ledger at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append stores one upload as pending.
func (s *Store) Append(ctx context.Context, u upload.ScalarUpload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("upload id is required")
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO uploads (id, round_id, seed_id, scalar, loss_local, signature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		int64(u.RoundID),
		strconv.FormatUint(u.SeedID, 10),
		float64(u.Scalar),
		float64(u.LossLocal),
		u.Signature,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert upload %s: %w", u.ID, err)
	}
	return nil
}

// Pending returns up to limit undelivered uploads, oldest first.
// limit <= 0 returns all of them.
func (s *Store) Pending(ctx context.Context, limit int) ([]upload.ScalarUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, round_id, seed_id, scalar, loss_local, signature, created_at
		 FROM uploads WHERE sent_at IS NULL
		 ORDER BY created_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending uploads: %w", err)
	}
	defer rows.Close()

	var out []upload.ScalarUpload
	for rows.Next() {
		var (
			u         upload.ScalarUpload
			roundID   int64
			seedID    string
			scalar    float64
			loss      float64
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &roundID, &seedID, &scalar, &loss, &u.Signature, &createdAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.SeedID, err = strconv.ParseUint(seedID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse seed of upload %s: %w", u.ID, err)
		}
		u.RoundID = uint64(roundID)
		u.Scalar = float32(scalar)
		u.LossLocal = float32(loss)
		u.CreatedAt = fromMillis(createdAt)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// MarkSent flags uploads as delivered. Unknown IDs are ignored.
func (s *Store) MarkSent(ctx context.Context, sentAt time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark sent: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE uploads SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
			toMillis(sentAt), id,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark upload %s sent: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark sent: %w", err)
	}
	return nil
}

// Count returns the number of pending and delivered uploads.
func (s *Store) Count(ctx context.Context) (pending, sent int, err error) {
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN sent_at IS NULL THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN sent_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		 FROM uploads`).Scan(&pending, &sent)
	if err != nil {
		return 0, 0, fmt.Errorf("count uploads: %w", err)
	}
	return pending, sent, nil
}

// applyMigrations executes each embedded migration at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := sqlDB.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`,
		migrationTable,
	)); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range sqlFiles {
		var applied int
		if err := sqlDB.QueryRow(
			fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE name = ?", migrationTable), file,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upMigration(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL in the -- +migrate Up section.
func upMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}
