package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avaluotech/fieldsync/internal/client/migrations"
	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the queue database at dsn, migrates it, and rolls
// any items left mid-flight by a crash back to pending before the first
// dispatch.
func Open(ctx context.Context, dsn string, maxAttempts int) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorageFatal, dsn, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", common.ErrStorageFatal, err)
	}

	q := NewSQLiteQueue(db, maxAttempts)
	if _, err := q.RecoverStale(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// Close closes the underlying database.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
