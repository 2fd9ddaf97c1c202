package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avaluotech/fieldsync/internal/client/models"
	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/google/uuid"
)

// DefaultMaxAttempts is the retry ceiling: after this many failed attempts an
// item is terminal and surfaced for manual action.
const DefaultMaxAttempts = 5

// legalPriors lists the statuses a transition may start from. Encoded in the
// UPDATE's WHERE clause so the check and the write are one atomic statement.
var legalPriors = map[models.ItemStatus][]models.ItemStatus{
	models.StatusUploading:            {models.StatusPending, models.StatusFailed},
	models.StatusAwaitingRegistration: {models.StatusUploading},
	models.StatusConfirmed:            {models.StatusAwaitingRegistration},
	models.StatusFailed:               {models.StatusPending, models.StatusUploading, models.StatusAwaitingRegistration},
}

// SQLiteQueue implements Repository on a local SQLite database.
type SQLiteQueue struct {
	db          *sql.DB
	maxAttempts int
}

// NewSQLiteQueue binds a queue to an open database. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewSQLiteQueue(db *sql.DB, maxAttempts int) *SQLiteQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &SQLiteQueue{db: db, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured retry ceiling.
func (q *SQLiteQueue) MaxAttempts() int { return q.maxAttempts }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrStorageFatal, op, err)
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, item *models.WorkItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	query := `INSERT INTO work_items
			(id, kind, case_code, file_name, content_type, payload,
			 captured_at, captured_by, latitude, longitude, status, attempts, last_error, enqueued_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?)`

	_, err := q.db.ExecContext(ctx, query,
		item.ID, item.Kind, item.CaseCode, item.FileName, item.ContentType, item.Payload,
		item.CapturedAt.UTC(), item.CapturedBy, item.Latitude, item.Longitude, item.Status, item.EnqueuedAt)
	if err != nil {
		return "", storageErr("enqueue", err)
	}
	return item.ID, nil
}

const itemColumns = `id, kind, case_code, file_name, content_type, payload,
	captured_at, captured_by, latitude, longitude, status, attempts, last_error, enqueued_at`

func scanItem(rows *sql.Rows) (*models.WorkItem, error) {
	item := &models.WorkItem{}
	var lat, lon sql.NullFloat64
	if err := rows.Scan(&item.ID, &item.Kind, &item.CaseCode, &item.FileName, &item.ContentType,
		&item.Payload, &item.CapturedAt, &item.CapturedBy, &lat, &lon,
		&item.Status, &item.Attempts, &item.LastError, &item.EnqueuedAt); err != nil {
		return nil, err
	}
	if lat.Valid {
		item.Latitude = &lat.Float64
	}
	if lon.Valid {
		item.Longitude = &lon.Float64
	}
	return item, nil
}

func (q *SQLiteQueue) queryItems(ctx context.Context, query string, args ...any) ([]*models.WorkItem, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("select", err)
	}
	defer rows.Close()

	var result []*models.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return result, nil
}

func (q *SQLiteQueue) NextBatch(ctx context.Context, max int) ([]*models.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items
			WHERE status = ? OR (status = ? AND attempts < ?)
			ORDER BY enqueued_at ASC, id ASC
			LIMIT ?`
	return q.queryItems(ctx, query, models.StatusPending, models.StatusFailed, q.maxAttempts, max)
}

func statusPlaceholders(priors []models.ItemStatus) (string, []any) {
	marks := ""
	args := make([]any, 0, len(priors))
	for i, s := range priors {
		if i > 0 {
			marks += ", "
		}
		marks += "?"
		args = append(args, s)
	}
	return marks, args
}

func (q *SQLiteQueue) MarkStatus(ctx context.Context, id string, status models.ItemStatus, lastError string) error {
	priors, ok := legalPriors[status]
	if !ok {
		return fmt.Errorf("no transition into status %q", status)
	}

	marks, priorArgs := statusPlaceholders(priors)

	return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var query string
		args := []any{status, lastError}
		if status == models.StatusFailed {
			query = `UPDATE work_items SET status = ?, last_error = ?, attempts = attempts + 1
					WHERE id = ? AND status IN (` + marks + `)`
		} else {
			query = `UPDATE work_items SET status = ?, last_error = ?
					WHERE id = ? AND status IN (` + marks + `)`
		}
		args = append(args, id)
		args = append(args, priorArgs...)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return storageErr("mark status", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("rows affected", err)
		}
		if n != 1 {
			return fmt.Errorf("illegal transition of %s to %s", id, status)
		}

		if status == models.StatusFailed {
			return q.appendLedger(ctx, tx, id, "failed", lastError)
		}
		return nil
	})
}

func (q *SQLiteQueue) Requeue(ctx context.Context, id string, lastError string) error {
	return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `UPDATE work_items SET status = ?, last_error = ?, attempts = attempts + 1
				WHERE id = ? AND status IN (?, ?)`
		res, err := tx.ExecContext(ctx, query, models.StatusPending, lastError, id,
			models.StatusUploading, models.StatusAwaitingRegistration)
		if err != nil {
			return storageErr("requeue", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("rows affected", err)
		}
		if n != 1 {
			return fmt.Errorf("illegal requeue of %s", id)
		}
		return q.appendLedger(ctx, tx, id, "requeued", lastError)
	})
}

func (q *SQLiteQueue) Release(ctx context.Context, id string, lastError string) error {
	// No attempts bump and no ledger row: nothing was tried that the item
	// could have done differently.
	res, err := q.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, last_error = ? WHERE id = ? AND status IN (?, ?)`,
		models.StatusPending, lastError, id, models.StatusUploading, models.StatusAwaitingRegistration)
	if err != nil {
		return storageErr("release", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n != 1 {
		return fmt.Errorf("illegal release of %s", id)
	}
	return nil
}

func (q *SQLiteQueue) MarkPermanentlyFailed(ctx context.Context, id string, lastError string) error {
	return dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Pin attempts at the ceiling so NextBatch never returns the item again.
		query := `UPDATE work_items SET status = ?, last_error = ?, attempts = MAX(attempts + 1, ?)
				WHERE id = ? AND status != ?`
		res, err := tx.ExecContext(ctx, query, models.StatusFailed, lastError, q.maxAttempts, id, models.StatusConfirmed)
		if err != nil {
			return storageErr("mark permanently failed", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("rows affected", err)
		}
		if n != 1 {
			return fmt.Errorf("cannot permanently fail %s", id)
		}
		return q.appendLedger(ctx, tx, id, "permanent", lastError)
	})
}

func (q *SQLiteQueue) Retire(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM work_items WHERE id = ? AND status = ?`, id, models.StatusConfirmed)
	if err != nil {
		return storageErr("retire", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n != 1 {
		return fmt.Errorf("retire of %s: item is not confirmed", id)
	}
	return nil
}

func (q *SQLiteQueue) RecoverStale(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE work_items SET status = ? WHERE status IN (?, ?)`,
		models.StatusPending, models.StatusUploading, models.StatusAwaitingRegistration)
	if err != nil {
		return 0, storageErr("recover stale", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("rows affected", err)
	}
	return int(n), nil
}

func (q *SQLiteQueue) CountDispatchable(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_items WHERE status = ? OR (status = ? AND attempts < ?)`,
		models.StatusPending, models.StatusFailed, q.maxAttempts).Scan(&n)
	if err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (q *SQLiteQueue) TerminallyFailed(ctx context.Context) ([]*models.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items
			WHERE status = ? AND attempts >= ?
			ORDER BY enqueued_at ASC`
	return q.queryItems(ctx, query, models.StatusFailed, q.maxAttempts)
}

func (q *SQLiteQueue) Ledger(ctx context.Context, itemID string) ([]models.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, item_id, attempt, outcome, error, attempted_at
		FROM retry_ledger WHERE item_id = ? ORDER BY seq ASC`, itemID)
	if err != nil {
		return nil, storageErr("ledger", err)
	}
	defer rows.Close()

	var result []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Seq, &e.ItemID, &e.Attempt, &e.Outcome, &e.Error, &e.AttemptedAt); err != nil {
			return nil, storageErr("scan ledger", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return result, nil
}

func (q *SQLiteQueue) Discard(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return storageErr("discard", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n != 1 {
		return fmt.Errorf("discard of %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

// appendLedger records one attempt outcome inside the caller's transaction,
// copying the current attempt counter.
func (q *SQLiteQueue) appendLedger(ctx context.Context, tx dbx.DBTX, itemID, outcome, lastError string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO retry_ledger (item_id, attempt, outcome, error, attempted_at)
		SELECT id, attempts, ?, ?, ? FROM work_items WHERE id = ?`,
		outcome, lastError, time.Now().UTC(), itemID)
	if err != nil {
		return storageErr("append ledger", err)
	}
	return nil
}
