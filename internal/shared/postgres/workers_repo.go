package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"orderflow/internal/domain/workers"
	"orderflow/internal/ports"
)

// WorkersRepo implements dispatch-worker persistence using pgx and SQL.
type WorkersRepo struct{}

var _ ports.WorkerRegistry = (*WorkersRepo)(nil)

// NewWorkersRepo constructs a new WorkersRepo.
func NewWorkersRepo() *WorkersRepo {
	return &WorkersRepo{}
}

// RegisterOnline registers a worker by name with its channel set as online.
// Semantics:
//   - If no row exists -> INSERT (online) -> ok=true.
//   - If a row exists AND status='online' -> ok=false (duplicate name, caller should terminate).
//   - If a row exists AND status='offline' -> UPDATE to online -> ok=true.
func (r *WorkersRepo) RegisterOnline(ctx context.Context, name, channels string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	var status string
	err = tx.QueryRow(ctx, `
		INSERT INTO dispatch_workers (name, channels, status, last_seen)
		VALUES ($1, $2, 'online', now())
		ON CONFLICT (name) DO UPDATE
		  SET channels = EXCLUDED.channels,
		      status = 'online',
		      last_seen = now()
		  WHERE dispatch_workers.status <> 'online'
		RETURNING status
	`, name, channels).Scan(&status)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// the ON CONFLICT branch was a no-op because the row was already 'online'
		return false, nil
	case err != nil:
		return false, err
	default:
		// inserted new row OR updated an offline row to online
		return true, nil
	}
}

// MarkOffline sets the worker's status to 'offline'.
func (r *WorkersRepo) MarkOffline(ctx context.Context, name string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE dispatch_workers
		SET status = 'offline', last_seen = now()
		WHERE name = $1
	`, name)
	return err
}

// Heartbeat refreshes the worker's last_seen and keeps it 'online'.
func (r *WorkersRepo) Heartbeat(ctx context.Context, name string, when time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE dispatch_workers
		SET status = 'online', last_seen = $2
		WHERE name = $1
	`, name, when.UTC())
	return err
}

// IncrementProcessed atomically increases the processed counter for a worker.
func (r *WorkersRepo) IncrementProcessed(ctx context.Context, name string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE dispatch_workers
		SET orders_processed = orders_processed + 1
		WHERE name = $1
	`, name)
	return err
}

// ListAll returns all workers with their current runtime status.
func (r *WorkersRepo) ListAll(ctx context.Context) ([]workers.Worker, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, name, channels, status, last_seen, orders_processed
		FROM dispatch_workers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workers.Worker
	for rows.Next() {
		var w workers.Worker
		var status string

		if err := rows.Scan(&w.ID, &w.Name, &w.Channels, &status, &w.LastSeen, &w.OrdersProcessed); err != nil {
			return nil, err
		}
		w.Status = workers.WorkerStatus(status)
		out = append(out, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
