package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

// EventsRepo is the pgx-backed lifecycle event journal.
type EventsRepo struct{}

var _ ports.EventJournal = (*EventsRepo)(nil)

// NewEventsRepo constructs a new EventsRepo.
func NewEventsRepo() *EventsRepo {
	return &EventsRepo{}
}

// Append inserts one lifecycle event. Duplicate event ids are ignored so a
// redelivered message never doubles a journal row.
func (r *EventsRepo) Append(ctx context.Context, ev *orders.LifecycleEvent) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var reason *string
	if ev.Reason != "" {
		reason = &ev.Reason
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_events (event_id, event_type, order_id, status, correlation_id, emitted_by, occurred_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`,
		ev.ID,
		string(ev.Type),
		ev.Order.ID,
		string(ev.Order.Status),
		ev.CorrelationID,
		ev.EmittedBy,
		ev.OccurredAt.UTC(),
		reason,
	)
	return err
}

// History returns the full event history of one order, oldest first.
func (r *EventsRepo) History(ctx context.Context, orderID string) ([]ports.JournalEntry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT event_id, event_type, order_id, status, correlation_id, emitted_by, occurred_at, reason
		FROM order_events
		WHERE order_id = $1
		ORDER BY occurred_at ASC, event_id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest returns the most recent journal entry for the order, or
// ErrOrderNotFound when the journal has never seen it.
func (r *EventsRepo) Latest(ctx context.Context, orderID string) (*ports.JournalEntry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT event_id, event_type, order_id, status, correlation_id, emitted_by, occurred_at, reason
		FROM order_events
		WHERE order_id = $1
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT 1
	`, orderID)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (ports.JournalEntry, error) {
	var (
		e         ports.JournalEntry
		eventType string
		status    string
	)
	err := row.Scan(&e.EventID, &eventType, &e.OrderID, &status, &e.CorrelationID, &e.EmittedBy, &e.OccurredAt, &e.Reason)
	if err != nil {
		return ports.JournalEntry{}, err
	}
	e.EventType = orders.EventType(eventType)
	e.Status = orders.OrderStatus(status)
	return e, nil
}
