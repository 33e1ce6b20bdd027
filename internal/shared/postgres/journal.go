package postgres

import (
	"context"

	"orderflow/internal/domain/orders"
	"orderflow/internal/ports"
)

// TxJournal wraps the events repository so each call runs in its own
// transaction. The workflow core appends single events and never wants to
// manage transaction scope itself.
type TxJournal struct {
	uow  ports.UnitOfWork
	repo ports.EventJournal
}

var _ ports.EventJournal = (*TxJournal)(nil)

// NewTxJournal builds the per-call transactional journal.
func NewTxJournal(uow ports.UnitOfWork, repo ports.EventJournal) *TxJournal {
	return &TxJournal{uow: uow, repo: repo}
}

func (j *TxJournal) Append(ctx context.Context, ev *orders.LifecycleEvent) error {
	return j.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return j.repo.Append(txCtx, ev)
	})
}

func (j *TxJournal) History(ctx context.Context, orderID string) ([]ports.JournalEntry, error) {
	var out []ports.JournalEntry
	err := j.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = j.repo.History(txCtx, orderID)
		return err
	})
	return out, err
}

func (j *TxJournal) Latest(ctx context.Context, orderID string) (*ports.JournalEntry, error) {
	var out *ports.JournalEntry
	err := j.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = j.repo.Latest(txCtx, orderID)
		return err
	})
	return out, err
}
