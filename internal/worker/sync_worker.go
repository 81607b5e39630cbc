package worker

import (
	"context"
	"errors"
	"fmt"

	"spendwise/internal/amqp"
	applog "spendwise/internal/log"
	"spendwise/internal/sheets"
	"spendwise/internal/store"
)

// SyncWorker mirrors expenses into the export sheet as queue messages
// arrive.
type SyncWorker struct {
	expenses store.ExpenseGetter
	exporter sheets.Exporter
	tracker  store.SyncTracker
	logger   *applog.Logger
}

// NewSyncWorker builds a worker. When the store also implements
// store.SyncTracker, exported rows are marked as synced.
func NewSyncWorker(expenses store.ExpenseGetter, exporter sheets.Exporter) *SyncWorker {
	tracker, _ := expenses.(store.SyncTracker)
	return &SyncWorker{
		expenses: expenses,
		exporter: exporter,
		tracker:  tracker,
		logger:   applog.Default().WithComponent(applog.ComponentWorker),
	}
}

// Handle is an amqp.Handler. Returning an error requeues the message.
func (w *SyncWorker) Handle(ctx context.Context, msg *amqp.ExpenseMessage) error {
	switch msg.Type {
	case amqp.MessageTypeSync:
		return w.HandleSyncMessage(ctx, msg)
	case amqp.MessageTypeDelete:
		return w.HandleDeleteMessage(ctx, msg)
	default:
		// ExpenseMessageFromJSON already rejects these; nothing to retry.
		w.logger.WarnContext(ctx, "Ignoring message of unknown type", "type", msg.Type)
		return nil
	}
}

// HandleSyncMessage appends the expense to the sheet. An expense deleted
// before the message arrived, or already exported by the pending-sync
// poller, is skipped.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ExpenseMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		applog.FieldExpenseID, msg.ID,
		applog.FieldOwner, msg.Owner)

	expense, err := w.expenses.GetExpense(ctx, msg.Owner, msg.ID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.WarnContext(ctx, "Expense no longer exists, skipping sync",
			applog.FieldExpenseID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	if w.tracker != nil {
		synced, err := w.tracker.IsSynced(ctx, expense.ID)
		if err != nil {
			return fmt.Errorf("get sync status: %w", err)
		}
		if synced {
			w.logger.InfoContext(ctx, "Expense already exported, skipping",
				applog.FieldExpenseID, expense.ID)
			return nil
		}
	}

	ref, err := w.exporter.Append(ctx, expense)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	if w.tracker != nil {
		if err := w.tracker.MarkSynced(ctx, expense.ID); err != nil {
			// The row is exported; only the bookkeeping failed.
			w.logger.ErrorContext(ctx, "Failed to mark as synced",
				applog.FieldExpenseID, expense.ID, applog.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Successfully synced expense",
		applog.FieldExpenseID, expense.ID,
		"range", ref,
		applog.FieldAmountCents, expense.Amount.Cents)
	return nil
}

// HandleDeleteMessage removes the expense's row from the sheet.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.ExpenseMessage) error {
	w.logger.InfoContext(ctx, "Processing delete message",
		applog.FieldExpenseID, msg.ID,
		applog.FieldMonth, msg.MonthKey)

	if err := w.exporter.DeleteExpense(ctx, msg.ID, msg.MonthKey); err != nil {
		return fmt.Errorf("delete expense from sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully deleted expense from sheets",
		applog.FieldExpenseID, msg.ID)
	return nil
}
