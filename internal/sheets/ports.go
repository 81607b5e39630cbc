package sheets

import (
	"context"

	"spendwise/internal/core"
)

// Ports for the export sheet.
type (
	ExpenseWriter interface {
		// Append adds one row for e and returns the updated range.
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	ExpenseDeleter interface {
		// DeleteExpense removes the row whose ID column equals id from the
		// sheet holding monthKey. A missing row is not an error.
		DeleteExpense(ctx context.Context, id, monthKey string) error
	}

	Exporter interface {
		ExpenseWriter
		ExpenseDeleter
	}
)
