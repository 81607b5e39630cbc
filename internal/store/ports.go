// Package store declares the persistence ports. Every call carries the
// owner explicitly; implementations never return another owner's rows.
package store

import (
	"context"
	"errors"
	"time"

	"spendwise/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
)

// ListOptions narrows ListExpenses. Zero values mean "no filter".
type ListOptions struct {
	MonthKey string // YYYY-MM
	Limit    int
}

// APIToken is a stored personal access token. Only the bcrypt hash of the
// secret is ever persisted.
type APIToken struct {
	ID         string
	Owner      string
	Label      string
	SecretHash []byte
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type (
	ExpenseWriter interface {
		// CreateExpense assigns ID and CreatedAt and returns the stored row.
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	}

	ExpenseLister interface {
		// ListExpenses returns the owner's expenses, newest date first.
		ListExpenses(ctx context.Context, owner string, opts ListOptions) ([]core.Expense, error)
	}

	ExpenseGetter interface {
		GetExpense(ctx context.Context, owner, id string) (core.Expense, error)
	}

	ExpenseDeleter interface {
		// DeleteExpense returns the removed row, or ErrNotFound.
		DeleteExpense(ctx context.Context, owner, id string) (core.Expense, error)
	}

	SettingsStore interface {
		// GetSettings returns ErrNotFound when the owner never saved any.
		GetSettings(ctx context.Context, owner string) (core.Settings, error)
		SaveSettings(ctx context.Context, s core.Settings) (core.Settings, error)
	}

	TokenStore interface {
		CreateToken(ctx context.Context, t APIToken) error
		GetToken(ctx context.Context, id string) (APIToken, error)
		TouchToken(ctx context.Context, id string, at time.Time) error
		RevokeToken(ctx context.Context, id string) error
	}

	ExpenseStore interface {
		ExpenseWriter
		ExpenseLister
		ExpenseGetter
		ExpenseDeleter
	}

	// Store is everything a backend provides.
	Store interface {
		ExpenseStore
		SettingsStore
		TokenStore
		Ping(ctx context.Context) error
		Close() error
	}
)

// SyncTracker is implemented by stores that remember which expenses have
// been mirrored to the export sheet.
type SyncTracker interface {
	// PendingSync returns unexported expenses created before cutoff, oldest
	// first.
	PendingSync(ctx context.Context, createdBefore time.Time, limit int) ([]core.Expense, error)
	// IsSynced reports whether the expense already has a row in the sheet.
	IsSynced(ctx context.Context, id string) (bool, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}
