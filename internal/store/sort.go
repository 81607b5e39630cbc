package store

import (
	"sort"

	"spendwise/internal/core"
)

// SortNewestFirst orders expenses by date descending, then by creation time
// descending so same-day entries show the latest first.
func SortNewestFirst(expenses []core.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// ApplyLimit truncates expenses to opts.Limit when set.
func ApplyLimit(expenses []core.Expense, opts ListOptions) []core.Expense {
	if opts.Limit > 0 && len(expenses) > opts.Limit {
		return expenses[:opts.Limit]
	}
	return expenses
}
