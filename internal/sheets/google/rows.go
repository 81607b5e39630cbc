package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"spendwise/internal/core"
)

var columns = []string{"ID", "Owner", "Date", "Month", "Description", "Amount", "Category"}

func headerRow() []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

// expenseRow renders e in column order. The amount is a number so sheet
// formulas can sum it.
func expenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.Owner,
		e.Date.String(),
		e.MonthKey,
		e.Description,
		e.Amount.Decimal().InexactFloat64(),
		e.Category,
	}
}

// sheetTitle returns "<year> <base>" for the year in monthKey. An unreadable
// key falls back to the current year.
func sheetTitle(base, monthKey string) string {
	year := time.Now().Year()
	if t, err := time.Parse(core.MonthKeyLayout, monthKey); err == nil {
		year = t.Year()
	}
	return yearPrefixedName(base, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteTitle quotes a tab name for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// findRow returns the zero-based row whose first cell equals id, or -1.
func findRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i
		}
	}
	return -1
}
