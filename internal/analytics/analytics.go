// Package analytics computes the derived spending views: totals per
// category, totals per calendar month and the headline insights built on
// top of both. Every function here is pure and never fails; inputs are
// assumed to have passed core.Expense validation at write time.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

// DefaultWindow is the number of trailing months shown when none is requested.
const DefaultWindow = 6

const labelLayout = "Jan 2006"

type (
	CategoryTotal struct {
		Category string     `json:"category"`
		Total    core.Money `json:"total"`
	}

	MonthlyTotal struct {
		MonthKey string     `json:"month"`
		Label    string     `json:"label"`
		Total    core.Money `json:"total"`
	}

	Insights struct {
		TopCategory   *CategoryTotal `json:"top_category"`
		CategoryCount int            `json:"category_count"`
		// MoMChange is the percentage change of the latest month against the
		// previous one, rounded to one decimal. Nil when undefined.
		MoMChange *float64 `json:"mom_change"`
	}

	Dashboard struct {
		HasData    bool            `json:"has_data"`
		Categories []CategoryTotal `json:"categories"`
		Months     []MonthlyTotal  `json:"months"`
		Insights   *Insights       `json:"insights"`
	}
)

// CategoryTotals sums amounts per exact category string. The result is
// ordered by total descending; equal totals keep the order in which their
// category first appeared in records.
func CategoryTotals(records []core.Expense) []CategoryTotal {
	out := make([]CategoryTotal, 0)
	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Category]
		if !ok {
			i = len(out)
			index[r.Category] = i
			out = append(out, CategoryTotal{Category: r.Category})
		}
		out[i].Total = out[i].Total.Add(r.Amount)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Total.Cents > out[b].Total.Cents
	})
	return out
}

// MonthlyTotals sums amounts per MonthKey, sorts ascending and keeps only the
// last windowSize months. windowSize <= 0 means DefaultWindow.
func MonthlyTotals(records []core.Expense, windowSize int) []MonthlyTotal {
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	sums := make(map[string]core.Money)
	for _, r := range records {
		sums[r.MonthKey] = sums[r.MonthKey].Add(r.Amount)
	}
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	// YYYY-MM sorts chronologically as a string.
	sort.Strings(keys)
	if len(keys) > windowSize {
		keys = keys[len(keys)-windowSize:]
	}
	out := make([]MonthlyTotal, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthlyTotal{
			MonthKey: k,
			Label:    MonthLabel(k),
			Total:    sums[k],
		})
	}
	return out
}

// MonthLabel turns "2025-01" into "Jan 2025". Unparseable keys are returned as is.
func MonthLabel(monthKey string) string {
	t, err := time.Parse(core.MonthKeyLayout, monthKey)
	if err != nil {
		return monthKey
	}
	return t.Format(labelLayout)
}

// DeriveInsights computes the headline numbers. categories must be the output
// of CategoryTotals and months the output of MonthlyTotals.
func DeriveInsights(categories []CategoryTotal, months []MonthlyTotal) Insights {
	ins := Insights{CategoryCount: len(categories)}

	for i := range categories {
		if ins.TopCategory == nil || categories[i].Total.Cents > ins.TopCategory.Total.Cents {
			top := categories[i]
			ins.TopCategory = &top
		}
	}

	if n := len(months); n >= 2 {
		prev := months[n-2].Total
		latest := months[n-1].Total
		if prev.Cents != 0 {
			change := latest.Decimal().Sub(prev.Decimal()).
				Div(prev.Decimal()).
				Mul(decimal.NewFromInt(100)).
				Round(1)
			f := change.InexactFloat64()
			ins.MoMChange = &f
		}
	}
	return ins
}

// BuildDashboard composes the three views. Without records the dashboard is
// in its "no data" state: HasData is false and Insights is nil.
func BuildDashboard(records []core.Expense, windowSize int) Dashboard {
	cats := CategoryTotals(records)
	months := MonthlyTotals(records, windowSize)
	d := Dashboard{
		HasData:    len(records) > 0,
		Categories: cats,
		Months:     months,
	}
	if d.HasData {
		ins := DeriveInsights(cats, months)
		d.Insights = &ins
	}
	return d
}
