package services

import (
	"context"
	"fmt"

	"spendwise/internal/analytics"
	"spendwise/internal/store"
)

// AnalyticsService computes dashboard views from a fresh read of the owner's
// expenses. Nothing is cached between calls.
type AnalyticsService struct {
	lister        store.ExpenseLister
	defaultWindow int
}

func NewAnalyticsService(lister store.ExpenseLister, defaultWindow int) *AnalyticsService {
	if defaultWindow <= 0 {
		defaultWindow = analytics.DefaultWindow
	}
	return &AnalyticsService{lister: lister, defaultWindow: defaultWindow}
}

// Dashboard returns category totals, the trailing monthly window and the
// insights for owner. window <= 0 uses the configured default.
func (s *AnalyticsService) Dashboard(ctx context.Context, owner string, window int) (analytics.Dashboard, error) {
	if err := requireOwner(owner); err != nil {
		return analytics.Dashboard{}, err
	}
	if window <= 0 {
		window = s.defaultWindow
	}

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()
	records, err := s.lister.ListExpenses(ctx, owner, store.ListOptions{})
	if err != nil {
		return analytics.Dashboard{}, fmt.Errorf("list expenses: %w", err)
	}
	return analytics.BuildDashboard(records, window), nil
}
