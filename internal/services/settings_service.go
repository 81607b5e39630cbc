package services

import (
	"context"
	"errors"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

type SettingsService struct {
	store store.SettingsStore
}

func NewSettingsService(s store.SettingsStore) *SettingsService {
	return &SettingsService{store: s}
}

// Get returns the owner's settings, or the defaults if none were saved.
func (s *SettingsService) Get(ctx context.Context, owner string) (core.Settings, error) {
	if err := requireOwner(owner); err != nil {
		return core.Settings{}, err
	}
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()

	st, err := s.store.GetSettings(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return core.DefaultSettings(owner), nil
	}
	return st, err
}

// Update replaces the owner's settings. The currency code is upper-cased
// before validation.
func (s *SettingsService) Update(ctx context.Context, owner string, in core.Settings) (core.Settings, error) {
	if err := requireOwner(owner); err != nil {
		return core.Settings{}, err
	}
	in.Owner = owner
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := in.Validate(); err != nil {
		return core.Settings{}, err
	}
	return s.store.SaveSettings(ctx, in)
}
