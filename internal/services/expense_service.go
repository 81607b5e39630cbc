package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spendwise/internal/ai"
	"spendwise/internal/cache"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/store"
)

const (
	suggestionCacheSize = 500
	suggestionTTL       = time.Hour
)

// NewExpense is a create request after the HTTP layer parsed its fields.
// A zero Date means today; a blank Category asks the AI delegate.
type NewExpense struct {
	Description string
	Amount      core.Money
	Category    string
	Date        core.Date
}

// Suggestion pairs the normalized category with what the model replied.
type Suggestion struct {
	Category   string `json:"category"`
	Suggestion string `json:"suggestion"`
}

// ExpenseService orchestrates expense writes across the store, the AI
// delegate and the export queue.
type ExpenseService struct {
	repo        ExpenseRepository
	categorizer Categorizer
	publisher   Publisher
	aiTimeout   time.Duration
	suggestions *cache.LRUCache[Suggestion]
	logger      *applog.Logger
}

// NewExpenseService wires the service. categorizer and publisher may be nil:
// expenses then land in Other and nothing is published.
func NewExpenseService(repo ExpenseRepository, categorizer Categorizer, publisher Publisher, aiTimeout time.Duration) *ExpenseService {
	if aiTimeout <= 0 {
		aiTimeout = ai.DefaultTimeout
	}
	return &ExpenseService{
		repo:        repo,
		categorizer: categorizer,
		publisher:   publisher,
		aiTimeout:   aiTimeout,
		suggestions: cache.NewLRUCache[Suggestion](suggestionCacheSize, suggestionTTL),
		logger:      applog.Default().WithComponent(applog.ComponentExpense),
	}
}

// Suggestions exposes the suggestion cache so a cache.Manager can sweep it.
func (s *ExpenseService) Suggestions() *cache.LRUCache[Suggestion] {
	return s.suggestions
}

// CreateExpense validates and stores an expense, then asks the worker to
// export it. A failed AI call or publish never fails the write.
func (s *ExpenseService) CreateExpense(ctx context.Context, owner string, in NewExpense) (core.Expense, error) {
	if err := requireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = core.Today()
	}

	category := strings.TrimSpace(in.Category)
	e := core.NewExpense(owner, in.Description, in.Amount, category, date)
	if category == "" {
		// Validate with a placeholder first so bad input never reaches the model.
		e.Category = core.CategoryOther
		if err := e.Validate(); err != nil {
			return core.Expense{}, err
		}
		e.Category = s.autoCategory(ctx, owner, e.Description, e.Amount)
	}

	saved, err := s.repo.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	applog.NewStructuredLogger(s.logger).LogExpenseCreated(ctx, owner, saved.ID, saved.Amount.Cents, saved.Category, saved.MonthKey)

	if err := s.publishSync(ctx, owner, saved.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			applog.FieldExpenseID, saved.ID, applog.FieldError, err)
	}
	return saved, nil
}

// autoCategory returns the model's category when the owner allows it, and
// Other on any failure.
func (s *ExpenseService) autoCategory(ctx context.Context, owner, description string, amount core.Money) string {
	if s.categorizer == nil {
		return core.CategoryOther
	}
	settings, err := s.settings(ctx, owner)
	if err != nil {
		s.logger.WarnContext(ctx, "Settings unavailable, using defaults",
			applog.FieldOwner, owner, applog.FieldError, err)
		settings = core.DefaultSettings(owner)
	}
	if !settings.AutoCategorize {
		return core.CategoryOther
	}

	ctx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()
	raw, err := s.categorizer.Categorize(ctx, description, amount)
	if err != nil {
		s.logger.WarnContext(ctx, "Auto-categorization failed, falling back",
			applog.FieldOperation, applog.OpCategorize, applog.FieldError, err)
		return core.CategoryOther
	}
	return core.NormalizeCategory(raw)
}

func (s *ExpenseService) settings(ctx context.Context, owner string) (core.Settings, error) {
	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()
	st, err := s.repo.GetSettings(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return core.DefaultSettings(owner), nil
	}
	return st, err
}

// DeleteExpense removes one of the owner's expenses. Someone else's expense
// is reported as store.ErrNotFound.
func (s *ExpenseService) DeleteExpense(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteExpense(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.publishDelete(ctx, owner, deleted.ID, deleted.MonthKey); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish delete message",
			applog.FieldExpenseID, id, applog.FieldError, err)
	}
	return nil
}

// ListExpenses returns the owner's expenses, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, owner string, opts store.ListOptions) ([]core.Expense, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if opts.MonthKey != "" {
		if _, err := time.Parse(core.MonthKeyLayout, opts.MonthKey); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMonth, opts.MonthKey)
		}
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, opts.Limit)
	}

	ctx, cancel := withStoreTimeout(ctx)
	defer cancel()
	return s.repo.ListExpenses(ctx, owner, opts)
}

// SuggestCategory asks the model for a category without storing anything.
// Answers are memoised per description and amount.
func (s *ExpenseService) SuggestCategory(ctx context.Context, description string, amount core.Money) (Suggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Suggestion{}, core.ErrEmptyDescription
	}
	if err := amount.Validate(); err != nil {
		return Suggestion{}, err
	}
	if s.categorizer == nil {
		return Suggestion{}, ai.ErrNotConfigured
	}

	key := strings.ToLower(description) + "|" + amount.String()
	return s.suggestions.GetOrLoad(ctx, key, func(ctx context.Context) (Suggestion, error) {
		ctx, cancel := context.WithTimeout(ctx, s.aiTimeout)
		defer cancel()
		raw, err := s.categorizer.Categorize(ctx, description, amount)
		if err != nil {
			return Suggestion{}, err
		}
		return Suggestion{Category: core.NormalizeCategory(raw), Suggestion: raw}, nil
	})
}

func (s *ExpenseService) publishSync(ctx context.Context, owner, id string) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishExpenseSync(ctx, owner, id)
}

func (s *ExpenseService) publishDelete(ctx context.Context, owner, id, monthKey string) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping delete message")
		return nil
	}
	return s.publisher.PublishExpenseDelete(ctx, owner, id, monthKey)
}
