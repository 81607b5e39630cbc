// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

type Store struct {
	mu       sync.Mutex
	items    []core.Expense
	settings map[string]core.Settings
	tokens   map[string]store.APIToken
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		settings: make(map[string]core.Settings),
		tokens:   make(map[string]store.APIToken),
		now:      time.Now,
	}
}

// NewFromFiles seeds the store from <base>/seed_expenses.txt when present.
// Each non-comment line is "owner|YYYY-MM-DD|amount|category|description";
// malformed lines are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_expenses.txt")) {
		e, ok := parseSeedLine(line)
		if !ok {
			continue
		}
		_, _ = s.CreateExpense(context.Background(), e)
	}
	return s
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = s.now().UTC()
	s.items = append(s.items, e)
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, owner string, opts store.ListOptions) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0)
	for _, e := range s.items {
		if e.Owner != owner {
			continue
		}
		if opts.MonthKey != "" && e.MonthKey != opts.MonthKey {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	store.SortNewestFirst(out)
	return store.ApplyLimit(out, opts), nil
}

func (s *Store) GetExpense(_ context.Context, owner, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.ID == id && e.Owner == owner {
			return e, nil
		}
	}
	return core.Expense{}, store.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, owner, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.items {
		if e.ID == id && e.Owner == owner {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return e, nil
		}
	}
	return core.Expense{}, store.ErrNotFound
}

func (s *Store) GetSettings(_ context.Context, owner string) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[owner]
	if !ok {
		return core.Settings{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, st core.Settings) (core.Settings, error) {
	if err := st.Validate(); err != nil {
		return core.Settings{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = s.now().UTC()
	s.settings[st.Owner] = st
	return st, nil
}

func (s *Store) CreateToken(_ context.Context, t store.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.tokens[t.ID] = t
	return nil
}

func (s *Store) GetToken(_ context.Context, id string) (store.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return store.APIToken{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) TouchToken(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return store.ErrNotFound
	}
	t.LastUsedAt = &at
	s.tokens[id] = t
	return nil
}

func (s *Store) RevokeToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func parseSeedLine(line string) (core.Expense, bool) {
	parts := strings.SplitN(line, "|", 5)
	if len(parts) != 5 {
		return core.Expense{}, false
	}
	date, err := core.ParseDate(parts[1])
	if err != nil {
		return core.Expense{}, false
	}
	amount, err := core.ParseAmount(parts[2])
	if err != nil {
		return core.Expense{}, false
	}
	e := core.NewExpense(strings.TrimSpace(parts[0]), parts[4], amount, parts[3], date)
	return e, e.Validate() == nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
