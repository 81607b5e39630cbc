package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

type fakeTracker struct {
	mu      sync.Mutex
	pending []core.Expense
	synced  []string
	errored []string
}

func (f *fakeTracker) PendingSync(_ context.Context, createdBefore time.Time, limit int) ([]core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Expense
	for _, e := range f.pending {
		if len(out) == limit {
			break
		}
		if e.CreatedAt.After(createdBefore) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeTracker) IsSynced(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.synced {
		if s == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTracker) remove(id string) {
	for i, e := range f.pending {
		if e.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

func (f *fakeTracker) MarkSynced(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, id)
	f.remove(id)
	return nil
}

func (f *fakeTracker) MarkSyncError(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored = append(f.errored, id)
	f.remove(id)
	return nil
}

type fakeWriter struct {
	mu      sync.Mutex
	failFor map[string]bool
	rows    []string
}

func (w *fakeWriter) Append(_ context.Context, e core.Expense) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failFor[e.ID] {
		return "", errBoom
	}
	w.rows = append(w.rows, e.ID)
	return "Expenses!A2:G2", nil
}

func pendingExpense(id string) core.Expense {
	e := core.NewExpense("alice", "x", core.Money{Cents: 1}, "Other", core.NewDate(2025, 1, 1))
	e.ID = id
	return e
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	assert.Equal(t, 30*time.Second, config.PollInterval)
	assert.Equal(t, 10, config.BatchSize)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 30*time.Second, config.GracePeriod)

	p := NewSyncProcessor(&fakeTracker{}, &fakeWriter{}, SyncProcessorConfig{})
	assert.Equal(t, config, p.config)
}

func TestSyncProcessor_ProcessBatch(t *testing.T) {
	tracker := &fakeTracker{pending: []core.Expense{pendingExpense("a"), pendingExpense("b"), pendingExpense("c")}}
	writer := &fakeWriter{failFor: map[string]bool{"b": true}}
	p := NewSyncProcessor(tracker, writer, SyncProcessorConfig{BatchSize: 10, MaxRetries: 2})
	ctx := context.Background()

	assert.Equal(t, 2, p.ProcessBatch(ctx))
	assert.Equal(t, []string{"a", "c"}, writer.rows)
	assert.Equal(t, []string{"a", "c"}, tracker.synced)
	assert.Empty(t, tracker.errored, "first failure is retried")

	assert.Equal(t, 0, p.ProcessBatch(ctx))
	assert.Equal(t, []string{"b"}, tracker.errored)
	assert.Empty(t, tracker.pending)
}

func TestSyncProcessor_LeavesFreshExpensesToConsumer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := pendingExpense("fresh")
	fresh.CreatedAt = now.Add(-10 * time.Second)
	stale := pendingExpense("stale")
	stale.CreatedAt = now.Add(-2 * time.Minute)

	tracker := &fakeTracker{pending: []core.Expense{stale, fresh}}
	writer := &fakeWriter{}
	p := NewSyncProcessor(tracker, writer, SyncProcessorConfig{GracePeriod: time.Minute})
	p.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, 1, p.ProcessBatch(ctx))
	assert.Equal(t, []string{"stale"}, writer.rows)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, p.ProcessBatch(ctx))
	assert.Equal(t, []string{"stale", "fresh"}, writer.rows)
}

func TestSyncProcessor_StartStop(t *testing.T) {
	tracker := &fakeTracker{pending: []core.Expense{pendingExpense("a")}}
	writer := &fakeWriter{}
	p := NewSyncProcessor(tracker, writer, SyncProcessorConfig{PollInterval: 10 * time.Millisecond})
	ctx := context.Background()

	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start must fail")
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return len(tracker.synced) == 1
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(stopCtx), "stopping twice is a no-op")
}
