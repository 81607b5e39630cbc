package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "spendwise/internal/log"
	"spendwise/internal/sheets"
	"spendwise/internal/store"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending expenses (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of expenses exported per poll (default: 10)
	BatchSize int

	// MaxRetries is how many failed exports mark an expense as errored (default: 3)
	MaxRetries int

	// GracePeriod is how old a pending expense must be before the poller
	// exports it. Younger rows belong to the queue consumer. Defaults to
	// PollInterval.
	GracePeriod time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
		GracePeriod:  30 * time.Second,
	}
}

// SyncProcessor exports expenses the store still reports as pending once
// they are older than the grace period. It catches rows whose queue message
// was never published, for instance while the broker was down.
type SyncProcessor struct {
	tracker store.SyncTracker
	sheets  sheets.ExpenseWriter
	config  SyncProcessorConfig
	logger  *applog.Logger

	// attempts counts failed exports per expense since the processor started.
	attempts map[string]int
	now      func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(tracker store.SyncTracker, writer sheets.ExpenseWriter, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = config.PollInterval
	}
	return &SyncProcessor{
		tracker:  tracker,
		sheets:   writer,
		config:   config,
		logger:   applog.Default().WithComponent(applog.ComponentWorker),
		attempts: make(map[string]int),
		now:      time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch exports one batch of pending expenses and returns how many
// were exported.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	cutoff := p.now().Add(-p.config.GracePeriod)
	pending, err := p.tracker.PendingSync(ctx, cutoff, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to read pending expenses", applog.FieldError, err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing sync batch", "count", len(pending))

	exported := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			return exported
		}

		ref, err := p.sheets.Append(ctx, e)
		if err != nil {
			p.handleFailure(ctx, e.ID, err)
			continue
		}
		delete(p.attempts, e.ID)
		exported++

		if err := p.tracker.MarkSynced(ctx, e.ID); err != nil {
			// The row is in the sheet; only the bookkeeping failed.
			p.logger.WarnContext(ctx, "Failed to mark expense as synced",
				applog.FieldExpenseID, e.ID, applog.FieldError, err)
			continue
		}
		p.logger.InfoContext(ctx, "Exported pending expense",
			applog.FieldExpenseID, e.ID, "range", ref)
	}
	return exported
}

func (p *SyncProcessor) handleFailure(ctx context.Context, id string, exportErr error) {
	p.attempts[id]++
	attempt := p.attempts[id]

	p.logger.WarnContext(ctx, "Export failed",
		applog.FieldExpenseID, id,
		applog.FieldAttempt, attempt,
		applog.FieldError, exportErr)

	if attempt < p.config.MaxRetries {
		return
	}
	delete(p.attempts, id)
	if err := p.tracker.MarkSyncError(ctx, id); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark expense sync error",
			applog.FieldExpenseID, id, applog.FieldError, err)
		return
	}
	p.logger.ErrorContext(ctx, "Expense export failed permanently after max retries",
		applog.FieldExpenseID, id, applog.FieldAttempt, attempt)
}
