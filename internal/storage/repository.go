package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/store"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.Store       = (*SQLiteRepository)(nil)
	_ store.SyncTracker = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, owner, description, amount_cents, category, date, month_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.Description, e.Amount.Cents, e.Category,
		e.Date.String(), e.MonthKey, e.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"amount_cents", e.Amount.Cents,
		"category", e.Category,
		"month", e.MonthKey)
	return e, nil
}

const expenseColumns = `id, owner, description, amount_cents, category, date, month_key, created_at`

func (r *SQLiteRepository) ListExpenses(ctx context.Context, owner string, opts store.ListOptions) ([]core.Expense, error) {
	var (
		sb   strings.Builder
		args = []any{owner}
	)
	sb.WriteString(`SELECT ` + expenseColumns + ` FROM expenses WHERE owner = ?`)
	if opts.MonthKey != "" {
		sb.WriteString(` AND month_key = ?`)
		args = append(args, opts.MonthKey)
	}
	sb.WriteString(` ORDER BY date DESC, created_at DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return scanExpenses(rows)
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND owner = ?`, id, owner)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	e, err := r.GetExpense(ctx, owner, id)
	if err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Expense{}, store.ErrNotFound
	}
	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	return e, nil
}

func (r *SQLiteRepository) GetSettings(ctx context.Context, owner string) (core.Settings, error) {
	var (
		s         = core.Settings{Owner: owner}
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT currency, auto_categorize, budget_alerts, updated_at FROM settings WHERE owner = ?`, owner).
		Scan(&s.Currency, &s.AutoCategorize, &s.BudgetAlerts, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settings{}, store.ErrNotFound
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	s.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return s, nil
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) (core.Settings, error) {
	if err := s.Validate(); err != nil {
		return core.Settings{}, err
	}
	s.UpdatedAt = r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (owner, currency, auto_categorize, budget_alerts, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			currency = excluded.currency,
			auto_categorize = excluded.auto_categorize,
			budget_alerts = excluded.budget_alerts,
			updated_at = excluded.updated_at`,
		s.Owner, s.Currency, s.AutoCategorize, s.BudgetAlerts, s.UpdatedAt.Format(timeLayout))
	if err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) CreateToken(ctx context.Context, t store.APIToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_tokens (id, owner, label, secret_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.Label, t.SecretHash, t.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetToken(ctx context.Context, id string) (store.APIToken, error) {
	var (
		t          = store.APIToken{ID: id}
		createdAt  string
		lastUsedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT owner, label, secret_hash, created_at, last_used_at FROM api_tokens WHERE id = ?`, id).
		Scan(&t.Owner, &t.Label, &t.SecretHash, &createdAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.APIToken{}, store.ErrNotFound
	}
	if err != nil {
		return store.APIToken{}, fmt.Errorf("get token: %w", err)
	}
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if lastUsedAt.Valid {
		if at, err := time.Parse(timeLayout, lastUsedAt.String); err == nil {
			t.LastUsedAt = &at
		}
	}
	return t, nil
}

func (r *SQLiteRepository) TouchToken(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, "touch token",
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, at.UTC().Format(timeLayout), id)
}

func (r *SQLiteRepository) RevokeToken(ctx context.Context, id string) error {
	return r.execOne(ctx, "revoke token", `DELETE FROM api_tokens WHERE id = ?`, id)
}

// PendingSync returns expenses not yet mirrored to the export sheet that were
// created before createdBefore, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, createdBefore time.Time, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE sync_status = 'pending' AND julianday(created_at) <= julianday(?)
		 ORDER BY julianday(created_at) ASC LIMIT ?`,
		createdBefore.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	return scanExpenses(rows)
}

// IsSynced reports whether the expense has been exported.
func (r *SQLiteRepository) IsSynced(ctx context.Context, id string) (bool, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM expenses WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get sync status: %w", err)
	}
	return status == "synced", nil
}

// MarkSynced marks an expense as successfully synced
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	err := r.execOne(ctx, "mark expense synced",
		`UPDATE expenses SET sync_status = 'synced', synced_at = ? WHERE id = ?`,
		r.now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

// MarkSyncError marks an expense as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	err := r.execOne(ctx, "mark expense sync error",
		`UPDATE expenses SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Owner, &e.Description, &e.Amount.Cents, &e.Category, &date, &e.MonthKey, &createdAt); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, err)
	}
	e.Date = d
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return e, nil
}

func scanExpenses(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}
