package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	ports "spendwise/internal/sheets"
)

const sheetIDTTL = 24 * time.Hour

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string // base name; the expense's year is prefixed
	ServiceAccountFile string
	ServiceAccountJSON string
}

// Client mirrors expenses into a spreadsheet, one tab per year
// ("2025 Expenses"). Tabs are created on first use.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	sheetIDs      *cache.LRUCache[int64]
}

// Ensure interface conformance
var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service; tests point it at a fake server.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Expenses"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		sheetIDs:      cache.NewLRUCache[int64](16, sheetIDTTL),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.ServiceAccountFile)
		b, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// Append writes e as a new row in its year's tab.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	title := sheetTitle(c.sheetBase, e.MonthKey)
	if _, err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:G", quoteTitle(title))
	vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}
	// RAW keeps descriptions such as "=SUM(...)" from being evaluated.
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", title, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// DeleteExpense removes the row whose column A equals id.
func (c *Client) DeleteExpense(ctx context.Context, id, monthKey string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := sheetTitle(c.sheetBase, monthKey)
	sheetID, found, err := c.lookupSheet(ctx, title)
	if err != nil {
		return err
	}
	if !found {
		slog.WarnContext(ctx, "Export sheet missing, nothing to delete", "sheet", title, "expense_id", id)
		return nil
	}

	rng := fmt.Sprintf("%s!A:A", quoteTitle(title))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	row := findRow(resp.Values, id)
	if row < 0 {
		slog.WarnContext(ctx, "Expense row not found in sheet", "sheet", title, "expense_id", id)
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row),
			EndIndex:   int64(row + 1),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", row+1, title, err)
	}
	return nil
}

// ensureSheet returns the tab's sheet ID, creating the tab with a header row
// when it does not exist yet.
func (c *Client) ensureSheet(ctx context.Context, title string) (int64, error) {
	return c.sheetIDs.GetOrLoad(ctx, title, func(ctx context.Context) (int64, error) {
		id, found, err := c.findSheet(ctx, title)
		if err != nil || found {
			return id, err
		}
		return c.addSheet(ctx, title)
	})
}

func (c *Client) lookupSheet(ctx context.Context, title string) (int64, bool, error) {
	if id, ok := c.sheetIDs.Get(title); ok {
		return id, true, nil
	}
	id, found, err := c.findSheet(ctx, title)
	if err == nil && found {
		c.sheetIDs.Set(title, id)
	}
	return id, found, err
}

func (c *Client) findSheet(ctx context.Context, title string) (int64, bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return sh.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) addSheet(ctx context.Context, title string) (int64, error) {
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}

	header := &gsheet.ValueRange{Values: [][]any{headerRow()}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("%s!A1:G1", quoteTitle(title)), header).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("write header in %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Created export sheet", "sheet", title)
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}
