package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"spendwise/internal/ai"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

const MaxReceiptBytes = 10 << 20

// ReceiptConfirmation is what the owner accepted after reviewing a scan.
// Total is kept as text so it goes through core.ParseAmount.
type ReceiptConfirmation struct {
	Merchant string
	Total    string
	Date     string
}

type ReceiptService struct {
	reader   ReceiptReader
	expenses *ExpenseService
	logger   *applog.Logger
}

func NewReceiptService(reader ReceiptReader, expenses *ExpenseService) *ReceiptService {
	return &ReceiptService{
		reader:   reader,
		expenses: expenses,
		logger:   applog.Default().WithComponent(applog.ComponentReceipt),
	}
}

// Scan sniffs the upload, rejects anything that is not an image and asks the
// model to read it. The result is returned unverified.
func (s *ReceiptService) Scan(ctx context.Context, owner string, image []byte) (*ai.Receipt, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if len(image) > MaxReceiptBytes {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrImageTooLarge, len(image), MaxReceiptBytes)
	}

	mtype := mimetype.Detect(image)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}
	if s.reader == nil {
		return nil, ai.ErrNotConfigured
	}

	receipt, err := s.reader.ExtractReceipt(ctx, image, mtype.String())
	if err != nil {
		return nil, fmt.Errorf("extract receipt: %w", err)
	}
	s.logger.InfoContext(ctx, "Receipt scanned",
		applog.FieldOwner, owner,
		applog.FieldOperation, applog.OpScan,
		"mime", mtype.String(),
		"items", len(receipt.Items))
	return receipt, nil
}

// Confirm turns a reviewed receipt into an expense in the Other category.
// A missing or unreadable date becomes today.
func (s *ReceiptService) Confirm(ctx context.Context, owner string, c ReceiptConfirmation) (core.Expense, error) {
	if err := requireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	amount, err := core.ParseAmount(c.Total)
	if err != nil {
		return core.Expense{}, err
	}

	date, err := core.ParseDate(c.Date)
	if err != nil {
		date = core.Today()
	}

	merchant := strings.TrimSpace(c.Merchant)
	if merchant == "" {
		merchant = "Unknown merchant"
	}

	return s.expenses.CreateExpense(ctx, owner, NewExpense{
		Description: "Receipt from " + merchant,
		Amount:      amount,
		Category:    core.CategoryOther,
		Date:        date,
	})
}
