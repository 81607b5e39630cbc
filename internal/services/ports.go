package services

import (
	"context"

	"spendwise/internal/ai"
	"spendwise/internal/core"
	"spendwise/internal/store"
)

// Ports to the AI delegate and the message bus. *ai.Client and *amqp.Client
// satisfy them.
type (
	Categorizer interface {
		Categorize(ctx context.Context, description string, amount core.Money) (string, error)
	}

	Predictor interface {
		Predict(ctx context.Context, expenses []core.Expense) (*ai.Prediction, error)
	}

	ReceiptReader interface {
		ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*ai.Receipt, error)
	}

	Publisher interface {
		PublishExpenseSync(ctx context.Context, owner, id string) error
		PublishExpenseDelete(ctx context.Context, owner, id, monthKey string) error
	}

	// ExpenseRepository is what ExpenseService needs from a backend.
	ExpenseRepository interface {
		store.ExpenseStore
		store.SettingsStore
	}
)
