package services

import (
	"context"
	"errors"
	"fmt"

	"spendwise/internal/ai"
	applog "spendwise/internal/log"
	"spendwise/internal/store"
)

type PredictionService struct {
	lister    store.ExpenseLister
	predictor Predictor
	logger    *applog.Logger
}

func NewPredictionService(lister store.ExpenseLister, predictor Predictor) *PredictionService {
	return &PredictionService{
		lister:    lister,
		predictor: predictor,
		logger:    applog.Default().WithComponent(applog.ComponentPrediction),
	}
}

// Predict sends the owner's full history to the model. A reply without
// usable JSON is reported as ErrPredictionsUnavailable.
func (s *PredictionService) Predict(ctx context.Context, owner string) (*ai.Prediction, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if s.predictor == nil {
		return nil, ai.ErrNotConfigured
	}

	readCtx, cancel := withStoreTimeout(ctx)
	records, err := s.lister.ListExpenses(readCtx, owner, store.ListOptions{})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoExpenses
	}

	prediction, err := s.predictor.Predict(ctx, records)
	if errors.Is(err, ai.ErrNoStructuredData) {
		s.logger.WarnContext(ctx, "Prediction reply had no structured data",
			applog.FieldOwner, owner, applog.FieldError, err)
		return nil, fmt.Errorf("%w: %v", ErrPredictionsUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return prediction, nil
}
