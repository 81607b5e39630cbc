package services

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoOwner                = errors.New("owner is required")
	ErrInvalidMonth           = errors.New("invalid month, expected YYYY-MM")
	ErrInvalidLimit           = errors.New("invalid limit")
	ErrNoExpenses             = errors.New("no expenses to analyse")
	ErrPredictionsUnavailable = errors.New("predictions unavailable")
	ErrEmptyImage             = errors.New("empty image")
	ErrImageTooLarge          = errors.New("image too large")
	ErrUnsupportedMedia       = errors.New("unsupported media type")
)

// storeTimeout bounds every store read issued by a service.
const storeTimeout = 7 * time.Second

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrNoOwner
	}
	return nil
}

func withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}
