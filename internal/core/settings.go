package core

import (
	"errors"
	"regexp"
	"time"
)

const DefaultCurrency = "USD"

var (
	ErrInvalidCurrency = errors.New("invalid currency code")

	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Settings are per-owner preferences.
type Settings struct {
	Owner          string    `json:"-"`
	Currency       string    `json:"currency"`
	AutoCategorize bool      `json:"auto_categorize"`
	BudgetAlerts   bool      `json:"budget_alerts"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultSettings returns what an owner gets before saving anything.
func DefaultSettings(owner string) Settings {
	return Settings{
		Owner:          owner,
		Currency:       DefaultCurrency,
		AutoCategorize: true,
		BudgetAlerts:   true,
	}
}

func (s Settings) Validate() error {
	if s.Owner == "" {
		return ErrEmptyOwner
	}
	if !currencyRe.MatchString(s.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}
