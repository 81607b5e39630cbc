package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire and storage format of an expense date.
	DateLayout = "2006-01-02"
	// MonthKeyLayout is the layout of Expense.MonthKey.
	MonthKeyLayout = "2006-01"

	MaxDescriptionLen = 200
	MaxCategoryLen    = 64
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a single owner-scoped spending record.
	Expense struct {
		ID          string    `json:"id"`
		Owner       string    `json:"-"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Date        Date      `json:"date"`
		MonthKey    string    `json:"month"` // YYYY-MM, always derived from Date
		CreatedAt   time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyOwner       = errors.New("empty owner")
	ErrMonthKeyMismatch = errors.New("month key does not match date")
	ErrFieldTooLong     = errors.New("field too long")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Today returns the current UTC calendar date.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM bucket the date falls into.
func (d Date) MonthKey() string {
	return d.Format(MonthKeyLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewExpense builds an expense with its month key derived from the date.
func NewExpense(owner, description string, amount Money, category string, date Date) Expense {
	return Expense{
		Owner:       owner,
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Category:    strings.TrimSpace(category),
		Date:        date,
		MonthKey:    date.MonthKey(),
	}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return ErrEmptyOwner
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.MonthKey != e.Date.MonthKey() {
		return fmt.Errorf("%w: %s vs %s", ErrMonthKeyMismatch, e.MonthKey, e.Date.MonthKey())
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len([]rune(e.Description)) > MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrFieldTooLong, MaxDescriptionLen)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len([]rune(e.Category)) > MaxCategoryLen {
		return fmt.Errorf("%w: category exceeds %d characters", ErrFieldTooLong, MaxCategoryLen)
	}
	return nil
}
