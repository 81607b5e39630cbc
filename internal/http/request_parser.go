// Package http provides the JSON API server and its handlers.
//
// This file implements request decoding: bounded JSON bodies, validated
// DTOs and query parameter parsing shared by the handlers.

package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"spendwise/internal/core"
	"spendwise/internal/services"
	"spendwise/internal/store"
)

const (
	// maxJSONBody bounds every JSON request body. Base64 receipt images are
	// about a third larger than the raw bytes.
	maxJSONBody = services.MaxReceiptBytes*4/3 + 4096

	receiptFormField = "image"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type (
	createExpenseRequest struct {
		Description string     `json:"description" validate:"required,max=200"`
		Amount      amountJSON `json:"amount" validate:"required,max=32"`
		Category    string     `json:"category" validate:"omitempty,max=64"`
		Date        string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}

	categorizeRequest struct {
		Description string     `json:"description" validate:"required,max=200"`
		Amount      amountJSON `json:"amount" validate:"required,max=32"`
	}

	scanReceiptRequest struct {
		Image string `json:"image" validate:"required"`
	}

	confirmReceiptRequest struct {
		Merchant string     `json:"merchant" validate:"omitempty,max=150"`
		Total    amountJSON `json:"total" validate:"required,max=32"`
		Date     string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}

	settingsRequest struct {
		Currency       string `json:"currency" validate:"required,len=3,alpha"`
		AutoCategorize *bool  `json:"auto_categorize" validate:"required"`
		BudgetAlerts   *bool  `json:"budget_alerts" validate:"required"`
	}
)

// amountJSON lets clients send the amount either as a string or as a JSON
// number. Numbers keep their literal text so no float rounding happens.
type amountJSON string

func (a *amountJSON) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*a = amountJSON(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("amount must be a string or a number")
	}
	*a = amountJSON(s)
	return nil
}

// decodeJSON reads a bounded JSON body into dst and validates it. Decoding
// failures wrap errBadRequest; validation failures are
// validator.ValidationErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		default:
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return getValidator().Struct(dst)
}

// parseOptionalDate returns the zero Date for a blank value.
func parseOptionalDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// parseListOptions reads month and limit from the query. Values are passed
// on unchecked except for being numeric; the service validates ranges.
func parseListOptions(r *http.Request) (store.ListOptions, error) {
	q := r.URL.Query()
	opts := store.ListOptions{MonthKey: strings.TrimSpace(q.Get("month"))}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return store.ListOptions{}, fmt.Errorf("%w: %q", services.ErrInvalidLimit, v)
		}
		opts.Limit = limit
	}
	return opts, nil
}

// parseWindow reads the analytics window; 0 means the configured default.
func parseWindow(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("window"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 24 {
		return 0, fmt.Errorf("%w: window must be between 1 and 24", errBadRequest)
	}
	return n, nil
}

// readReceiptImage accepts a multipart upload in the "image" field or a
// JSON body {"image": "<base64 or data URL>"}.
func readReceiptImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, services.MaxReceiptBytes+1<<20)
		if err := r.ParseMultipartForm(services.MaxReceiptBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		file, _, err := r.FormFile(receiptFormField)
		if err != nil {
			return nil, fmt.Errorf("%w: missing %q file", errBadRequest, receiptFormField)
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, services.MaxReceiptBytes+1))
	}

	var req scanReceiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	encoded := req.Image
	if strings.HasPrefix(encoded, "data:") {
		if _, after, ok := strings.Cut(encoded, ","); ok {
			encoded = after
		}
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", errBadRequest)
	}
	return img, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
