package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"spendwise/internal/ai"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
	"spendwise/internal/store"
)

// errBadRequest marks input that could not be decoded at all.
var errBadRequest = errors.New("malformed request")

var unprocessable = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrEmptyCategory,
	core.ErrMonthKeyMismatch,
	core.ErrFieldTooLong,
	core.ErrInvalidCurrency,
	services.ErrInvalidMonth,
	services.ErrInvalidLimit,
	services.ErrNoExpenses,
	services.ErrEmptyImage,
	services.ErrImageTooLarge,
	services.ErrUnsupportedMedia,
}

// statusFor maps a service error to its HTTP status and the message safe
// to show the caller.
func statusFor(err error) (int, string) {
	var validationErrs validator.ValidationErrors
	var apiErr *ai.APIError

	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &validationErrs):
		return http.StatusUnprocessableEntity, describeValidation(validationErrs)
	case errors.Is(err, services.ErrNoOwner):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "ai delegate failed"
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, ai.ErrEmptyResponse), errors.Is(err, ai.ErrNoStructuredData):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timed out"
	}
	for _, target := range unprocessable {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// respondError logs err and writes the mapped status.
func respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogRequestFailed(r.Context(), op, status, errorType(status), err)
	writeError(w, status, msg)
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return applog.ErrorTypeValidation
	case http.StatusUnauthorized:
		return applog.ErrorTypeAuth
	case http.StatusNotFound:
		return applog.ErrorTypeNotFound
	case http.StatusBadGateway:
		return applog.ErrorTypeUpstream
	case http.StatusGatewayTimeout:
		return applog.ErrorTypeTimeout
	default:
		return applog.ErrorTypeInternal
	}
}

// describeValidation renders the first failed field the way a client
// would name it.
func describeValidation(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len":
		return fe.Field() + " must be exactly " + fe.Param() + " characters"
	case "datetime":
		return fe.Field() + " must be a date formatted YYYY-MM-DD"
	default:
		return fe.Field() + " is invalid"
	}
}
