package apierror

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Code identifies a class of failure returned to API clients.
type Code string

const (
	CodeValidation          Code = "VALIDATION_FAILED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotEligible         Code = "NOT_ELIGIBLE"
	CodeAlreadyProcessed    Code = "ALREADY_PROCESSED"
	CodeBookingTaken        Code = "BOOKING_ALREADY_TAKEN"
	CodeOfferExpired        Code = "OFFER_EXPIRED"
	CodeDuplicatePayment    Code = "DUPLICATE_PAYMENT"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeActiveWithdrawal    Code = "ACTIVE_WITHDRAWAL_EXISTS"
	CodeProvider            Code = "PROVIDER_ERROR"
	CodeInternal            Code = "INTERNAL"
)

// APIError is the structured error surfaced by service methods.
type APIError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an APIError.
func New(code Code, message string, details interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details}
}

// Validation wraps an ozzo-validation result. Field errors become the details map.
func Validation(err error) *APIError {
	var fields validation.Errors
	if errors.As(err, &fields) {
		details := make(map[string]string, len(fields))
		for k, v := range fields {
			if v != nil {
				details[k] = v.Error()
			}
		}
		return New(CodeValidation, "request validation failed", details)
	}
	return New(CodeValidation, err.Error(), nil)
}

// As extracts an APIError from err.
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code == code
}

// IsConflict reports whether err is an expected race or idempotency outcome.
func IsConflict(err error) bool {
	return HTTPStatus(err) == http.StatusConflict
}

// HTTPStatus maps an error to the status code the HTTP layer writes.
func HTTPStatus(err error) int {
	apiErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden, CodeNotEligible:
		return http.StatusForbidden
	case CodeAlreadyProcessed, CodeBookingTaken, CodeOfferExpired, CodeDuplicatePayment,
		CodeInvalidTransition, CodeInsufficientBalance, CodeActiveWithdrawal:
		return http.StatusConflict
	case CodeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
