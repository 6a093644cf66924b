package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"

	"fixitBack/internal/apierror"
)

func TestNew(t *testing.T) {
	err := apierror.New(apierror.CodeBookingTaken, "booking already assigned", nil)
	assert.Equal(t, "BOOKING_ALREADY_TAKEN: booking already assigned", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", apierror.New(apierror.CodeValidation, "bad", nil), http.StatusBadRequest},
		{"not found", apierror.New(apierror.CodeNotFound, "missing", nil), http.StatusNotFound},
		{"not eligible", apierror.New(apierror.CodeNotEligible, "offline", nil), http.StatusForbidden},
		{"race lost", apierror.New(apierror.CodeBookingTaken, "taken", nil), http.StatusConflict},
		{"stale offer", apierror.New(apierror.CodeAlreadyProcessed, "done", nil), http.StatusConflict},
		{"provider", apierror.New(apierror.CodeProvider, "gateway down", nil), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("accept: %w", apierror.New(apierror.CodeOfferExpired, "late", nil)), http.StatusConflict},
		{"plain", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.HTTPStatus(tt.err))
		})
	}
}

func TestValidationDetails(t *testing.T) {
	req := struct{ Amount int }{Amount: 0}
	err := validation.ValidateStruct(&req, validation.Field(&req.Amount, validation.Required))
	apiErr := apierror.Validation(err)
	assert.Equal(t, apierror.CodeValidation, apiErr.Code)
	details, ok := apiErr.Details.(map[string]string)
	assert.True(t, ok)
	assert.Contains(t, details, "Amount")
}

func TestConflictHelpers(t *testing.T) {
	err := fmt.Errorf("wrap: %w", apierror.New(apierror.CodeBookingTaken, "taken", nil))
	assert.True(t, apierror.IsConflict(err))
	assert.True(t, apierror.HasCode(err, apierror.CodeBookingTaken))
	assert.False(t, apierror.HasCode(err, apierror.CodeAlreadyProcessed))
}
