package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewValidationError("File is required."),
			expected: "[VALIDATION] File is required.",
		},
		{
			name:     "with cause",
			err:      NewParsingError("Unable to read XLSX file.", fmt.Errorf("zip: not a valid zip file")),
			expected: "[PARSING] Unable to read XLSX file.: zip: not a valid zip file",
		},
		{
			name:     "integrity",
			err:      NewIntegrityError("Lead ID not found in BASE: 99999"),
			expected: "[INTEGRITY] Lead ID not found in BASE: 99999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewStorageError("save failed", cause)

	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewValidationError("Missing column: VENDIDO").
		WithContext("sheet", "BASE")

	assert.Equal(t, "BASE", err.Context["sheet"])
}

func TestFromAppError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "validation maps to 400",
			err:            NewValidationError("File is required."),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "integrity maps to 400",
			err:            NewIntegrityError("Lead ID not found in BASE: 99999"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INTEGRITY_VIOLATION",
		},
		{
			name:           "parsing maps to 422",
			err:            NewParsingError("Unable to read XLSX file.", nil),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "UNREADABLE_FILE",
		},
		{
			name:           "storage maps to 500",
			err:            NewStorageError("save failed", nil),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_SERVER_ERROR",
		},
		{
			name:           "wrapped app error is unwrapped",
			err:            fmt.Errorf("extract: %w", NewValidationError("Missing sheet: BASE")),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "plain error maps to 500",
			err:            fmt.Errorf("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromAppError(tt.err)
			assert.Equal(t, tt.expectedStatus, apiErr.StatusCode)
			assert.Equal(t, tt.expectedCode, apiErr.ErrorCode)
		})
	}
}
