package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		want     string
	}{
		{
			name: "simple message",
			apiError: &APIError{
				StatusCode: http.StatusBadRequest,
				ErrorCode:  "INVALID_REQUEST",
				Message:    "Invalid request format",
			},
			want: "Invalid request format",
		},
		{
			name: "empty message",
			apiError: &APIError{
				StatusCode: http.StatusInternalServerError,
				ErrorCode:  "INTERNAL_ERROR",
				Message:    "",
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.apiError.Error()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIError_Render(t *testing.T) {
	tests := []struct {
		name       string
		apiError   *APIError
		wantStatus int
	}{
		{
			name: "bad request error",
			apiError: &APIError{
				StatusCode: http.StatusBadRequest,
				ErrorCode:  "INVALID_REQUEST",
				Message:    "Invalid request format",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "internal server error",
			apiError: &APIError{
				StatusCode: http.StatusInternalServerError,
				ErrorCode:  "INTERNAL_ERROR",
				Message:    "Internal server error",
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "not found error",
			apiError: &APIError{
				StatusCode: http.StatusNotFound,
				ErrorCode:  "NOT_FOUND",
				Message:    "Resource not found",
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)

			err := tt.apiError.Render(w, r)
			assert.NoError(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	got := New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

	assert.Equal(t, http.StatusBadRequest, got.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", got.ErrorCode)
	assert.Equal(t, "Invalid request format", got.Message)
	assert.Nil(t, got.Details)
}

func TestNewWithDetails(t *testing.T) {
	details := map[string]string{"field": "symbol"}
	got := NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", details)

	assert.Equal(t, http.StatusBadRequest, got.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", got.ErrorCode)
	assert.Equal(t, details, got.Details)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantStatus int
		wantCode   string
	}{
		{"invalid request", ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{"validation failed", ErrValidationFailed, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing parameter", ErrMissingParameter, http.StatusBadRequest, "MISSING_PARAMETER"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"not found", ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", ErrConflict, http.StatusConflict, "CONFLICT"},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{"internal", ErrInternalServer, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"operation failed", ErrOperationFailed, http.StatusInternalServerError, "OPERATION_FAILED"},
		{"filesystem", ErrFileSystem, http.StatusInternalServerError, "FILESYSTEM_ERROR"},
		{"websocket upgrade", ErrWebSocketUpgrade, http.StatusInternalServerError, "WEBSOCKET_UPGRADE_FAILED"},
		{"service unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Run("InvalidRequestWithError", func(t *testing.T) {
		err := InvalidRequestWithError(assert.AnError)
		assert.Equal(t, http.StatusBadRequest, err.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
		assert.Equal(t, assert.AnError.Error(), err.Details)
	})

	t.Run("ErrValidation", func(t *testing.T) {
		err := ErrValidation("symbol", "must start with LE")
		assert.Equal(t, http.StatusBadRequest, err.StatusCode)
		require.IsType(t, ValidationError{}, err.Details)
		ve := err.Details.(ValidationError)
		assert.Equal(t, "symbol", ve.Field)
		assert.Equal(t, "must start with LE", ve.Message)
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("contract")
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Equal(t, "contract not found", err.Message)
		assert.Equal(t, "contract", err.Details)
	})

	t.Run("DatasetNotFoundError", func(t *testing.T) {
		err := DatasetNotFoundError("volume_by_open_minute")
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Equal(t, "DATASET_NOT_FOUND", err.ErrorCode)
		assert.Contains(t, err.Message, "volume_by_open_minute")
		assert.Equal(t, "volume_by_open_minute", err.Details)
	})

	t.Run("DatasetNotBuiltError", func(t *testing.T) {
		err := DatasetNotBuiltError("expiration_date_by_contract")
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Equal(t, "DATASET_NOT_BUILT", err.ErrorCode)
		assert.Contains(t, err.Message, "run the pipeline")
	})

	t.Run("ErrOperationExecution", func(t *testing.T) {
		err := ErrOperationExecution(assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		assert.Equal(t, "OPERATION_EXECUTION_FAILED", err.ErrorCode)
	})

	t.Run("FileSystemError", func(t *testing.T) {
		err := FileSystemError("write", assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		assert.Contains(t, err.Message, "write")
	})
}

func TestNewValidationErrors(t *testing.T) {
	errs := []ValidationError{
		{Field: "limit", Message: "must be positive"},
		{Field: "offset", Message: "must be non-negative"},
	}

	err := NewValidationErrors(errs)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", err.ErrorCode)

	require.IsType(t, ValidationErrors{}, err.Details)
	ve := err.Details.(ValidationErrors)
	assert.Len(t, ve.Errors, 2)
	assert.Equal(t, "limit", ve.Errors[0].Field)
}

func TestErrPanic(t *testing.T) {
	err := ErrPanic("something exploded")
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)

	require.IsType(t, PanicRecovery{}, err.Details)
	pr := err.Details.(PanicRecovery)
	assert.Equal(t, "something exploded", pr.Message)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	apiErr := DatasetNotFoundError("no_such_dataset")

	WriteError(w, apiErr)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DATASET_NOT_FOUND", resp.Error.ErrorCode)
}

func TestNewErrorResponse(t *testing.T) {
	apiErr := New(http.StatusConflict, "CONFLICT", "Resource conflict")
	resp := NewErrorResponse(apiErr)

	assert.False(t, resp.Success)
	assert.Equal(t, apiErr, resp.Error)
}

func TestSimpleConstructors(t *testing.T) {
	ve := NewValidationError("bad input")
	assert.Equal(t, http.StatusBadRequest, ve.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", ve.ErrorCode)
	assert.Equal(t, "bad input", ve.Message)

	ie := NewInternalError("boom")
	assert.Equal(t, http.StatusInternalServerError, ie.StatusCode)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", ie.ErrorCode)
	assert.Equal(t, "boom", ie.Message)
}
