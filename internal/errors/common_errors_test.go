package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_Constants(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		expected string
	}{
		{
			name:     "parsing error type",
			errType:  ErrTypeParsing,
			expected: "PARSING",
		},
		{
			name:     "storage error type",
			errType:  ErrTypeStorage,
			expected: "STORAGE",
		},
		{
			name:     "validation error type",
			errType:  ErrTypeValidation,
			expected: "VALIDATION",
		},
		{
			name:     "not found error type",
			errType:  ErrTypeNotFound,
			expected: "NOT_FOUND",
		},
		{
			name:     "permission error type",
			errType:  ErrTypePermission,
			expected: "PERMISSION",
		},
		{
			name:     "config error type",
			errType:  ErrTypeConfig,
			expected: "CONFIG",
		},
		{
			name:     "data error type",
			errType:  ErrTypeData,
			expected: "DATA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.errType))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name   string
		appErr *AppError
		want   string
	}{
		{
			name: "error with cause",
			appErr: &AppError{
				Type:    ErrTypeParsing,
				Message: "parse settlement row",
				Cause:   errors.New("bad float"),
			},
			want: "[PARSING] parse settlement row: bad float",
		},
		{
			name: "error without cause",
			appErr: &AppError{
				Type:    ErrTypeNotFound,
				Message: "expiration for LEG15 not found",
			},
			want: "[NOT_FOUND] expiration for LEG15 not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying cause")
	appErr := NewAppError(ErrTypeStorage, "write dataset", cause)

	assert.Equal(t, cause, appErr.Unwrap())
	assert.True(t, errors.Is(appErr, cause))

	noCause := NewAppError(ErrTypeValidation, "bad field", nil)
	assert.Nil(t, noCause.Unwrap())
}

func TestAppError_ErrorsAs(t *testing.T) {
	appErr := NewDataError("settlement series has duplicate date", nil)
	wrapped := fmt.Errorf("load contract: %w", appErr)

	var target *AppError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, ErrTypeData, target.Type)
}

func TestAppError_WithContext(t *testing.T) {
	appErr := NewParsingError("parse bar", nil).
		WithContext("file", "LEG15.csv").
		WithContext("line", 42)

	assert.Equal(t, "LEG15.csv", appErr.Context["file"])
	assert.Equal(t, 42, appErr.Context["line"])
}

func TestAppError_WithContext_NilMap(t *testing.T) {
	appErr := &AppError{Type: ErrTypeConfig, Message: "bad config"}

	appErr.WithContext("key", "value")
	assert.Equal(t, "value", appErr.Context["key"])
}

func TestNewAppError(t *testing.T) {
	cause := errors.New("cause")
	appErr := NewAppError(ErrTypeStorage, "storage failed", cause)

	assert.Equal(t, ErrTypeStorage, appErr.Type)
	assert.Equal(t, "storage failed", appErr.Message)
	assert.Equal(t, cause, appErr.Cause)
	assert.NotNil(t, appErr.Context)
}

func TestAppErrorHelpers(t *testing.T) {
	cause := errors.New("io failure")

	tests := []struct {
		name     string
		build    func() *AppError
		wantType ErrorType
		wantMsg  string
	}{
		{
			name:     "parsing error",
			build:    func() *AppError { return NewParsingError("parse csv", cause) },
			wantType: ErrTypeParsing,
			wantMsg:  "parse csv",
		},
		{
			name:     "storage error",
			build:    func() *AppError { return NewStorageError("write file", cause) },
			wantType: ErrTypeStorage,
			wantMsg:  "write file",
		},
		{
			name:     "validation error",
			build:    func() *AppError { return NewAppValidationError("symbol required") },
			wantType: ErrTypeValidation,
			wantMsg:  "symbol required",
		},
		{
			name:     "not found error",
			build:    func() *AppError { return NewNotFoundError("contract") },
			wantType: ErrTypeNotFound,
			wantMsg:  "contract not found",
		},
		{
			name:     "permission error",
			build:    func() *AppError { return NewPermissionError("data dir not writable") },
			wantType: ErrTypePermission,
			wantMsg:  "data dir not writable",
		},
		{
			name:     "config error",
			build:    func() *AppError { return NewConfigError("invalid yaml", cause) },
			wantType: ErrTypeConfig,
			wantMsg:  "invalid yaml",
		},
		{
			name:     "data error",
			build:    func() *AppError { return NewDataError("empty bar file", nil) },
			wantType: ErrTypeData,
			wantMsg:  "empty bar file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := tt.build()
			assert.Equal(t, tt.wantType, appErr.Type)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}
