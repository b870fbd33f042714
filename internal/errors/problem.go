package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Domain sentinel errors surfaced by the data and operation services.
// The services package re-exports these so callers can errors.Is against
// either name, the same way os.ErrNotExist aliases fs.ErrNotExist.
var (
	ErrDatasetNotFound         = errors.New("dataset not found")
	ErrDatasetNotBuilt         = errors.New("dataset not built")
	ErrOperationNotFound       = errors.New("operation not found")
	ErrOperationNotRunning     = errors.New("operation not running")
	ErrOperationAlreadyRunning = errors.New("operation already running")
	ErrOperationCancelled      = errors.New("operation cancelled")
	ErrRawDataMissing          = errors.New("raw data missing")
	ErrUnknownStep             = errors.New("unknown pipeline step")
	ErrInvalidInput            = errors.New("invalid input")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	// Add standard fields
	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	// Add extensions
	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// MapDatasetError maps dataset service errors to HTTP problem details
func MapDatasetError(err error, dataset, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/datasets/%s#trace-%s", dataset, traceID)

	switch {
	case errors.Is(err, ErrDatasetNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeDatasetNotFound,
			"Dataset Not Found",
			fmt.Sprintf("No dataset named %q is registered.", dataset),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATASET_NOT_FOUND").
			WithExtension("dataset", dataset)

	case errors.Is(err, ErrDatasetNotBuilt):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeDatasetNotBuilt,
			"Dataset Not Built",
			fmt.Sprintf("Dataset %q exists but has not been produced yet. Run the pipeline to build it.", dataset),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DATASET_NOT_BUILT").
			WithExtension("dataset", dataset)

	case errors.Is(err, ErrRawDataMissing):
		return NewProblemDetails(
			http.StatusConflict,
			TypeDataNotFound,
			"Raw Data Missing",
			"One or more raw input directories are missing or empty.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RAW_DATA_MISSING")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while reading the dataset.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}

// MapOperationError maps operation service errors to HTTP problem details
func MapOperationError(err error, operationID, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/operations/%s#trace-%s", operationID, traceID)

	switch {
	case errors.Is(err, ErrOperationNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeOperationNotFound,
			"Operation Not Found",
			fmt.Sprintf("No operation with id %q exists.", operationID),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_NOT_FOUND").
			WithExtension("operation_id", operationID)

	case errors.Is(err, ErrOperationAlreadyRunning):
		return NewProblemDetails(
			http.StatusConflict,
			TypeOperationRunning,
			"Operation Already Running",
			"A pipeline run is already in progress. Wait for it to finish or cancel it first.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_ALREADY_RUNNING")

	case errors.Is(err, ErrUnknownStep):
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Unknown Pipeline Step",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UNKNOWN_STEP")

	case errors.Is(err, ErrOperationNotRunning):
		return NewProblemDetails(
			http.StatusConflict,
			TypeConflict,
			"Operation Not Running",
			"The operation has already finished and can no longer be cancelled.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_NOT_RUNNING")

	case errors.Is(err, ErrOperationCancelled):
		return NewProblemDetails(
			http.StatusConflict,
			TypeConflict,
			"Operation Cancelled",
			"The operation was cancelled before it completed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_CANCELLED")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing the operation.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
