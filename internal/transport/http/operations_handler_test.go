package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cooper437/commodities-research/internal/operations"
	"github.com/cooper437/commodities-research/internal/services"
)

// MockOperationService is a mock implementation of OperationServiceInterface
type MockOperationService struct {
	mock.Mock
}

func (m *MockOperationService) Start(ctx context.Context, steps []string) (string, error) {
	args := m.Called(steps)
	return args.String(0), args.Error(1)
}

func (m *MockOperationService) Status(ctx context.Context, operationID string) (*operations.OperationSnapshot, error) {
	args := m.Called(operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.OperationSnapshot), args.Error(1)
}

func (m *MockOperationService) List(ctx context.Context) []*operations.OperationSnapshot {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*operations.OperationSnapshot)
}

func (m *MockOperationService) Cancel(ctx context.Context, operationID string) error {
	args := m.Called(operationID)
	return args.Error(0)
}

func (m *MockOperationService) Steps(ctx context.Context) ([]services.StepInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.StepInfo), args.Error(1)
}

func (m *MockOperationService) Metrics(ctx context.Context) map[string]interface{} {
	args := m.Called()
	return args.Get(0).(map[string]interface{})
}

func newOperationsRouter(service OperationServiceInterface) http.Handler {
	handler := NewOperationsHandler(service, testLogger())

	r := chi.NewRouter()
	r.Mount("/api/operations", handler.Routes())
	return r
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOperationsHandler_StartOperation(t *testing.T) {
	t.Run("empty body runs the full pipeline", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("Start", []string(nil)).Return("op-123", nil)

		req := postJSON("/api/operations", "")
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"op-123"`)
		assert.Contains(t, rec.Body.String(), `"poll_url":"/api/operations/op-123"`)
		assert.Contains(t, rec.Body.String(), `"status":"pending"`)
		mockService.AssertExpectations(t)
	})

	t.Run("step subset is forwarded", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("Start", []string{"expirations", "trading_days"}).Return("op-456", nil)

		req := postJSON("/api/operations", `{"steps":["expirations","trading_days"]}`)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"op-456"`)
		mockService.AssertExpectations(t)
	})

	t.Run("unknown step id", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("Start", []string{"gamma"}).
			Return("", fmt.Errorf("%w: %q", services.ErrUnknownStep, "gamma"))

		req := postJSON("/api/operations", `{"steps":["gamma"]}`)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNKNOWN_STEP")
		assert.Contains(t, rec.Body.String(), "gamma")
		mockService.AssertExpectations(t)
	})
}

func TestOperationsHandler_StartOperation_BadRequests(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		expectedBody string
	}{
		{
			name:         "malformed json",
			body:         `{"steps": [`,
			expectedBody: "Invalid Operation Request",
		},
		{
			name:         "empty step id",
			body:         `{"steps":["expirations",""]}`,
			expectedBody: "step id is required",
		},
		{
			name:         "duplicate step id",
			body:         `{"steps":["overnight","overnight"]}`,
			expectedBody: "duplicate step id: overnight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOperationService)

			req := postJSON("/api/operations", tt.body)
			rec := httptest.NewRecorder()

			newOperationsRouter(mockService).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_GetOperationStatus(t *testing.T) {
	t.Run("running operation", func(t *testing.T) {
		started := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
		snapshot := &operations.OperationSnapshot{
			OperationID: "op-789",
			Status:      string(operations.OperationStatusRunning),
			Progress:    40,
			CurrentStep: "overnight",
			Steps: []operations.StepSnapshot{
				{ID: "expirations", Name: "Contract Expirations", Status: "completed", Progress: 100},
				{ID: "overnight", Name: "Overnight Sessions", Status: "running", Progress: 20},
			},
			StartedAt: started,
			UpdatedAt: started.Add(30 * time.Second),
		}

		mockService := new(MockOperationService)
		mockService.On("Status", "op-789").Return(snapshot, nil)

		req := httptest.NewRequest("GET", "/api/operations/op-789", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"operation_id":"op-789"`)
		assert.Contains(t, rec.Body.String(), `"status":"running"`)
		assert.Contains(t, rec.Body.String(), `"current_step":"overnight"`)
		mockService.AssertExpectations(t)
	})

	t.Run("unknown operation", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("Status", "op-missing").
			Return(nil, fmt.Errorf("%w: %s", services.ErrOperationNotFound, "op-missing"))

		req := httptest.NewRequest("GET", "/api/operations/op-missing", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "OPERATION_NOT_FOUND")
		mockService.AssertExpectations(t)
	})
}

func TestOperationsHandler_ListOperations(t *testing.T) {
	// ListOperations filters in place, so every subtest gets a fresh slice
	liveSnapshots := func() []*operations.OperationSnapshot {
		return []*operations.OperationSnapshot{
			{OperationID: "op-1", Status: string(operations.OperationStatusRunning), Progress: 50},
			{OperationID: "op-2", Status: string(operations.OperationStatusCompleted), Progress: 100},
		}
	}

	t.Run("all operations", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("List").Return(liveSnapshots())

		req := httptest.NewRequest("GET", "/api/operations", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		mockService.AssertExpectations(t)
	})

	t.Run("status filter", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("List").Return(liveSnapshots())

		req := httptest.NewRequest("GET", "/api/operations?status=running", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)
		assert.Contains(t, rec.Body.String(), `"operation_id":"op-1"`)
		assert.NotContains(t, rec.Body.String(), `"operation_id":"op-2"`)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		mockService := new(MockOperationService)

		req := httptest.NewRequest("GET", "/api/operations?status=bogus", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "valid_statuses")
		mockService.AssertExpectations(t)
	})
}

func TestOperationsHandler_StopOperation(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(*MockOperationService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "running operation is cancelled",
			setupMock: func(m *MockOperationService) {
				m.On("Cancel", "op-55").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "operation cancellation requested",
		},
		{
			name: "operation already finished",
			setupMock: func(m *MockOperationService) {
				m.On("Cancel", "op-55").
					Return(fmt.Errorf("%w: %s", services.ErrOperationNotRunning, "op-55"))
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   "OPERATION_NOT_RUNNING",
		},
		{
			name: "operation never existed",
			setupMock: func(m *MockOperationService) {
				m.On("Cancel", "op-55").
					Return(fmt.Errorf("%w: %s", services.ErrOperationNotFound, "op-55"))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "OPERATION_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOperationService)
			tt.setupMock(mockService)

			req := postJSON("/api/operations/op-55/stop", "")
			rec := httptest.NewRecorder()

			newOperationsRouter(mockService).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_GetSteps(t *testing.T) {
	t.Run("steps in dependency order", func(t *testing.T) {
		steps := []services.StepInfo{
			{ID: "expirations", Name: "Contract Expirations"},
			{ID: "trading_days", Name: "Trading Day Summaries", Dependencies: []string{"expirations"}},
		}

		mockService := new(MockOperationService)
		mockService.On("Steps").Return(steps, nil)

		req := httptest.NewRequest("GET", "/api/operations/steps", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		assert.Contains(t, rec.Body.String(), `"id":"trading_days"`)
		assert.Contains(t, rec.Body.String(), `"dependencies":["expirations"]`)
		mockService.AssertExpectations(t)
	})

	t.Run("registry failure", func(t *testing.T) {
		mockService := new(MockOperationService)
		mockService.On("Steps").Return(nil, assert.AnError)

		req := httptest.NewRequest("GET", "/api/operations/steps", nil)
		rec := httptest.NewRecorder()

		newOperationsRouter(mockService).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestOperationsHandler_GetMetricsSummary(t *testing.T) {
	mockService := new(MockOperationService)
	mockService.On("Metrics").Return(map[string]interface{}{
		"total_operations":     3,
		"active_operations":    1,
		"completed_operations": 2,
		"failed_operations":    0,
	})

	req := httptest.NewRequest("GET", "/api/operations/metrics", nil)
	rec := httptest.NewRecorder()

	newOperationsRouter(mockService).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_operations":3`)
	mockService.AssertExpectations(t)
}

func TestStartOperationRequest_Bind(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		wantErr string
	}{
		{name: "no steps", steps: nil},
		{name: "valid subset", steps: []string{"expirations", "overnight"}},
		{name: "blank step id", steps: []string{"expirations", "  "}, wantErr: "step id is required"},
		{name: "duplicate step id", steps: []string{"cot_signals", "cot_signals"}, wantErr: "duplicate step id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &StartOperationRequest{Steps: tt.steps}
			err := req.Bind(httptest.NewRequest("POST", "/api/operations", nil))

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
