package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/cooper437/commodities-research/internal/errors"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/middleware"
	"github.com/cooper437/commodities-research/internal/operations"
)

// OperationsHandler handles pipeline operation HTTP requests
type OperationsHandler struct {
	service OperationServiceInterface
	logger  *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationServiceInterface, logger *slog.Logger) *OperationsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OperationsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "operations")),
	}
}

// StartOperationRequest is the request body for starting a pipeline run.
// An empty step list (or an empty body) runs the full pipeline.
type StartOperationRequest struct {
	Steps []string `json:"steps,omitempty"`
}

// Bind implements the render.Binder interface for request validation
func (req *StartOperationRequest) Bind(r *http.Request) error {
	seen := make(map[string]bool, len(req.Steps))
	for i, id := range req.Steps {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("steps[%d]: step id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate step id: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/", h.StartOperation)
	r.Get("/", h.ListOperations)
	r.Get("/steps", h.GetSteps)
	r.Get("/metrics", h.GetMetricsSummary)
	r.Get("/{id}", h.GetOperationStatus)
	r.Post("/{id}/stop", h.StopOperation)

	return r
}

// StartOperation handles POST /api/operations
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.start_operation",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "operation start request",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	// An empty body is a full pipeline run, so only bind when one was sent
	data := &StartOperationRequest{}
	if r.ContentLength != 0 {
		if err := render.Bind(r, data); err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "request_validation"))

			h.logger.ErrorContext(ctx, "failed to bind operation request",
				slog.String("error", err.Error()),
				slog.String("request_id", reqID))

			problem := apierrors.NewProblemDetails(
				http.StatusBadRequest,
				apierrors.TypeValidation,
				"Invalid Operation Request",
				err.Error(),
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))

			render.Render(w, r, problem)
			return
		}
	}

	span.SetAttributes(attribute.Int("operation.steps_count", len(data.Steps)))

	operationID, err := h.service.Start(ctx, data.Steps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation start failed")
		h.handleError(w, r, err, operationID)
		return
	}

	span.SetAttributes(attribute.String("operation.id", operationID))

	h.logger.InfoContext(ctx, "operation accepted",
		slog.String("operation_id", operationID),
		slog.Int("steps_count", len(data.Steps)),
		slog.String("request_id", reqID))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"id":       operationID,
		"status":   string(operations.OperationStatusPending),
		"poll_url": "/api/operations/" + operationID,
	})
}

// GetOperationStatus handles GET /api/operations/{id}
func (h *OperationsHandler) GetOperationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_status",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations/{id}"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.DebugContext(ctx, "operation status request",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID))

	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	snapshot, err := h.service.Status(statusCtx, operationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status retrieval failed")
		h.handleError(w, r, err, operationID)
		return
	}

	span.SetAttributes(
		attribute.String("operation.status", snapshot.Status),
		attribute.Int("operation.progress", snapshot.Progress),
	)

	render.JSON(w, r, snapshot)
}

// ListOperations handles GET /api/operations
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.list_operations",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	statusFilter := r.URL.Query().Get("status")

	h.logger.DebugContext(ctx, "listing operations",
		slog.String("status_filter", statusFilter),
		slog.String("request_id", reqID))

	if statusFilter != "" && !validOperationStatuses[statusFilter] {
		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			apierrors.TypeValidation,
			"Invalid Status Filter",
			fmt.Sprintf("Invalid status filter: %s", statusFilter),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)).
			WithExtension("valid_statuses", operationStatusNames())

		render.Render(w, r, problem)
		return
	}

	snapshots := h.service.List(ctx)
	if statusFilter != "" {
		filtered := snapshots[:0]
		for _, snapshot := range snapshots {
			if snapshot.Status == statusFilter {
				filtered = append(filtered, snapshot)
			}
		}
		snapshots = filtered
		span.SetAttributes(attribute.String("filter.status", statusFilter))
	}

	span.SetAttributes(attribute.Int("operations.count", len(snapshots)))

	render.JSON(w, r, map[string]interface{}{
		"operations": snapshots,
		"count":      len(snapshots),
	})
}

// GetSteps handles GET /api/operations/steps, listing the registered
// pipeline steps in dependency order
func (h *OperationsHandler) GetSteps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_steps",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations/steps"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	steps, err := h.service.Steps(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step listing failed")

		h.logger.ErrorContext(ctx, "failed to list steps",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		problem := apierrors.NewProblemDetails(
			http.StatusInternalServerError,
			apierrors.TypeInternal,
			"Internal Server Error",
			"Failed to list pipeline steps",
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))

		render.Render(w, r, problem)
		return
	}

	span.SetAttributes(attribute.Int("steps.count", len(steps)))

	render.JSON(w, r, map[string]interface{}{
		"steps": steps,
		"count": len(steps),
	})
}

// GetMetricsSummary handles GET /api/operations/metrics, returning counters
// over the operations observed this process lifetime
func (h *OperationsHandler) GetMetricsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	h.logger.DebugContext(ctx, "operations metrics request",
		slog.String("request_id", reqID))

	render.JSON(w, r, h.service.Metrics(ctx))
}

// StopOperation handles POST /api/operations/{id}/stop
func (h *OperationsHandler) StopOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.stop_operation",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations/{id}/stop"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "operation stop request",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := h.service.Cancel(cancelCtx, operationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation cancellation failed")
		h.handleError(w, r, err, operationID)
		return
	}

	h.logger.InfoContext(ctx, "operation cancellation requested",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID))

	render.JSON(w, r, map[string]string{
		"message":      "operation cancellation requested",
		"operation_id": operationID,
	})
}

// handleError centralizes error handling for the handler
func (h *OperationsHandler) handleError(w http.ResponseWriter, r *http.Request, err error, operationID string) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	traceID := infrastructure.TraceIDFromContext(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID),
		slog.String("trace_id", traceID),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method))

	render.Render(w, r, apierrors.MapOperationError(err, operationID, traceID))
}

var validOperationStatuses = map[string]bool{
	string(operations.OperationStatusPending):   true,
	string(operations.OperationStatusRunning):   true,
	string(operations.OperationStatusCompleted): true,
	string(operations.OperationStatusFailed):    true,
	string(operations.OperationStatusCancelled): true,
}

func operationStatusNames() []string {
	return []string{
		string(operations.OperationStatusPending),
		string(operations.OperationStatusRunning),
		string(operations.OperationStatusCompleted),
		string(operations.OperationStatusFailed),
		string(operations.OperationStatusCancelled),
	}
}
