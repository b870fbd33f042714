package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "github.com/cooper437/commodities-research/internal/errors"
	"github.com/cooper437/commodities-research/internal/middleware"
)

// contextKey is a private type for request context values set by this package
type contextKey string

const datasetNameKey contextKey = "dataset_name"

// datasetNamePattern matches the snake_case names in the dataset catalog.
// Anything else is rejected before it reaches the service layer.
var datasetNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DataHandler serves the derived dataset catalog over HTTP
type DataHandler struct {
	service      DataServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a new data handler
func NewDataHandler(service DataServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "data")),
		errorHandler: errorHandler,
	}
}

// Routes returns a chi router for dataset endpoints
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListDatasets)

	r.Route("/{name}", func(r chi.Router) {
		r.Use(h.DatasetCtx)
		r.Get("/", h.GetDataset)
		r.Get("/download", h.DownloadDataset)
	})

	return r
}

// DatasetCtx validates the dataset name URL parameter and stores it in the
// request context
func (h *DataHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !datasetNamePattern.MatchString(name) {
			h.errorHandler.HandleError(w, r,
				apierrors.ErrValidation("name", "dataset name must be lowercase snake_case"))
			return
		}

		ctx := context.WithValue(r.Context(), datasetNameKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ListDatasets handles GET /api/datasets
func (h *DataHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	h.logger.DebugContext(ctx, "listing datasets",
		slog.String("request_id", reqID))

	datasets, err := h.service.ListDatasets(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list datasets",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   datasets,
		"count":  len(datasets),
	})
}

// GetDataset handles GET /api/datasets/{name}. The default response is a
// paginated JSON page; clients that accept text/csv (or pass format=csv)
// receive the raw file instead.
func (h *DataHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	name := ctx.Value(datasetNameKey).(string)

	if wantsCSV(r) {
		h.serveRawDataset(w, r, name)
		return
	}

	limit, offset, err := paginationParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(ctx, "dataset page request",
		slog.String("dataset", name),
		slog.Int("limit", limit),
		slog.Int("offset", offset),
		slog.String("request_id", reqID))

	page, err := h.service.GetDataset(ctx, name, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read dataset",
			slog.String("dataset", name),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   page,
		"count":  len(page.Rows),
	})
}

// DownloadDataset handles GET /api/datasets/{name}/download, serving the
// raw CSV file with an attachment disposition
func (h *DataHandler) DownloadDataset(w http.ResponseWriter, r *http.Request) {
	name := r.Context().Value(datasetNameKey).(string)
	h.serveRawDataset(w, r, name)
}

// DownloadWorkbook handles GET /api/workbook, serving the multi-sheet
// research workbook
func (h *DataHandler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	path, err := h.service.WorkbookPath(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "workbook download failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "serving workbook",
		slog.String("path", path),
		slog.String("request_id", reqID))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="research_analytics.xlsx"`)
	http.ServeFile(w, r, path)
}

// serveRawDataset streams a dataset file as CSV with an attachment
// disposition
func (h *DataHandler) serveRawDataset(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	path, err := h.service.DatasetPath(ctx, name)
	if err != nil {
		h.logger.ErrorContext(ctx, "dataset download failed",
			slog.String("dataset", name),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "serving dataset file",
		slog.String("dataset", name),
		slog.String("path", path),
		slog.String("request_id", reqID))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	http.ServeFile(w, r, path)
}

// wantsCSV reports whether the client asked for the raw file rather than a
// JSON page
func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

// paginationParams parses and validates the limit and offset query
// parameters. Absent parameters are returned as zero and defaulted by the
// service layer.
func paginationParams(r *http.Request) (limit, offset int, err error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, apierrors.ErrValidation("limit", "must be a non-negative integer")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apierrors.ErrValidation("offset", "must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
