package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/operations"
)

// DatasetRefresher is notified when a finished operation may have rewritten
// derived datasets. The WebSocket hub satisfies it.
type DatasetRefresher interface {
	BroadcastDatasetRefresh(source string, datasets []string)
}

// OperationService starts, inspects, and cancels pipeline operations
type OperationService struct {
	manager   *operations.Manager
	registry  *operations.Registry
	paths     *config.Paths
	refresher DatasetRefresher
	logger    *slog.Logger
}

// StepInfo describes a registered pipeline step
type StepInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
}

// NewOperationService creates a new operation service. The refresher is
// optional; paths fall back to the executable-relative layout when nil.
func NewOperationService(manager *operations.Manager, registry *operations.Registry, paths *config.Paths, refresher DatasetRefresher, logger *slog.Logger) (*OperationService, error) {
	if manager == nil {
		return nil, fmt.Errorf("operation manager is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("step registry is required")
	}
	if paths == nil {
		resolved, err := config.GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve paths: %w", err)
		}
		paths = resolved
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("OperationService initialized",
		slog.Int("registered_steps", registry.Count()),
		slog.String("data_dir", paths.DataDir))

	return &OperationService{
		manager:   manager,
		registry:  registry,
		paths:     paths,
		refresher: refresher,
		logger:    logger,
	}, nil
}

// Start launches an operation running the named steps, or the full pipeline
// when steps is empty, and returns its ID without waiting for completion.
func (ps *OperationService) Start(ctx context.Context, steps []string) (string, error) {
	for _, stepID := range steps {
		if !ps.registry.Has(stepID) {
			return "", fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
		}
	}

	id := uuid.NewString()
	request := &operations.OperationRequest{ID: id, Steps: steps}

	// Register the snapshot before returning so a status poll issued right
	// after start finds the operation.
	ps.manager.Broadcaster().CreateOperation(id, nil)

	runCtx := context.WithoutCancel(ctx)
	go ps.run(runCtx, id, request)

	ps.logger.InfoContext(ctx, "operation started",
		slog.String("operation_id", id),
		slog.Any("steps", steps))

	return id, nil
}

// run executes the operation to completion and announces refreshed datasets
func (ps *OperationService) run(ctx context.Context, id string, request *operations.OperationRequest) {
	response, err := ps.manager.Execute(ctx, request)
	if err != nil {
		ps.logger.ErrorContext(ctx, "operation failed",
			slog.String("operation_id", id),
			slog.String("error", err.Error()))
		return
	}

	if ps.refresher != nil && response.Status == operations.OperationStatusCompleted {
		ps.refresher.BroadcastDatasetRefresh(id, builtDatasetNames(ps.paths))
	}
}

// Status returns the snapshot of an operation, running or finished
func (ps *OperationService) Status(ctx context.Context, operationID string) (*operations.OperationSnapshot, error) {
	if operationID == "" {
		return nil, fmt.Errorf("%w: operation ID required", ErrInvalidInput)
	}

	if snapshot, ok := ps.manager.Broadcaster().GetSnapshot(operationID); ok {
		return snapshot, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
}

// List returns snapshots of all known operations, newest first
func (ps *OperationService) List(ctx context.Context) []*operations.OperationSnapshot {
	snapshots := ps.manager.Broadcaster().GetAllSnapshots()
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].StartedAt.Equal(snapshots[j].StartedAt) {
			return snapshots[i].OperationID < snapshots[j].OperationID
		}
		return snapshots[i].StartedAt.After(snapshots[j].StartedAt)
	})
	return snapshots
}

// Cancel stops a running operation
func (ps *OperationService) Cancel(ctx context.Context, operationID string) error {
	if operationID == "" {
		return fmt.Errorf("%w: operation ID required", ErrInvalidInput)
	}

	if err := ps.manager.CancelOperation(operationID); err != nil {
		if errors.Is(err, operations.ErrOperationNotFound) {
			if _, ok := ps.manager.Broadcaster().GetSnapshot(operationID); ok {
				return fmt.Errorf("%w: %s", ErrOperationNotRunning, operationID)
			}
			return fmt.Errorf("%w: %s", ErrOperationNotFound, operationID)
		}
		return fmt.Errorf("cancel operation: %w", err)
	}

	ps.logger.InfoContext(ctx, "operation cancelled",
		slog.String("operation_id", operationID))
	return nil
}

// Steps lists the registered pipeline steps in dependency order
func (ps *OperationService) Steps(ctx context.Context) ([]StepInfo, error) {
	order, err := ps.registry.GetDependencyOrder()
	if err != nil {
		return nil, fmt.Errorf("resolve step order: %w", err)
	}

	infos := make([]StepInfo, 0, len(order))
	for _, stepID := range order {
		step, err := ps.registry.Get(stepID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, StepInfo{
			ID:           step.ID(),
			Name:         step.Name(),
			Dependencies: step.GetDependencies(),
		})
	}
	return infos, nil
}

// Metrics summarises known operations by status
func (ps *OperationService) Metrics(ctx context.Context) map[string]interface{} {
	snapshots := ps.manager.Broadcaster().GetAllSnapshots()

	activeCount := 0
	completedCount := 0
	failedCount := 0

	for _, snapshot := range snapshots {
		switch operations.OperationStatus(snapshot.Status) {
		case operations.OperationStatusRunning, operations.OperationStatusPending:
			activeCount++
		case operations.OperationStatusCompleted:
			completedCount++
		case operations.OperationStatusFailed, operations.OperationStatusCancelled:
			failedCount++
		}
	}

	return map[string]interface{}{
		"total_operations":     len(snapshots),
		"active_operations":    activeCount,
		"completed_operations": completedCount,
		"failed_operations":    failedCount,
		"timestamp":            time.Now().Unix(),
	}
}
