package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cooper437/commodities-research/internal/infrastructure"
)

// Manager orchestrates pipeline runs. It resolves the execution order from
// the registry, drives each step through its state machine, and reports
// progress through the status broadcaster.
type Manager struct {
	mu          sync.RWMutex
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger
	operations  map[string]*runningOperation
}

// runningOperation pairs an in-flight operation with its cancel handle
type runningOperation struct {
	state  *OperationState
	cancel context.CancelFunc
}

// NewManager creates an operation manager. The hub may be nil when no
// websocket clients need progress, and metrics may be nil in tests.
func NewManager(hub WebSocketHub, registry *Registry, config *Config, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Manager {
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(hub, logger),
		metrics:     metrics,
		logger:      logger,
		operations:  make(map[string]*runningOperation),
	}
}

// Broadcaster exposes the status broadcaster for snapshot queries
func (m *Manager) Broadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the manager's execution config
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs the requested steps, or the full pipeline when the request
// names none. It blocks until the operation finishes and returns the final
// state as a response.
func (m *Manager) Execute(ctx context.Context, req *OperationRequest) (*OperationResponse, error) {
	if req == nil {
		req = &OperationRequest{}
	}

	order, operationType, err := m.resolveOrder(req)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = fmt.Sprintf("operation-%d", time.Now().UnixNano())
	}

	state := NewOperationState(id, operationType)
	stepStates := make([]*StepState, 0, len(order))
	for _, stepID := range order {
		step, err := m.registry.Get(stepID)
		if err != nil {
			return nil, err
		}
		stepState := NewStepState(stepID, step.Name())
		state.SetStep(stepID, stepState)
		stepStates = append(stepStates, stepState)
	}

	opCtx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	m.storeOperation(id, &runningOperation{state: state, cancel: cancel})
	defer m.removeOperation(id)

	m.broadcaster.CreateOperation(id, stepStates)

	infrastructure.RecordActiveOperationChange(opCtx, m.metrics, 1, operationType)
	defer infrastructure.RecordActiveOperationChange(opCtx, m.metrics, -1, operationType)

	logOperationStart(opCtx, m.logger, id, operationType, len(order))
	state.Start()
	m.broadcaster.StartOperation(id)

	start := time.Now()
	execErr := m.executeSequential(opCtx, state, order)
	duration := time.Since(start)

	switch {
	case execErr == nil:
		state.Complete()
		m.broadcaster.CompleteOperation(id, "Research pipeline completed")
		logOperationComplete(opCtx, m.logger, id, duration)
	case state.GetStatus() == OperationStatusCancelled || GetErrorType(execErr) == ErrorTypeCancellation:
		if state.GetStatus() != OperationStatusCancelled {
			state.Cancel()
		}
		m.broadcaster.CancelOperation(id)
		logOperationError(opCtx, m.logger, id, execErr, duration)
	default:
		state.Fail(execErr)
		m.broadcaster.FailOperation(id, execErr)
		logOperationError(opCtx, m.logger, id, execErr, duration)
	}
	infrastructure.RecordOperationMetrics(opCtx, m.metrics, id, operationType, duration, execErr == nil, execErr)

	return m.createResponse(state), execErr
}

// resolveOrder determines which steps run and in what order. A request
// naming steps runs just those, still dependency-ordered; dependencies
// outside the subset are assumed satisfied by earlier runs and are checked
// by each step's Validate.
func (m *Manager) resolveOrder(req *OperationRequest) ([]string, string, error) {
	full, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, "", err
	}
	if len(req.Steps) == 0 {
		return full, OperationTypeFullPipeline, nil
	}

	requested := make(map[string]bool, len(req.Steps))
	for _, stepID := range req.Steps {
		if !m.registry.Has(stepID) {
			return nil, "", fmt.Errorf("unknown step %q", stepID)
		}
		requested[stepID] = true
	}
	order := make([]string, 0, len(requested))
	for _, stepID := range full {
		if requested[stepID] {
			order = append(order, stepID)
		}
	}
	return order, OperationTypePartial, nil
}

// executeSequential runs steps one at a time in dependency order. A failed
// step always skips its transitive dependents; whether the remaining
// independent steps still run is governed by ContinueOnError.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, order []string) error {
	var firstErr error
	for _, stepID := range order {
		if err := ctx.Err(); err != nil {
			m.skipRemaining(ctx, state, order, "operation cancelled")
			if firstErr == nil {
				firstErr = NewCancellationError(stepID, err.Error())
			}
			return firstErr
		}

		stepState := state.GetStep(stepID)
		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}

		step, err := m.registry.Get(stepID)
		if err != nil {
			return err
		}

		if unmet := m.unmetDependencies(state, step); len(unmet) > 0 {
			reason := fmt.Sprintf("dependencies not completed: %s", strings.Join(unmet, ", "))
			m.skipStep(ctx, state, stepState, reason)
			continue
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.skipDependents(ctx, state, stepID)
			errType := GetErrorType(err)
			if !m.config.ContinueOnError || errType == ErrorTypeFatal || errType == ErrorTypeCancellation {
				m.skipRemaining(ctx, state, order, "aborted after earlier failure")
				return firstErr
			}
		}
	}
	return firstErr
}

// executeStep drives a single step through validation, execution with
// retries, and its timeout.
func (m *Manager) executeStep(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStep(step.ID())

	if err := step.Validate(state); err != nil {
		m.skipStep(ctx, state, stepState, err.Error())
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.GetStepTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.RetryConfig
	var lastErr error
retryLoop:
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := retry.DelayFor(attempt)
			logStepRetry(ctx, m.logger, state.ID, step.ID(), attempt, delay, lastErr)
			select {
			case <-stepCtx.Done():
				lastErr = stepTerminationError(step.ID(), stepCtx, timeout, lastErr)
				break retryLoop
			case <-time.After(delay):
			}
		}

		stepState.Start()
		m.broadcaster.StartStep(state.ID, step.ID())
		logStepStart(ctx, m.logger, state.ID, step.ID(), attempt)

		start := time.Now()
		err := step.Execute(stepCtx, state)
		duration := time.Since(start)
		infrastructure.RecordOperationStepMetrics(ctx, m.metrics, state.ID, step.ID(), duration, err == nil)

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), fmt.Sprintf("%s completed", step.Name()))
			logStepComplete(ctx, m.logger, state.ID, step.ID(), duration)
			return nil
		}

		lastErr = err
		logStepError(ctx, m.logger, state.ID, step.ID(), err, duration)

		if stepCtx.Err() != nil {
			lastErr = stepTerminationError(step.ID(), stepCtx, timeout, err)
			break
		}
		if !IsRetryable(err) {
			break
		}
	}

	stepState.Fail(lastErr)
	m.broadcaster.FailStep(state.ID, step.ID(), lastErr)
	return lastErr
}

// stepTerminationError distinguishes a step timeout from an operation
// cancellation.
func stepTerminationError(stepID string, ctx context.Context, timeout time.Duration, cause error) *OperationError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(stepID, timeout)
	}
	reason := "operation cancelled"
	if cause != nil {
		reason = cause.Error()
	}
	return NewCancellationError(stepID, reason)
}

// unmetDependencies returns dependency IDs that are part of this operation
// but did not complete. Dependencies outside the operation are trusted to
// have produced their datasets in earlier runs.
func (m *Manager) unmetDependencies(state *OperationState, step Step) []string {
	var unmet []string
	for _, dep := range step.GetDependencies() {
		depState := state.GetStep(dep)
		if depState == nil {
			continue
		}
		if depState.GetStatus() != StepStatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

func (m *Manager) skipStep(ctx context.Context, state *OperationState, stepState *StepState, reason string) {
	stepState.Skip(reason)
	m.broadcaster.SkipStep(state.ID, stepState.ID, reason)
	logStepSkipped(ctx, m.logger, state.ID, stepState.ID, reason)
}

// skipDependents marks every pending step that transitively depends on
// failedID as skipped so nothing runs with missing inputs.
func (m *Manager) skipDependents(ctx context.Context, state *OperationState, failedID string) {
	for _, step := range m.registry.List() {
		stepState := state.GetStep(step.ID())
		if stepState == nil || stepState.GetStatus() != StepStatusPending {
			continue
		}
		for _, dep := range step.GetDependencies() {
			if dep == failedID {
				m.skipStep(ctx, state, stepState, fmt.Sprintf("dependency %s failed", failedID))
				m.skipDependents(ctx, state, step.ID())
				break
			}
		}
	}
}

func (m *Manager) skipRemaining(ctx context.Context, state *OperationState, order []string, reason string) {
	for _, stepID := range order {
		stepState := state.GetStep(stepID)
		if stepState != nil && stepState.GetStatus() == StepStatusPending {
			m.skipStep(ctx, state, stepState, reason)
		}
	}
}

// CancelOperation cancels a running operation
func (m *Manager) CancelOperation(operationID string) error {
	m.mu.RLock()
	ro, exists := m.operations[operationID]
	m.mu.RUnlock()
	if !exists {
		return ErrOperationNotFound
	}

	ro.state.Cancel()
	ro.cancel()
	m.broadcaster.CancelOperation(operationID)
	infrastructure.RecordOperationCancellation(context.Background(), m.metrics, operationID, ro.state.Type, "cancel requested")
	m.logger.Info("operation cancelled", slog.String("operation_id", operationID))
	return nil
}

// GetOperation returns a point-in-time copy of a running operation's state
func (m *Manager) GetOperation(operationID string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ro, exists := m.operations[operationID]
	if !exists {
		return nil, ErrOperationNotFound
	}
	return ro.state.Clone(), nil
}

// ListOperations returns copies of all running operations
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ops := make([]*OperationState, 0, len(m.operations))
	for _, ro := range m.operations {
		ops = append(ops, ro.state.Clone())
	}
	return ops
}

// Stop shuts down the status broadcaster
func (m *Manager) Stop() {
	m.broadcaster.Stop()
}

func (m *Manager) storeOperation(id string, ro *runningOperation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[id] = ro
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}

func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	clone := state.Clone()
	resp := &OperationResponse{
		ID:        clone.ID,
		Status:    clone.Status,
		StartTime: clone.StartTime,
		EndTime:   clone.EndTime,
		Duration:  clone.Duration(),
		Steps:     clone.Steps,
	}
	if clone.Error != nil {
		resp.Error = clone.Error.Error()
	}
	return resp
}
