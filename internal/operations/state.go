package operations

import (
	"sync"
	"time"
)

// OperationStatus represents the overall status of a pipeline run
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// OperationState tracks a single pipeline run and the states of its steps
type OperationState struct {
	mu sync.RWMutex

	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    OperationStatus `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	Error error `json:"-"`
}

// NewOperationState creates a pending operation state
func NewOperationState(id, operationType string) *OperationState {
	return &OperationState{
		ID:        id,
		Type:      operationType,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the operation as cancelled
func (p *OperationState) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
}

// GetStatus returns the current operation status
func (p *OperationState) GetStatus() OperationStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStep returns the state of a specific step, or nil if unknown
func (p *OperationState) GetStep(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stepID]
}

// SetStep registers the state of a specific step
func (p *OperationState) SetStep(stepID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stepID] = state
}

// Duration returns how long the operation has run, or took to finish
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// GetRunningSteps returns all currently running steps
func (p *OperationState) GetRunningSteps() []*StepState {
	return p.stepsWithStatus(StepStatusRunning)
}

// GetCompletedSteps returns all completed steps
func (p *OperationState) GetCompletedSteps() []*StepState {
	return p.stepsWithStatus(StepStatusCompleted)
}

// GetFailedSteps returns all failed steps
func (p *OperationState) GetFailedSteps() []*StepState {
	return p.stepsWithStatus(StepStatusFailed)
}

func (p *OperationState) stepsWithStatus(status StepStatus) []*StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var matched []*StepState
	for _, step := range p.Steps {
		if step.GetStatus() == status {
			matched = append(matched, step)
		}
	}
	return matched
}

// IsComplete reports whether every step reached a terminal status
func (p *OperationState) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		switch step.GetStatus() {
		case StepStatusPending, StepStatusRunning:
			return false
		}
	}
	return true
}

// HasFailures reports whether any step failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to callers outside the run
func (p *OperationState) Clone() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Type:      p.Type,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     make(map[string]*StepState, len(p.Steps)),
		Error:     p.Error,
	}
	if p.EndTime != nil {
		endTime := *p.EndTime
		clone.EndTime = &endTime
	}
	for id, step := range p.Steps {
		clone.Steps[id] = step.clone()
	}
	return clone
}
