package operations

import (
	"context"
	"sync"
	"time"
)

// Step is a single unit of work in the research pipeline. Steps read the
// datasets earlier steps wrote and publish their own, so ordering is
// expressed as explicit dependencies rather than shared in-memory state.
type Step interface {
	// ID returns the stable identifier used for dependency wiring and
	// progress broadcasts.
	ID() string

	// Name returns the human-readable name shown in snapshots.
	Name() string

	// Execute runs the step.
	Execute(ctx context.Context, state *OperationState) error

	// Validate checks that the step's inputs exist before execution.
	Validate(state *OperationState) error

	// GetDependencies returns the IDs of steps that must complete first.
	GetDependencies() []string
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState represents the runtime state of a step
type StepState struct {
	mu        sync.RWMutex
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Error     error                  `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step as running and records the start time
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusRunning
	s.Progress = 0
}

// Complete marks the step as completed
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
	s.Progress = 100
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Error = err
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusSkipped
	s.Message = reason
}

// UpdateProgress updates the step progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress = progress
	s.Message = message
}

// GetStatus returns the current step status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// SetMetadata records a key in the step's metadata
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// GetMetadata returns a copy of the step's metadata
func (s *StepState) GetMetadata() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta := make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return meta
}

// Duration returns the duration of the step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

func (s *StepState) clone() *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := &StepState{
		ID:       s.ID,
		Name:     s.Name,
		Status:   s.Status,
		Progress: s.Progress,
		Message:  s.Message,
		Error:    s.Error,
		Metadata: make(map[string]interface{}, len(s.Metadata)),
	}
	if s.StartTime != nil {
		start := *s.StartTime
		copied.StartTime = &start
	}
	if s.EndTime != nil {
		end := *s.EndTime
		copied.EndTime = &end
	}
	for k, v := range s.Metadata {
		copied.Metadata[k] = v
	}
	return copied
}

// BaseStep provides the identity and dependency plumbing shared by all
// step implementations.
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStep creates a base step with the given identity and dependencies
func NewBaseStep(id, name string, dependencies ...string) BaseStep {
	return BaseStep{id: id, name: name, dependencies: dependencies}
}

// ID returns the step ID
func (b *BaseStep) ID() string { return b.id }

// Name returns the step name
func (b *BaseStep) Name() string { return b.name }

// GetDependencies returns the step dependencies
func (b *BaseStep) GetDependencies() []string { return b.dependencies }

// Validate passes by default; steps with file inputs override it
func (b *BaseStep) Validate(state *OperationState) error { return nil }
