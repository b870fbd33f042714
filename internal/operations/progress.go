package operations

import (
	"sync"
	"time"
)

// ProgressTracker tracks completion across the units of work inside a
// single step, such as the open modes of the enrichment pass.
type ProgressTracker struct {
	mu        sync.RWMutex
	stepID    string
	total     int
	current   int
	message   string
	startTime time.Time
}

// NewProgressTracker creates a tracker for a step with a known unit count
func NewProgressTracker(stepID string, total int) *ProgressTracker {
	return &ProgressTracker{
		stepID:    stepID,
		total:     total,
		startTime: time.Now(),
	}
}

// Update sets the completed unit count and message
func (t *ProgressTracker) Update(current int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current > t.total {
		current = t.total
	}
	if current < 0 {
		current = 0
	}
	t.current = current
	t.message = message
}

// Increment advances the completed unit count by one
func (t *ProgressTracker) Increment(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current < t.total {
		t.current++
	}
	t.message = message
}

// Progress returns completion as a percentage
func (t *ProgressTracker) Progress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.total <= 0 {
		return 0
	}
	return float64(t.current) / float64(t.total) * 100
}

// Message returns the most recent progress message
func (t *ProgressTracker) Message() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.message
}

// IsComplete reports whether every unit has finished
func (t *ProgressTracker) IsComplete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total > 0 && t.current >= t.total
}

// ETA estimates the remaining time from the pace so far
func (t *ProgressTracker) ETA() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == 0 || t.total <= 0 || t.current >= t.total {
		return 0
	}
	perUnit := time.Since(t.startTime) / time.Duration(t.current)
	return perUnit * time.Duration(t.total-t.current)
}

// Elapsed returns the time since tracking began
func (t *ProgressTracker) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.startTime)
}
