package operations

import "time"

// Config controls operation execution behaviour
type Config struct {
	// StepTimeouts overrides the default timeout per step ID.
	StepTimeouts map[string]time.Duration

	// RetryConfig governs retries of steps that fail with retryable errors.
	RetryConfig RetryConfig

	// ContinueOnError keeps the run going after a step failure. Dependents
	// of the failed step are still skipped.
	ContinueOnError bool
}

// NewConfig returns the default execution config for the research pipeline
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDOpenWindow: OpenWindowTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// GetStepTimeout returns the configured timeout for a step, falling back
// to DefaultStepTimeout.
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if d, ok := c.StepTimeouts[stepID]; ok {
		return d
	}
	return DefaultStepTimeout
}

// SetStepTimeout overrides the timeout for a step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}
