package operations

import "time"

// Step IDs of the research pipeline. These are stable identifiers used for
// dependency wiring, API requests, and progress broadcasts.
const (
	StepIDExpirations          = "expirations"
	StepIDTradingDays          = "trading_days"
	StepIDOpenWindow           = "open_window"
	StepIDOvernight            = "overnight"
	StepIDSettlementChanges    = "settlement_changes"
	StepIDSettlementVolatility = "settlement_volatility"
	StepIDTemporal             = "temporal"
	StepIDCOTSignals           = "cot_signals"
	StepIDVolumeProfile        = "volume_profile"
	StepIDWorkbook             = "workbook"
)

// Human-readable step names shown in progress snapshots.
const (
	StepNameExpirations          = "Contract Expirations"
	StepNameTradingDays          = "Trading Day Calendar"
	StepNameOpenWindow           = "Open Window Enrichment"
	StepNameOvernight            = "Overnight Changes"
	StepNameSettlementChanges    = "Settlement Changes"
	StepNameSettlementVolatility = "Settlement Volatility"
	StepNameTemporal             = "Temporal Analytics"
	StepNameCOTSignals           = "CoT Signals"
	StepNameVolumeProfile        = "Volume Profiles"
	StepNameWorkbook             = "Research Workbook"
)

// Operation types recorded in metrics.
const (
	OperationTypeFullPipeline = "full_pipeline"
	OperationTypePartial      = "partial"
)

// EventTypeOperationSnapshot labels operation snapshot broadcasts on the
// websocket hub.
const EventTypeOperationSnapshot = "operation:snapshot"

// Default execution timeouts.
const (
	DefaultStepTimeout      = 10 * time.Minute
	DefaultOperationTimeout = time.Hour
	// OpenWindowTimeout covers the enrichment pass over every intraday
	// archive, by far the longest step.
	OpenWindowTimeout = 30 * time.Minute
)

// RetryConfig defines retry behaviour for step execution
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry policy
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// DelayFor returns the backoff delay before the given attempt. Attempts
// number from 1; the first retry (attempt 2) waits InitialDelay and later
// retries grow by Multiplier up to MaxDelay.
func (c RetryConfig) DelayFor(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// OperationRequest describes a requested pipeline run. An empty Steps
// slice runs the full pipeline; otherwise only the named steps run, still
// in dependency order.
type OperationRequest struct {
	ID    string   `json:"id,omitempty"`
	Steps []string `json:"steps,omitempty"`
}

// OperationResponse summarises an operation after Execute returns
type OperationResponse struct {
	ID        string                `json:"id"`
	Status    OperationStatus       `json:"status"`
	StartTime time.Time             `json:"start_time"`
	EndTime   *time.Time            `json:"end_time,omitempty"`
	Duration  time.Duration         `json:"duration"`
	Steps     map[string]*StepState `json:"steps"`
	Error     string                `json:"error,omitempty"`
}
