// Package scheduler re-runs the research pipeline at a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/cooper437/commodities-research/internal/operations"
)

// PipelineRunner starts pipeline operations and reports their status. The
// operation service satisfies it.
type PipelineRunner interface {
	Start(ctx context.Context, steps []string) (string, error)
	Status(ctx context.Context, operationID string) (*operations.OperationSnapshot, error)
}

// Scheduler triggers a full pipeline run every configured interval. A tick
// is skipped while the previous scheduled run is still active, so a slow
// pipeline never stacks refreshes.
type Scheduler struct {
	scheduler gocron.Scheduler
	runner    PipelineRunner
	every     time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	lastRunID string
}

// New creates a scheduler that refreshes the full pipeline every interval
func New(runner PipelineRunner, every time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner is required")
	}
	if every <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", every)
	}
	if logger == nil {
		logger = slog.Default()
	}

	jobScheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating job scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: jobScheduler,
		runner:    runner,
		every:     every,
		logger:    logger.With(slog.String("component", "scheduler")),
	}

	_, err = jobScheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(s.refresh),
		gocron.WithName("pipeline-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("registering refresh job: %w", err)
	}

	return s, nil
}

// Start begins ticking. The first refresh fires one interval after Start.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("pipeline refresh scheduled",
		slog.Duration("every", s.every))
}

// Stop shuts the scheduler down. A refresh already handed to the operation
// manager keeps running; only future ticks are stopped.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping job scheduler: %w", err)
	}
	return nil
}

// refresh starts a full pipeline run unless the previous one is still going
func (s *Scheduler) refresh() {
	ctx := context.Background()

	if last := s.lastRun(); last != "" {
		snapshot, err := s.runner.Status(ctx, last)
		if err == nil && operationActive(snapshot.Status) {
			s.logger.Warn("skipping scheduled refresh, previous run still active",
				slog.String("operation_id", last),
				slog.String("status", snapshot.Status))
			return
		}
	}

	id, err := s.runner.Start(ctx, nil)
	if err != nil {
		s.logger.Error("scheduled refresh failed to start",
			slog.String("error", err.Error()))
		return
	}

	s.setLastRun(id)
	s.logger.Info("scheduled pipeline refresh started",
		slog.String("operation_id", id))
}

func (s *Scheduler) lastRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunID
}

func (s *Scheduler) setLastRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunID = id
}

func operationActive(status string) bool {
	switch operations.OperationStatus(status) {
	case operations.OperationStatusPending, operations.OperationStatusRunning:
		return true
	}
	return false
}
