// Package services implements the business logic layer between the HTTP
// handlers and the research pipeline. It keeps dataset access, operation
// orchestration, and health reporting out of the transport layer so the
// rules stay centralized and testable.
//
// # Architecture
//
// Services follow these principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Domain-focused methods that encapsulate business rules
//
// # Available Services
//
// The package provides three services:
//
//	- DataService: lists and pages through the derived research datasets
//	- OperationService: starts, inspects, and cancels pipeline operations
//	- HealthService: reports readiness of the workspace and its dependencies
//
// # Common Service Pattern
//
// Services typically follow this structure:
//
//	type ServiceName struct {
//	    paths  *config.Paths
//	    logger *slog.Logger
//	}
//
//	func NewServiceName(paths *config.Paths, logger *slog.Logger) *ServiceName {
//	    return &ServiceName{paths: paths, logger: logger}
//	}
//
//	func (s *ServiceName) BusinessOperation(ctx context.Context, input Input) (*Output, error) {
//	    if err := input.Validate(); err != nil {
//	        return nil, fmt.Errorf("validation failed: %w", err)
//	    }
//	    return s.execute(ctx, input)
//	}
//
// # Error Handling
//
// Services return sentinel errors that handlers translate into HTTP
// responses:
//
//	- ErrDatasetNotFound for dataset names outside the catalog
//	- ErrDatasetNotBuilt for datasets the pipeline has not produced yet
//	- ErrOperationNotFound for unknown operation IDs
//	- ErrOperationNotRunning for cancel requests against finished operations
//	- ErrInvalidInput for malformed requests
//
// # Testing
//
// Services are tested against temporary workspaces:
//
//	paths := config.PathsFrom(t.TempDir())
//	service, err := NewDataServiceWithLogger(cfg, logger)
//	page, err := service.GetDataset(ctx, "volume_by_dte", 100, 0)
package services
