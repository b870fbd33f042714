package http

import (
	"context"

	"github.com/cooper437/commodities-research/internal/operations"
	"github.com/cooper437/commodities-research/internal/services"
)

// OperationServiceInterface defines the operation lifecycle methods the
// operations handler depends on. Defined here so the handler can be tested
// against a mock.
type OperationServiceInterface interface {
	Start(ctx context.Context, steps []string) (string, error)
	Status(ctx context.Context, operationID string) (*operations.OperationSnapshot, error)
	List(ctx context.Context) []*operations.OperationSnapshot
	Cancel(ctx context.Context, operationID string) error
	Steps(ctx context.Context) ([]services.StepInfo, error)
	Metrics(ctx context.Context) map[string]interface{}
}
