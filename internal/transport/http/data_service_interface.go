package http

import (
	"context"

	"github.com/cooper437/commodities-research/internal/services"
)

// DataServiceInterface defines the dataset operations the data handler
// depends on. Defined here so the handler can be tested against a mock.
type DataServiceInterface interface {
	ListDatasets(ctx context.Context) ([]services.DatasetInfo, error)
	GetDataset(ctx context.Context, name string, limit, offset int) (*services.DatasetPage, error)
	DatasetPath(ctx context.Context, name string) (string, error)
	WorkbookPath(ctx context.Context) (string, error)
}
