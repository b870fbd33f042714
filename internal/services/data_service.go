package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
)

const (
	defaultDatasetLimit = 100
	maxDatasetLimit     = 10000
)

// DataService provides read access to the derived research datasets
type DataService struct {
	config *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

// DatasetInfo describes one derived dataset on disk
type DatasetInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

// DatasetPage is a paginated slice of dataset rows keyed by column name
type DatasetPage struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// NewDataService creates a new data service using the default logger
func NewDataService(cfg *config.Config) (*DataService, error) {
	return NewDataServiceWithLogger(cfg, slog.Default())
}

// NewDataServiceWithLogger creates a new data service with a specific logger
func NewDataServiceWithLogger(cfg *config.Config, logger *slog.Logger) (*DataService, error) {
	paths, err := resolvePaths(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("DataService initialized with paths",
		slog.String("data_dir", paths.DataDir),
		slog.String("contracts_dir", paths.ContractsDir),
		slog.String("reports_dir", paths.ReportsDir))

	return &DataService{
		config: cfg,
		paths:  paths,
		logger: logger,
	}, nil
}

// resolvePaths prefers the configured base dir and falls back to the
// executable-relative layout
func resolvePaths(cfg *config.Config) (*config.Paths, error) {
	if cfg != nil && cfg.Data.BaseDir != "" {
		return config.PathsFrom(cfg.Data.BaseDir), nil
	}
	return config.GetPaths()
}

// ListDatasets returns the derived datasets present on disk, sorted by name
func (ds *DataService) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	datasets := ds.paths.DerivedDatasets()

	ds.logger.DebugContext(ctx, "ListDatasets: scanning catalog",
		slog.Int("catalog_size", len(datasets)))

	infos := make([]DatasetInfo, 0, len(datasets))
	for name, path := range datasets {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			logDataError(ctx, "stat_dataset", "Failed to stat dataset",
				slog.String("dataset", name),
				slog.String("error", err.Error()),
			)
			continue
		}

		relPath, err := filepath.Rel(ds.paths.DataDir, path)
		if err != nil {
			relPath = path
		}

		infos = append(infos, DatasetInfo{
			Name:      name,
			Path:      filepath.ToSlash(relPath),
			SizeBytes: info.Size(),
			Modified:  info.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	ds.logger.DebugContext(ctx, "ListDatasets: found datasets",
		slog.Int("count", len(infos)))

	return infos, nil
}

// GetDataset reads one page of rows from a derived dataset. Offsets beyond
// the end yield an empty page with the true total.
func (ds *DataService) GetDataset(ctx context.Context, name string, limit, offset int) (*DatasetPage, error) {
	path, err := ds.resolve(name)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultDatasetLimit
	}
	if limit > maxDatasetLimit {
		limit = maxDatasetLimit
	}
	if offset < 0 {
		offset = 0
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotBuilt, name)
		}
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset %s header: %w", name, err)
	}

	page := &DatasetPage{
		Name:    name,
		Columns: header,
		Rows:    []map[string]string{},
		Limit:   limit,
		Offset:  offset,
	}

	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", name, err)
		}

		if rowIndex >= offset && len(page.Rows) < limit {
			row := make(map[string]string, len(header))
			for i, value := range record {
				if i < len(header) {
					row[header[i]] = value
				}
			}
			page.Rows = append(page.Rows, row)
		}
		rowIndex++
	}
	page.Total = rowIndex

	ds.logger.DebugContext(ctx, "GetDataset: served page",
		slog.String("dataset", name),
		slog.Int("rows", len(page.Rows)),
		slog.Int("total", page.Total))

	return page, nil
}

// DatasetPath returns the on-disk path of a built dataset for raw serving
func (ds *DataService) DatasetPath(ctx context.Context, name string) (string, error) {
	path, err := ds.resolve(name)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrDatasetNotBuilt, name)
		}
		return "", fmt.Errorf("stat dataset %s: %w", name, err)
	}

	return path, nil
}

// WorkbookPath returns the research workbook location once the exporter has
// written it
func (ds *DataService) WorkbookPath(ctx context.Context) (string, error) {
	path := ds.paths.WorkbookXLSX
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: research workbook", ErrDatasetNotBuilt)
		}
		return "", fmt.Errorf("stat workbook: %w", err)
	}
	return path, nil
}

// DatasetNames returns every name in the dataset catalog, sorted
func (ds *DataService) DatasetNames() []string {
	datasets := ds.paths.DerivedDatasets()
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve maps a dataset name to its catalog path
func (ds *DataService) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: dataset name required", ErrInvalidInput)
	}
	path, ok := ds.paths.DerivedDatasets()[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return path, nil
}

// builtDatasetNames lists the catalog entries whose files exist, sorted
func builtDatasetNames(paths *config.Paths) []string {
	var names []string
	for name, path := range paths.DerivedDatasets() {
		if _, err := os.Stat(path); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
