package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains all the workspace paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	BaseDir string

	// Raw datasets
	DataDir       string
	RawDir        string
	FuturesDir    string
	SettlementDir string
	COTDir        string

	// Derived datasets
	ProcessedDir           string
	ContractsDir           string
	SettlementAnalyticsDir string

	ReportsDir string
	LogsDir    string

	// Well-known derived dataset files
	ExpirationsCSV          string
	TradingDaysCSV          string
	OvernightChangesCSV     string
	COTSignalsCSV           string
	VolumeByMinuteCSV       string
	VolumeByDTECSV          string
	SettlementVolatilityCSV string
	TemporalSettlementCSV   string
	WorkbookXLSX            string
}

// GetPaths returns the workspace paths relative to the executable location.
// Used when no base dir is configured, so the binaries work whether run from
// a checkout or an installed tree.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return PathsFrom(filepath.Dir(exe)), nil
}

// PathsFrom builds the workspace layout rooted at baseDir:
//
//	baseDir/
//	  data/
//	    raw/
//	      firstratedata_futures/            (intraday minute bars, <SYMBOL>.csv)
//	      nasdaq_srf_futures_settlement/    (daily settlement series)
//	      nasdaq_cot/                       (commitment-of-traders reports)
//	    processed/
//	      futures_contracts/                (derived datasets)
//	        settlement_analytics/
//	  reports/                              (research workbook)
//	  logs/
func PathsFrom(baseDir string) *Paths {
	dataDir := filepath.Join(baseDir, "data")
	rawDir := filepath.Join(dataDir, "raw")
	processedDir := filepath.Join(dataDir, "processed")
	contractsDir := filepath.Join(processedDir, "futures_contracts")
	analyticsDir := filepath.Join(contractsDir, "settlement_analytics")
	reportsDir := filepath.Join(baseDir, "reports")

	return &Paths{
		BaseDir: baseDir,

		DataDir:       dataDir,
		RawDir:        rawDir,
		FuturesDir:    filepath.Join(rawDir, "firstratedata_futures"),
		SettlementDir: filepath.Join(rawDir, "nasdaq_srf_futures_settlement"),
		COTDir:        filepath.Join(rawDir, "nasdaq_cot"),

		ProcessedDir:           processedDir,
		ContractsDir:           contractsDir,
		SettlementAnalyticsDir: analyticsDir,

		ReportsDir: reportsDir,
		LogsDir:    filepath.Join(baseDir, "logs"),

		ExpirationsCSV:          filepath.Join(contractsDir, "expiration_date_by_contract.csv"),
		TradingDaysCSV:          filepath.Join(contractsDir, "unique_trading_days_le_contracts.csv"),
		OvernightChangesCSV:     filepath.Join(contractsDir, "overnight_changes_by_contract.csv"),
		COTSignalsCSV:           filepath.Join(contractsDir, "nasdaq_cot_intraday_open_signals_correlation.csv"),
		VolumeByMinuteCSV:       filepath.Join(contractsDir, "volume_by_open_minute.csv"),
		VolumeByDTECSV:          filepath.Join(contractsDir, "volume_by_dte.csv"),
		SettlementVolatilityCSV: filepath.Join(analyticsDir, "settlement_volatility.csv"),
		TemporalSettlementCSV:   filepath.Join(analyticsDir, "temporal_settlement_analytics.csv"),
		WorkbookXLSX:            filepath.Join(reportsDir, "research_workbook.xlsx"),
	}
}

// EnrichedCSV returns the enriched bar dataset path for an open type
func (p *Paths) EnrichedCSV(openType string) string {
	return filepath.Join(p.ContractsDir, fmt.Sprintf("contract_open_enriched_%s.csv", openType))
}

// TemporalCSV returns the temporal analytics dataset path for a grouping interval
func (p *Paths) TemporalCSV(interval string) string {
	return filepath.Join(p.ContractsDir, fmt.Sprintf("temporal_analytics_%s.csv", interval))
}

// SettlementChangesCSV returns the settlement gap dataset path for an open
// type and lookback interval
func (p *Paths) SettlementChangesCSV(openType, interval string) string {
	return filepath.Join(p.SettlementAnalyticsDir, fmt.Sprintf("changes_from_settlement_%s_%s.csv", openType, interval))
}

// DerivedDatasets maps the dataset names served by the API to file paths.
// Names are the file stems of the derived CSVs.
func (p *Paths) DerivedDatasets() map[string]string {
	datasets := map[string]string{
		"expiration_date_by_contract":      p.ExpirationsCSV,
		"unique_trading_days_le_contracts": p.TradingDaysCSV,
		"overnight_changes_by_contract":    p.OvernightChangesCSV,
		"nasdaq_cot_intraday_open_signals_correlation": p.COTSignalsCSV,
		"volume_by_open_minute":                        p.VolumeByMinuteCSV,
		"volume_by_dte":                                p.VolumeByDTECSV,
		"settlement_volatility":                        p.SettlementVolatilityCSV,
		"temporal_settlement_analytics":                p.TemporalSettlementCSV,
	}

	for _, interval := range []string{"day_of_week", "month", "year"} {
		datasets["temporal_analytics_"+interval] = p.TemporalCSV(interval)
	}

	for _, openType := range []string{"true_open", "sliding_open"} {
		datasets["contract_open_enriched_"+openType] = p.EnrichedCSV(openType)
		for _, interval := range []string{"overnight", "weekly", "monthly", "annualy"} {
			datasets["changes_from_settlement_"+openType+"_"+interval] = p.SettlementChangesCSV(openType, interval)
		}
	}

	return datasets
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.FuturesDir,
		p.SettlementDir,
		p.COTDir,
		p.ProcessedDir,
		p.ContractsDir,
		p.SettlementAnalyticsDir,
		p.ReportsDir,
		p.LogsDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if logger != nil {
			logger.Debug("Ensured directory exists",
				slog.String("directory", dir))
		}
	}

	return nil
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	logger := slog.Default()
	if logger == nil {
		return
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("futures", p.FuturesDir),
			slog.String("settlement", p.SettlementDir),
			slog.String("cot", p.COTDir),
			slog.String("contracts", p.ContractsDir),
			slog.String("settlement_analytics", p.SettlementAnalyticsDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("datasets",
			slog.String("expirations", p.ExpirationsCSV),
			slog.String("trading_days", p.TradingDaysCSV),
			slog.String("cot_signals", p.COTSignalsCSV),
			slog.String("workbook", p.WorkbookXLSX),
		))
}

// ValidateRawDirectories checks that the raw dataset directories exist and
// returns detailed error information when some are missing
func (p *Paths) ValidateRawDirectories() error {
	required := []struct {
		name string
		dir  string
	}{
		{"futures bars", p.FuturesDir},
		{"settlement series", p.SettlementDir},
		{"cot reports", p.COTDir},
	}

	var missing []string
	for _, r := range required {
		if info, err := os.Stat(r.dir); err != nil || !info.IsDir() {
			missing = append(missing, fmt.Sprintf("%s (%s)", r.name, r.dir))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("raw data directories missing: %s", strings.Join(missing, ", "))
	}

	return nil
}
