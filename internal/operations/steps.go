package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/cot"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/overnight"
	"github.com/cooper437/commodities-research/internal/settlement"
	"github.com/cooper437/commodities-research/internal/temporal"
	"github.com/cooper437/commodities-research/internal/volume"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// RegisterResearchSteps wires every research pipeline step into the
// registry in canonical order.
func RegisterResearchSteps(registry *Registry, cfg *config.Config, paths *config.Paths, logger *slog.Logger, options StepOptions) error {
	prefix := cfg.Enrichment.SymbolPrefix
	steps := []Step{
		NewExpirationsStep(paths, logger, options),
		NewTradingDaysStep(paths, prefix, logger, options),
		NewOpenWindowStep(paths, cfg.Enrichment, logger, options),
		NewOvernightStep(paths, prefix, logger, options),
		NewSettlementChangesStep(paths, cfg.Settlement, cfg.COT, prefix, logger, options),
		NewSettlementVolatilityStep(paths, prefix, logger, options),
		NewTemporalStep(paths, cfg.COT, logger, options),
		NewCOTSignalsStep(paths, cfg.COT, logger, options),
		NewVolumeProfileStep(paths, cfg.Enrichment, logger, options),
		NewWorkbookStep(paths, logger, options),
	}
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return err
		}
	}
	return registry.ValidateDependencies()
}

func stepLogger(logger *slog.Logger, stepID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("step", stepID))
}

// reportProgress mirrors step progress into both the operation state and
// the status broadcaster so websocket clients see it live.
func reportProgress(options StepOptions, state *OperationState, stepState *StepState, progress float64, message string) {
	stepState.UpdateProgress(progress, message)
	if options.StatusBroadcaster != nil {
		options.StatusBroadcaster.UpdateStepProgress(state.ID, stepState.ID, int(progress), message)
	}
}

// finishStep publishes the final progress message together with the step's
// accumulated metadata.
func finishStep(options StepOptions, state *OperationState, stepState *StepState, message string) {
	stepState.UpdateProgress(100, message)
	if options.StatusBroadcaster != nil {
		options.StatusBroadcaster.UpdateStepWithMetadata(state.ID, stepState.ID, 100, message, stepState.GetMetadata())
	}
}

// requireDir fails validation when an input directory is missing
func requireDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s directory not found at %s", what, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path %s is not a directory", what, path)
	}
	return nil
}

// requireFile fails validation when an input dataset is missing
func requireFile(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s not found at %s", what, path)
	}
	return nil
}

// requireEnriched fails validation when any enriched bar dataset is missing
func requireEnriched(paths *config.Paths) error {
	for _, mode := range domain.AllOpenTypes() {
		if err := requireFile(paths.EnrichedCSV(mode.String()), fmt.Sprintf("%s enriched dataset", mode)); err != nil {
			return err
		}
	}
	return nil
}

// openTypesOf converts configured open type names to domain values. An
// empty list means both modes.
func openTypesOf(names []string) ([]domain.OpenType, error) {
	if len(names) == 0 {
		return domain.AllOpenTypes(), nil
	}
	types := make([]domain.OpenType, 0, len(names))
	for _, name := range names {
		t := domain.OpenType(name)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown open type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// lookbacksOf converts configured lookback interval names to domain
// values. An empty list means every horizon.
func lookbacksOf(names []string) ([]domain.LookbackInterval, error) {
	if len(names) == 0 {
		return domain.AllLookbackIntervals(), nil
	}
	intervals := make([]domain.LookbackInterval, 0, len(names))
	for _, name := range names {
		i := domain.LookbackInterval(name)
		if !i.Valid() {
			return nil, fmt.Errorf("unknown lookback interval %q", name)
		}
		intervals = append(intervals, i)
	}
	return intervals, nil
}

// ExpirationsStep builds the contract expiration index from the final
// bar of each intraday file.
type ExpirationsStep struct {
	BaseStep
	paths   *config.Paths
	logger  *slog.Logger
	options StepOptions
}

// NewExpirationsStep creates the expiration index step
func NewExpirationsStep(paths *config.Paths, logger *slog.Logger, options StepOptions) *ExpirationsStep {
	return &ExpirationsStep{
		BaseStep: NewBaseStep(StepIDExpirations, StepNameExpirations),
		paths:    paths,
		logger:   stepLogger(logger, StepIDExpirations),
		options:  options,
	}
}

// Validate checks that the intraday archives are present
func (s *ExpirationsStep) Validate(state *OperationState) error {
	return requireDir(s.paths.FuturesDir, "intraday futures")
}

// Execute scans the bar files and writes the expiration index
func (s *ExpirationsStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Building contract expiration index")
	reportProgress(s.options, state, stepState, 10, "Scanning intraday archives for final bars")

	index, err := expirations.NewBuilder(s.paths, "").Run(ctx)
	if err != nil {
		return err
	}

	stepState.SetMetadata("contracts", index.Len())
	finishStep(s.options, state, stepState, fmt.Sprintf("Indexed %d contract expirations", index.Len()))
	return nil
}

// TradingDaysStep derives the trading day calendar from the intraday
// archives.
type TradingDaysStep struct {
	BaseStep
	paths   *config.Paths
	prefix  string
	logger  *slog.Logger
	options StepOptions
}

// NewTradingDaysStep creates the trading day calendar step
func NewTradingDaysStep(paths *config.Paths, prefix string, logger *slog.Logger, options StepOptions) *TradingDaysStep {
	return &TradingDaysStep{
		BaseStep: NewBaseStep(StepIDTradingDays, StepNameTradingDays),
		paths:    paths,
		prefix:   prefix,
		logger:   stepLogger(logger, StepIDTradingDays),
		options:  options,
	}
}

// Validate checks that the intraday archives are present
func (s *TradingDaysStep) Validate(state *OperationState) error {
	return requireDir(s.paths.FuturesDir, "intraday futures")
}

// Execute scans the intraday archives and writes the trading day calendar
func (s *TradingDaysStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Building trading day calendar")
	reportProgress(s.options, state, stepState, 10, "Scanning intraday archives for trading days")

	cal, err := calendar.NewBuilder(s.paths, s.prefix).Run(ctx)
	if err != nil {
		return err
	}

	stepState.SetMetadata("trading_days", cal.Len())
	finishStep(s.options, state, stepState, fmt.Sprintf("Observed %d trading days", cal.Len()))
	return nil
}

// OpenWindowStep enriches bars inside the open window with change from
// open, expiration, and DTE columns, once per open mode.
type OpenWindowStep struct {
	BaseStep
	paths   *config.Paths
	cfg     config.EnrichmentConfig
	logger  *slog.Logger
	options StepOptions
}

// NewOpenWindowStep creates the open window enrichment step
func NewOpenWindowStep(paths *config.Paths, cfg config.EnrichmentConfig, logger *slog.Logger, options StepOptions) *OpenWindowStep {
	return &OpenWindowStep{
		BaseStep: NewBaseStep(StepIDOpenWindow, StepNameOpenWindow, StepIDExpirations),
		paths:    paths,
		cfg:      cfg,
		logger:   stepLogger(logger, StepIDOpenWindow),
		options:  options,
	}
}

// Validate checks that the intraday archives and expiration index exist
func (s *OpenWindowStep) Validate(state *OperationState) error {
	if err := requireDir(s.paths.FuturesDir, "intraday futures"); err != nil {
		return err
	}
	return requireFile(s.paths.ExpirationsCSV, "expiration index")
}

// Execute enriches the open window bars for every open mode
func (s *OpenWindowStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Enriching open window bars")

	index, err := expirations.Load(s.paths.ExpirationsCSV)
	if err != nil {
		return err
	}
	enricher, err := openwindow.NewEnricher(s.paths, index, s.cfg)
	if err != nil {
		return err
	}

	modes := domain.AllOpenTypes()
	tracker := NewProgressTracker(s.ID(), len(modes))
	for _, mode := range modes {
		reportProgress(s.options, state, stepState, tracker.Progress(), fmt.Sprintf("Enriching %s bars", mode))
		rows, err := enricher.Run(ctx, []domain.OpenType{mode})
		if err != nil {
			return err
		}
		stepState.SetMetadata(fmt.Sprintf("%s_rows", mode), rows[mode])
		tracker.Increment(fmt.Sprintf("Enriched %s bars", mode))
		reportProgress(s.options, state, stepState, tracker.Progress(), tracker.Message())
	}

	finishStep(s.options, state, stepState, "Open window enrichment complete")
	return nil
}

// OvernightStep reports close-to-open changes between consecutive trading
// days.
type OvernightStep struct {
	BaseStep
	paths   *config.Paths
	prefix  string
	logger  *slog.Logger
	options StepOptions
}

// NewOvernightStep creates the overnight change step
func NewOvernightStep(paths *config.Paths, prefix string, logger *slog.Logger, options StepOptions) *OvernightStep {
	return &OvernightStep{
		BaseStep: NewBaseStep(StepIDOvernight, StepNameOvernight, StepIDTradingDays, StepIDOpenWindow),
		paths:    paths,
		prefix:   prefix,
		logger:   stepLogger(logger, StepIDOvernight),
		options:  options,
	}
}

// Validate checks that the trading day calendar and archives exist
func (s *OvernightStep) Validate(state *OperationState) error {
	if err := requireDir(s.paths.FuturesDir, "intraday futures"); err != nil {
		return err
	}
	return requireFile(s.paths.TradingDaysCSV, "trading day calendar")
}

// Execute writes the overnight change dataset
func (s *OvernightStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Analyzing overnight changes")
	reportProgress(s.options, state, stepState, 10, "Loading trading day calendar")

	cal, err := calendar.Load(s.paths.TradingDaysCSV)
	if err != nil {
		return err
	}
	rows, err := overnight.NewAnalyzer(s.paths, cal, s.prefix).Run(ctx)
	if err != nil {
		return err
	}

	stepState.SetMetadata("rows", rows)
	finishStep(s.options, state, stepState, fmt.Sprintf("Wrote %d overnight changes", rows))
	return nil
}

// SettlementChangesStep measures open-versus-prior-settlement gaps at the
// configured lookback horizons and splits the intraday battery on the gap
// median, including the temporal split variant.
type SettlementChangesStep struct {
	BaseStep
	paths      *config.Paths
	settlement config.SettlementConfig
	cot        config.COTConfig
	prefix     string
	logger     *slog.Logger
	options    StepOptions
}

// NewSettlementChangesStep creates the settlement change step
func NewSettlementChangesStep(paths *config.Paths, settlementCfg config.SettlementConfig, cotCfg config.COTConfig, prefix string, logger *slog.Logger, options StepOptions) *SettlementChangesStep {
	return &SettlementChangesStep{
		BaseStep:   NewBaseStep(StepIDSettlementChanges, StepNameSettlementChanges, StepIDTradingDays, StepIDOpenWindow),
		paths:      paths,
		settlement: settlementCfg,
		cot:        cotCfg,
		prefix:     prefix,
		logger:     stepLogger(logger, StepIDSettlementChanges),
		options:    options,
	}
}

// Validate checks that the settlement archive and calendar exist
func (s *SettlementChangesStep) Validate(state *OperationState) error {
	if err := requireDir(s.paths.SettlementDir, "settlement archive"); err != nil {
		return err
	}
	return requireFile(s.paths.TradingDaysCSV, "trading day calendar")
}

// Execute writes the settlement change datasets and the temporal split
func (s *SettlementChangesStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Analyzing settlement gaps")

	openTypes, err := openTypesOf(s.settlement.OpenTypes)
	if err != nil {
		return err
	}
	intervals, err := lookbacksOf(s.settlement.Intervals)
	if err != nil {
		return err
	}
	cal, err := calendar.Load(s.paths.TradingDaysCSV)
	if err != nil {
		return err
	}

	tracker := NewProgressTracker(s.ID(), 2)
	reportProgress(s.options, state, stepState, 5, "Building settlement change datasets")

	rows, err := settlement.NewChangeBuilder(s.paths, cal, s.prefix).Run(ctx, openTypes, intervals)
	if err != nil {
		return err
	}
	for dataset, count := range rows {
		stepState.SetMetadata(dataset, count)
	}
	tracker.Increment("Settlement changes written")
	reportProgress(s.options, state, stepState, tracker.Progress(), tracker.Message())

	temporalRows, err := settlement.NewTemporalBuilder(s.paths, s.cot).Run(ctx, openTypes, intervals)
	if err != nil {
		return err
	}
	stepState.SetMetadata("temporal_split_rows", temporalRows)
	tracker.Increment("Temporal settlement split written")

	finishStep(s.options, state, stepState, "Settlement change analysis complete")
	return nil
}

// SettlementVolatilityStep summarises settlement price dispersion per
// contract.
type SettlementVolatilityStep struct {
	BaseStep
	paths   *config.Paths
	prefix  string
	logger  *slog.Logger
	options StepOptions
}

// NewSettlementVolatilityStep creates the settlement volatility step
func NewSettlementVolatilityStep(paths *config.Paths, prefix string, logger *slog.Logger, options StepOptions) *SettlementVolatilityStep {
	return &SettlementVolatilityStep{
		BaseStep: NewBaseStep(StepIDSettlementVolatility, StepNameSettlementVolatility),
		paths:    paths,
		prefix:   prefix,
		logger:   stepLogger(logger, StepIDSettlementVolatility),
		options:  options,
	}
}

// Validate checks that the settlement archive exists
func (s *SettlementVolatilityStep) Validate(state *OperationState) error {
	return requireDir(s.paths.SettlementDir, "settlement archive")
}

// Execute writes the per-contract settlement volatility summary
func (s *SettlementVolatilityStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Summarising settlement volatility")
	reportProgress(s.options, state, stepState, 10, "Scanning settlement series")

	rows, err := settlement.NewVolatilityBuilder(s.paths, s.prefix).Run(ctx)
	if err != nil {
		return err
	}

	stepState.SetMetadata("rows", rows)
	finishStep(s.options, state, stepState, fmt.Sprintf("Wrote volatility summary for %d contracts", rows))
	return nil
}

// TemporalStep aggregates the intraday battery by weekday, month, and year.
type TemporalStep struct {
	BaseStep
	paths   *config.Paths
	cot     config.COTConfig
	logger  *slog.Logger
	options StepOptions
}

// NewTemporalStep creates the temporal analytics step
func NewTemporalStep(paths *config.Paths, cotCfg config.COTConfig, logger *slog.Logger, options StepOptions) *TemporalStep {
	return &TemporalStep{
		BaseStep: NewBaseStep(StepIDTemporal, StepNameTemporal, StepIDOpenWindow),
		paths:    paths,
		cot:      cotCfg,
		logger:   stepLogger(logger, StepIDTemporal),
		options:  options,
	}
}

// Validate checks that the enriched bar datasets exist
func (s *TemporalStep) Validate(state *OperationState) error {
	return requireEnriched(s.paths)
}

// Execute writes the temporal analytics datasets
func (s *TemporalStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Building temporal analytics")
	reportProgress(s.options, state, stepState, 10, "Grouping enriched bars by calendar interval")

	rows, err := temporal.NewAnalyzer(s.paths, s.cot).Run(ctx, domain.AllOpenTypes(), domain.AllTemporalIntervals())
	if err != nil {
		return err
	}

	for dataset, count := range rows {
		stepState.SetMetadata(dataset, count)
	}
	finishStep(s.options, state, stepState, "Temporal analytics complete")
	return nil
}

// COTSignalsStep splits the intraday battery on Commitments of Traders
// positioning medians.
type COTSignalsStep struct {
	BaseStep
	paths   *config.Paths
	cot     config.COTConfig
	logger  *slog.Logger
	options StepOptions
}

// NewCOTSignalsStep creates the CoT signal step
func NewCOTSignalsStep(paths *config.Paths, cotCfg config.COTConfig, logger *slog.Logger, options StepOptions) *COTSignalsStep {
	return &COTSignalsStep{
		BaseStep: NewBaseStep(StepIDCOTSignals, StepNameCOTSignals, StepIDOpenWindow),
		paths:    paths,
		cot:      cotCfg,
		logger:   stepLogger(logger, StepIDCOTSignals),
		options:  options,
	}
}

// Validate checks that the CoT reports and enriched datasets exist
func (s *COTSignalsStep) Validate(state *OperationState) error {
	if err := requireDir(s.paths.COTDir, "CoT reports"); err != nil {
		return err
	}
	return requireEnriched(s.paths)
}

// Execute writes the CoT signal correlation dataset
func (s *COTSignalsStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Correlating CoT positioning with intraday opens")
	reportProgress(s.options, state, stepState, 10, "Loading CoT reports")

	rows, err := cot.NewAnalyzer(s.paths, s.cot).Run(ctx)
	if err != nil {
		return err
	}

	stepState.SetMetadata("rows", rows)
	finishStep(s.options, state, stepState, fmt.Sprintf("Wrote %d CoT signal rows", rows))
	return nil
}

// VolumeProfileStep profiles traded volume by open-window minute and DTE
// bucket.
type VolumeProfileStep struct {
	BaseStep
	paths      *config.Paths
	enrichment config.EnrichmentConfig
	logger     *slog.Logger
	options    StepOptions
}

// NewVolumeProfileStep creates the volume profile step
func NewVolumeProfileStep(paths *config.Paths, enrichment config.EnrichmentConfig, logger *slog.Logger, options StepOptions) *VolumeProfileStep {
	return &VolumeProfileStep{
		BaseStep:   NewBaseStep(StepIDVolumeProfile, StepNameVolumeProfile, StepIDOpenWindow),
		paths:      paths,
		enrichment: enrichment,
		logger:     stepLogger(logger, StepIDVolumeProfile),
		options:    options,
	}
}

// Validate checks that the enriched bar datasets exist
func (s *VolumeProfileStep) Validate(state *OperationState) error {
	return requireEnriched(s.paths)
}

// Execute writes the volume profile datasets
func (s *VolumeProfileStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Profiling traded volume")
	reportProgress(s.options, state, stepState, 10, "Aggregating volume by minute and DTE")

	rows, err := volume.NewProfiler(s.paths, s.enrichment).Run(ctx, domain.AllOpenTypes())
	if err != nil {
		return err
	}

	for dataset, count := range rows {
		stepState.SetMetadata(dataset, count)
	}
	finishStep(s.options, state, stepState, "Volume profiles complete")
	return nil
}

// WorkbookStep collects every derived dataset into the research workbook.
type WorkbookStep struct {
	BaseStep
	paths   *config.Paths
	logger  *slog.Logger
	options StepOptions
}

// NewWorkbookStep creates the workbook export step. It depends on every
// producing step so it always runs last, but tolerates missing datasets
// so partial runs still export what exists.
func NewWorkbookStep(paths *config.Paths, logger *slog.Logger, options StepOptions) *WorkbookStep {
	return &WorkbookStep{
		BaseStep: NewBaseStep(StepIDWorkbook, StepNameWorkbook,
			StepIDExpirations,
			StepIDTradingDays,
			StepIDOpenWindow,
			StepIDOvernight,
			StepIDSettlementChanges,
			StepIDSettlementVolatility,
			StepIDTemporal,
			StepIDCOTSignals,
			StepIDVolumeProfile,
		),
		paths:   paths,
		logger:  stepLogger(logger, StepIDWorkbook),
		options: options,
	}
}

// Execute assembles the research workbook from the derived datasets
func (s *WorkbookStep) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	s.logger.InfoContext(ctx, "Assembling research workbook")
	reportProgress(s.options, state, stepState, 10, "Collecting derived datasets")

	path, err := exporter.NewResearchExporter(s.paths).Export(domain.AllOpenTypes())
	if err != nil {
		return err
	}

	stepState.SetMetadata("workbook", path)
	finishStep(s.options, state, stepState, "Research workbook written")
	return nil
}
