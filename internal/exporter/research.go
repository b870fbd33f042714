package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// ResearchExporter assembles the research workbook from the derived datasets
// on disk. Missing datasets are skipped so a partial pipeline run still
// produces a workbook from whatever is available.
type ResearchExporter struct {
	paths *config.Paths
}

// NewResearchExporter creates a new research workbook exporter
func NewResearchExporter(paths *config.Paths) *ResearchExporter {
	return &ResearchExporter{paths: paths}
}

type datasetSheet struct {
	name string
	path string
}

// datasetSheets lists the dataset-family sheets in workbook order
func (e *ResearchExporter) datasetSheets() []datasetSheet {
	return []datasetSheet{
		{"Volume By Minute", e.paths.VolumeByMinuteCSV},
		{"Volume By DTE", e.paths.VolumeByDTECSV},
		{"Temporal Day Of Week", e.paths.TemporalCSV(string(domain.TemporalDayOfWeek))},
		{"Temporal Month", e.paths.TemporalCSV(string(domain.TemporalMonth))},
		{"Temporal Year", e.paths.TemporalCSV(string(domain.TemporalYear))},
		{"COT Signals", e.paths.COTSignalsCSV},
		{"Settlement Volatility", e.paths.SettlementVolatilityCSV},
		{"Temporal Settlement", e.paths.TemporalSettlementCSV},
	}
}

// Export builds reports/research_workbook.xlsx and returns its path
func (e *ResearchExporter) Export(openTypes []domain.OpenType) (string, error) {
	builder := NewWorkbookBuilder()
	defer builder.Close()

	for _, sheet := range e.datasetSheets() {
		headers, rows, err := readCSVFile(sheet.path)
		if err != nil {
			if os.IsNotExist(err) {
				slog.Warn("Dataset missing, skipping workbook sheet",
					slog.String("sheet", sheet.name),
					slog.String("path", sheet.path))
				continue
			}
			return "", fmt.Errorf("failed to read dataset for sheet %s: %w", sheet.name, err)
		}
		if err := builder.AddDataSheet(sheet.name, headers, rows); err != nil {
			return "", err
		}
	}

	if err := e.addVolumeCurves(builder, openTypes); err != nil {
		return "", err
	}
	if err := e.addACFOCurves(builder, openTypes); err != nil {
		return "", err
	}

	if len(builder.SheetNames()) == 0 {
		return "", fmt.Errorf("no datasets available for the research workbook")
	}

	if err := builder.Save(e.paths.WorkbookXLSX); err != nil {
		return "", err
	}

	slog.Info("Research workbook written",
		slog.String("path", e.paths.WorkbookXLSX),
		slog.Int("sheet_count", len(builder.SheetNames())))

	return e.paths.WorkbookXLSX, nil
}

// addVolumeCurves pivots the volume-by-minute dataset into one mean-volume
// column per open type and anchors a line chart next to it
func (e *ResearchExporter) addVolumeCurves(builder *WorkbookBuilder, openTypes []domain.OpenType) error {
	headers, rows, err := readCSVFile(e.paths.VolumeByMinuteCSV)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Volume by minute dataset missing, skipping volume curve chart")
			return nil
		}
		return fmt.Errorf("failed to read volume by minute dataset: %w", err)
	}

	col := columnIndex(headers)
	typeIdx, ok := col["Open Type"]
	if !ok {
		return fmt.Errorf("volume by minute dataset has no Open Type column")
	}
	offsetIdx, ok := col[domain.ColOpenMinutesOffset]
	if !ok {
		return fmt.Errorf("volume by minute dataset has no %s column", domain.ColOpenMinutesOffset)
	}
	meanIdx, ok := col["Mean Volume"]
	if !ok {
		return fmt.Errorf("volume by minute dataset has no Mean Volume column")
	}

	curves := make(map[domain.OpenType]map[int]string)
	for _, row := range rows {
		openType := domain.OpenType(row[typeIdx])
		offset, err := strconv.Atoi(row[offsetIdx])
		if err != nil {
			continue
		}
		if curves[openType] == nil {
			curves[openType] = make(map[int]string)
		}
		curves[openType][offset] = row[meanIdx]
	}

	return e.addCurveSheet(builder, "Volume Curves", "Mean volume by minute from open", openTypes,
		func(openType domain.OpenType) map[int]string { return curves[openType] })
}

// addACFOCurves computes the mean cumulative change from open per minute
// offset from each enriched dataset and charts the curves
func (e *ResearchExporter) addACFOCurves(builder *WorkbookBuilder, openTypes []domain.OpenType) error {
	curves := make(map[domain.OpenType]map[int]string)

	for _, openType := range openTypes {
		curve, err := meanCFOByOffset(e.paths.EnrichedCSV(string(openType)))
		if err != nil {
			if os.IsNotExist(err) {
				slog.Warn("Enriched dataset missing, skipping its ACFO curve",
					slog.String("open_type", string(openType)))
				continue
			}
			return fmt.Errorf("failed to build ACFO curve for %s: %w", openType, err)
		}
		curves[openType] = curve
	}

	if len(curves) == 0 {
		return nil
	}

	return e.addCurveSheet(builder, "ACFO Curves", "Average cumulative change from open by minute", openTypes,
		func(openType domain.OpenType) map[int]string { return curves[openType] })
}

// addCurveSheet writes an offset-keyed pivot sheet with one column per open
// type and a line chart over the columns
func (e *ResearchExporter) addCurveSheet(builder *WorkbookBuilder, name, title string,
	openTypes []domain.OpenType, curve func(domain.OpenType) map[int]string) error {

	offsetSet := make(map[int]struct{})
	present := make([]domain.OpenType, 0, len(openTypes))
	for _, openType := range openTypes {
		points := curve(openType)
		if len(points) == 0 {
			continue
		}
		present = append(present, openType)
		for offset := range points {
			offsetSet[offset] = struct{}{}
		}
	}
	if len(present) == 0 {
		return nil
	}

	offsets := make([]int, 0, len(offsetSet))
	for offset := range offsetSet {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)

	headers := make([]string, 0, len(present)+1)
	headers = append(headers, domain.ColOpenMinutesOffset)
	for _, openType := range present {
		headers = append(headers, string(openType))
	}

	rows := make([][]string, 0, len(offsets))
	for _, offset := range offsets {
		row := make([]string, 0, len(headers))
		row = append(row, strconv.Itoa(offset))
		for _, openType := range present {
			row = append(row, curve(openType)[offset])
		}
		rows = append(rows, row)
	}

	if err := builder.AddDataSheet(name, headers, rows); err != nil {
		return err
	}

	lastRow := len(rows) + 1
	categories, err := rangeRef(name, 1, 2, lastRow)
	if err != nil {
		return err
	}

	series := make([]ChartSeries, 0, len(present))
	for i := range present {
		nameCell, err := rangeRef(name, i+2, 1, 1)
		if err != nil {
			return err
		}
		values, err := rangeRef(name, i+2, 2, lastRow)
		if err != nil {
			return err
		}
		series = append(series, ChartSeries{
			Name:       nameCell,
			Categories: categories,
			Values:     values,
		})
	}

	// Anchor the chart two columns right of the data
	anchor, err := columnAnchor(len(headers) + 2)
	if err != nil {
		return err
	}
	return builder.AddLineChart(name, anchor, title, series)
}

// meanCFOByOffset streams an enriched dataset and averages the price change
// from open per minute offset
func meanCFOByOffset(path string) (map[int]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := columnIndex(header)
	offsetIdx, ok := col[domain.ColOpenMinutesOffset]
	if !ok {
		return nil, fmt.Errorf("no %s column in %s", domain.ColOpenMinutesOffset, filepath.Base(path))
	}
	cfoIdx, ok := col[domain.ColPriceChangeFromOpen]
	if !ok {
		return nil, fmt.Errorf("no %s column in %s", domain.ColPriceChangeFromOpen, filepath.Base(path))
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		offset, err := strconv.Atoi(record[offsetIdx])
		if err != nil {
			continue
		}
		cfo, err := strconv.ParseFloat(record[cfoIdx], 64)
		if err != nil {
			continue
		}
		sums[offset] += cfo
		counts[offset]++
	}

	curve := make(map[int]string, len(sums))
	for offset, sum := range sums {
		curve[offset] = FormatStat(sum / float64(counts[offset]))
	}
	return curve, nil
}

// readCSVFile loads a whole CSV into a header row plus data rows
func readCSVFile(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}
	return records[0], records[1:], nil
}

// columnIndex maps header names to their column positions
func columnIndex(headers []string) map[string]int {
	index := make(map[string]int, len(headers))
	for i, header := range headers {
		index[header] = i
	}
	return index
}
