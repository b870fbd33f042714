package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WorkbookBuilder assembles an Excel workbook sheet by sheet
type WorkbookBuilder struct {
	file   *excelize.File
	sheets []string
}

// ChartSeries describes one plotted series by cell references
type ChartSeries struct {
	Name       string
	Categories string
	Values     string
}

// NewWorkbookBuilder creates an empty workbook
func NewWorkbookBuilder() *WorkbookBuilder {
	return &WorkbookBuilder{file: excelize.NewFile()}
}

// AddDataSheet adds a sheet with a header row followed by data rows. Cells
// that parse as numbers are written as numbers so chart ranges and Excel
// formulas work against them.
func (b *WorkbookBuilder) AddDataSheet(name string, headers []string, rows [][]string) error {
	// The first sheet replaces the default one excelize creates
	if len(b.sheets) == 0 {
		if err := b.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to rename default sheet to %s: %w", name, err)
		}
	} else {
		if _, err := b.file.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}
	b.sheets = append(b.sheets, name)

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := b.file.SetCellValue(name, cell, header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", header, err)
		}
	}

	for row, record := range rows {
		for col, value := range record {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if num, numErr := strconv.ParseFloat(value, 64); numErr == nil {
				err = b.file.SetCellValue(name, cell, num)
			} else {
				err = b.file.SetCellValue(name, cell, value)
			}
			if err != nil {
				return fmt.Errorf("failed to write cell %s!%s: %w", name, cell, err)
			}
		}
	}

	return nil
}

// AddLineChart anchors a line chart at the given cell
func (b *WorkbookBuilder) AddLineChart(sheet, anchor, title string, series []ChartSeries) error {
	return b.addChart(sheet, anchor, title, excelize.Line, series)
}

// AddColumnChart anchors a clustered column chart at the given cell
func (b *WorkbookBuilder) AddColumnChart(sheet, anchor, title string, series []ChartSeries) error {
	return b.addChart(sheet, anchor, title, excelize.Col, series)
}

func (b *WorkbookBuilder) addChart(sheet, anchor, title string, chartType excelize.ChartType, series []ChartSeries) error {
	chartSeries := make([]excelize.ChartSeries, 0, len(series))
	for _, s := range series {
		chartSeries = append(chartSeries, excelize.ChartSeries{
			Name:       s.Name,
			Categories: s.Categories,
			Values:     s.Values,
		})
	}

	err := b.file.AddChart(sheet, anchor, &excelize.Chart{
		Type:   chartType,
		Series: chartSeries,
		Title:  []excelize.RichTextRun{{Text: title}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{
			Width:  640,
			Height: 360,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add chart %q on %s: %w", title, sheet, err)
	}
	return nil
}

// SheetNames returns the sheets added so far, in order
func (b *WorkbookBuilder) SheetNames() []string {
	names := make([]string, len(b.sheets))
	copy(names, b.sheets)
	return names
}

// Save writes the workbook to disk, creating the parent directory if needed
func (b *WorkbookBuilder) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := b.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close releases the underlying file resources
func (b *WorkbookBuilder) Close() error {
	return b.file.Close()
}

// columnAnchor returns the row-2 cell of a column, used to anchor charts
// beside their data
func columnAnchor(col int) (string, error) {
	return excelize.CoordinatesToCellName(col, 2)
}

// rangeRef returns a sheet-qualified range reference over one column
func rangeRef(sheet string, col, firstRow, lastRow int) (string, error) {
	start, err := excelize.CoordinatesToCellName(col, firstRow, true)
	if err != nil {
		return "", err
	}
	end, err := excelize.CoordinatesToCellName(col, lastRow, true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("'%s'!%s:%s", sheet, start, end), nil
}
