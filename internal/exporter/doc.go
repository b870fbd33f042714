// Package exporter writes the derived research datasets and the Excel
// research workbook.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with header rows, append mode,
// and a streaming writer for the multi-million-row enriched bar datasets.
//
// WorkbookBuilder: Sheet-by-sheet Excel workbook assembly with line and
// column charts over cell ranges.
//
// ResearchExporter: Builds reports/research_workbook.xlsx from whatever
// derived datasets exist on disk, including pivoted volume and ACFO curve
// sheets with charts.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(paths)
//	err := writer.WriteSimpleCSV("volume_by_dte.csv", headers, records)
//
//	research := exporter.NewResearchExporter(paths)
//	workbookPath, err := research.Export(domain.AllOpenTypes())
package exporter
