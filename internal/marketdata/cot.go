package marketdata

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadCOTReport reads one Commitment-of-Traders report. The first
// column must be Date; every other column is kept as a numeric series
// under its header name. Empty cells become NaN so that medians skip
// them the way the original analysis did.
func LoadCOTReport(csvPath string) (COTReport, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return COTReport{}, fmt.Errorf("open COT report: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return COTReport{}, fmt.Errorf("read COT report %s: %w", filepath.Base(csvPath), err)
	}
	if len(records) < 2 {
		return COTReport{}, fmt.Errorf("COT report %s has no data rows", filepath.Base(csvPath))
	}

	header := records[0]
	if len(header) < 2 {
		return COTReport{}, fmt.Errorf("COT report %s needs a Date column and at least one field", filepath.Base(csvPath))
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "Date") {
		return COTReport{}, fmt.Errorf("COT report %s: first column is %q, want Date", filepath.Base(csvPath), header[0])
	}

	report := COTReport{
		Name:   strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath)),
		Fields: make([]string, 0, len(header)),
		Values: make(map[string][]float64, len(header)-1),
	}
	for _, name := range header {
		report.Fields = append(report.Fields, strings.TrimSpace(name))
	}

	fieldNames := report.Fields[1:]
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) != len(header) {
			return COTReport{}, fmt.Errorf("COT report %s: line %d has %d columns, want %d",
				filepath.Base(csvPath), i+1, len(record), len(header))
		}

		date, err := parseSettlementDate(strings.TrimSpace(record[0]))
		if err != nil {
			return COTReport{}, fmt.Errorf("COT report %s: parse date (line %d): %w", filepath.Base(csvPath), i+1, err)
		}
		report.Dates = append(report.Dates, date)

		for col, name := range fieldNames {
			cell := strings.TrimSpace(record[col+1])
			value := math.NaN()
			if cell != "" {
				value, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return COTReport{}, fmt.Errorf("COT report %s: parse %q (line %d): %w",
						filepath.Base(csvPath), name, i+1, err)
				}
			}
			report.Values[name] = append(report.Values[name], value)
		}
	}

	return report, nil
}

// DatesWhere partitions the report's dates by comparing a field's
// values to a threshold: dates with value >= threshold land in above,
// the rest in below. NaN rows fall in neither set, and a NaN threshold
// strands every date.
func (r COTReport) DatesWhere(field string, threshold float64) (above, below map[time.Time]struct{}) {
	above = make(map[time.Time]struct{})
	below = make(map[time.Time]struct{})
	series, ok := r.Values[field]
	if !ok || math.IsNaN(threshold) {
		return above, below
	}
	for i, value := range series {
		if i >= len(r.Dates) || math.IsNaN(value) {
			continue
		}
		day := dateOnly(r.Dates[i])
		if value >= threshold {
			above[day] = struct{}{}
		} else {
			below[day] = struct{}{}
		}
	}
	return above, below
}
