package openwindow

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// Record renders the bar as a CSV row in the enriched dataset's column
// order. The change from open is fixed to three decimals and blank
// when the day has no true open bar; prices keep full precision.
func (b EnrichedBar) Record() []string {
	change := ""
	if b.ChangeValid() {
		change = exporter.FormatPrice(b.ChangeFromOpen)
	}
	return []string{
		b.Symbol,
		b.DateTime.Format(barTimeFormat),
		strconv.Itoa(b.Offset),
		exporter.FormatStat(b.Open),
		exporter.FormatStat(b.High),
		exporter.FormatStat(b.Low),
		exporter.FormatStat(b.Close),
		exporter.FormatInt(b.Volume),
		change,
		b.Expiration.Format(dateFormat),
		strconv.Itoa(b.DTE),
	}
}

// LoadEnrichedBars reads an enriched open-window dataset back from
// disk. Columns are located by header name, so the datasets survive
// reordering.
func LoadEnrichedBars(path string) ([]EnrichedBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open enriched dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read enriched dataset header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range domain.EnrichedBarColumns() {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("enriched dataset %s has no %s column", filepath.Base(path), name)
		}
	}

	var bars []EnrichedBar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s (line %d): %w", filepath.Base(path), line, err)
		}
		bar, err := parseEnrichedRecord(record, col)
		if err != nil {
			return nil, fmt.Errorf("%s (line %d): %w", filepath.Base(path), line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseEnrichedRecord(record []string, col map[string]int) (EnrichedBar, error) {
	dateTime, err := time.Parse(barTimeFormat, record[col[domain.ColDateTime]])
	if err != nil {
		return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColDateTime, err)
	}
	offset, err := strconv.Atoi(record[col[domain.ColOpenMinutesOffset]])
	if err != nil {
		return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColOpenMinutesOffset, err)
	}

	prices := make(map[string]float64, 4)
	for _, name := range []string{domain.ColOpen, domain.ColHigh, domain.ColLow, domain.ColClose} {
		value, err := strconv.ParseFloat(record[col[name]], 64)
		if err != nil {
			return EnrichedBar{}, fmt.Errorf("parse %s: %w", name, err)
		}
		prices[name] = value
	}

	volume, err := strconv.ParseInt(record[col[domain.ColVolume]], 10, 64)
	if err != nil {
		return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColVolume, err)
	}

	change := math.NaN()
	if cell := strings.TrimSpace(record[col[domain.ColPriceChangeFromOpen]]); cell != "" {
		change, err = strconv.ParseFloat(cell, 64)
		if err != nil {
			return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColPriceChangeFromOpen, err)
		}
	}

	expiration, err := time.Parse(dateFormat, record[col[domain.ColExpirationDate]])
	if err != nil {
		return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColExpirationDate, err)
	}
	dte, err := strconv.Atoi(record[col[domain.ColDTE]])
	if err != nil {
		return EnrichedBar{}, fmt.Errorf("parse %s: %w", domain.ColDTE, err)
	}

	return EnrichedBar{
		Symbol:         record[col[domain.ColSymbol]],
		DateTime:       dateTime,
		Offset:         offset,
		Open:           prices[domain.ColOpen],
		High:           prices[domain.ColHigh],
		Low:            prices[domain.ColLow],
		Close:          prices[domain.ColClose],
		Volume:         volume,
		ChangeFromOpen: change,
		Expiration:     expiration,
		DTE:            dte,
	}, nil
}
