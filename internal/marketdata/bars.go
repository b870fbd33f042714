package marketdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// barDateTimeFormats are the timestamp layouts the FirstRate feed has
// shipped over the years.
var barDateTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// LoadContractBars reads one contract's minute bars from a CSV file.
// Expected format: DateTime,Open,High,Low,Close,Volume with an optional
// header row. The symbol is derived from the filename. Bars are
// returned sorted by timestamp.
func LoadContractBars(csvPath string) (ContractBars, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return ContractBars{}, fmt.Errorf("open contract file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return ContractBars{}, fmt.Errorf("read contract file %s: %w", filepath.Base(csvPath), err)
	}
	if len(records) == 0 {
		return ContractBars{}, fmt.Errorf("contract file %s is empty", filepath.Base(csvPath))
	}

	dataStart := 0
	if isBarHeaderRow(records[0]) {
		dataStart = 1
	}
	if len(records) <= dataStart {
		return ContractBars{}, fmt.Errorf("contract file %s contains only a header", filepath.Base(csvPath))
	}

	bars := make([]MinuteBar, 0, len(records)-dataStart)
	for i := dataStart; i < len(records); i++ {
		bar, err := parseMinuteBarRecord(records[i], i+1)
		if err != nil {
			return ContractBars{}, fmt.Errorf("%s: %w", filepath.Base(csvPath), err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].DateTime.Before(bars[j].DateTime) })

	return ContractBars{
		Symbol: SymbolFromFilename(csvPath),
		Bars:   bars,
	}, nil
}

// parseMinuteBarRecord parses a single CSV record into a MinuteBar.
func parseMinuteBarRecord(record []string, lineNum int) (MinuteBar, error) {
	if len(record) < 6 {
		return MinuteBar{}, fmt.Errorf("insufficient columns (line %d): expected 6, got %d", lineNum, len(record))
	}

	dateTime, err := parseBarDateTime(strings.TrimSpace(record[0]))
	if err != nil {
		return MinuteBar{}, fmt.Errorf("parse datetime (line %d): %w", lineNum, err)
	}

	open, err := parsePrice(record[1], "open", lineNum)
	if err != nil {
		return MinuteBar{}, err
	}
	high, err := parsePrice(record[2], "high", lineNum)
	if err != nil {
		return MinuteBar{}, err
	}
	low, err := parsePrice(record[3], "low", lineNum)
	if err != nil {
		return MinuteBar{}, err
	}
	closePrice, err := parsePrice(record[4], "close", lineNum)
	if err != nil {
		return MinuteBar{}, err
	}

	volumeStr := strings.TrimSpace(record[5])
	var volume int64
	if volumeStr != "" {
		volume, err = strconv.ParseInt(volumeStr, 10, 64)
		if err != nil {
			// Some exports carry volume as a float
			asFloat, floatErr := strconv.ParseFloat(volumeStr, 64)
			if floatErr != nil {
				return MinuteBar{}, fmt.Errorf("parse volume (line %d): %w", lineNum, err)
			}
			volume = int64(asFloat)
		}
	}

	return MinuteBar{
		DateTime: dateTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}

func parseBarDateTime(value string) (time.Time, error) {
	for _, format := range barDateTimeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime: %s", value)
}

func parsePrice(value, fieldName string, lineNum int) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty %s (line %d)", fieldName, lineNum)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s (line %d): %w", fieldName, lineNum, err)
	}
	return parsed, nil
}

func isBarHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	if strings.Contains(first, "datetime") || strings.Contains(first, "date") {
		return true
	}
	_, err := parseBarDateTime(strings.TrimSpace(record[0]))
	return err != nil
}

// SymbolFromFilename derives the contract symbol from a bar file's
// name, e.g. "LEZ15.csv" yields "LEZ15".
func SymbolFromFilename(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
