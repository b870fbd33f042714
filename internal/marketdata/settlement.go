package marketdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// contractMonthCodes are the CME delivery month letters.
const contractMonthCodes = "FGHJKMNQUVXZ"

var settlementDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

// ContractKeyFromFilename extracts the delivery code from a settlement
// filename. The five characters before the extension carry the month
// letter and four-digit year (e.g. "CME_LC_F2015.csv"); the key is the
// month letter plus the last two year digits ("F15"), which matches the
// tail of the corresponding bar-file symbol.
func ContractKeyFromFilename(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if len(stem) < 5 {
		return "", fmt.Errorf("settlement filename %q too short to carry a delivery code", base)
	}
	code := stem[len(stem)-5:]
	month := code[:1]
	year := code[1:]
	if !strings.Contains(contractMonthCodes, month) {
		return "", fmt.Errorf("settlement filename %q: %q is not a delivery month code", base, month)
	}
	for _, r := range year {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("settlement filename %q: year %q is not numeric", base, year)
		}
	}
	return month + year[len(year)-2:], nil
}

// LoadSettlementSeries reads one contract's settlement rows. Expected
// format: Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest with
// a header row. Rows are returned sorted by date ascending; a duplicate
// date is an error because every comparison assumes at most one
// settlement per day.
func LoadSettlementSeries(csvPath string) (SettlementSeries, error) {
	key, err := ContractKeyFromFilename(csvPath)
	if err != nil {
		return SettlementSeries{}, err
	}

	file, err := os.Open(csvPath)
	if err != nil {
		return SettlementSeries{}, fmt.Errorf("open settlement file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return SettlementSeries{}, fmt.Errorf("read settlement file %s: %w", filepath.Base(csvPath), err)
	}
	if len(records) == 0 {
		return SettlementSeries{}, fmt.Errorf("settlement file %s is empty", filepath.Base(csvPath))
	}

	dataStart := 0
	if isSettlementHeaderRow(records[0]) {
		dataStart = 1
	}

	rows := make([]SettlementBar, 0, len(records)-dataStart)
	seen := make(map[time.Time]struct{}, len(records))
	for i := dataStart; i < len(records); i++ {
		row, err := parseSettlementRecord(records[i], i+1)
		if err != nil {
			return SettlementSeries{}, fmt.Errorf("%s: %w", filepath.Base(csvPath), err)
		}
		day := dateOnly(row.Date)
		if _, dup := seen[day]; dup {
			return SettlementSeries{}, fmt.Errorf("%s: more than one settlement row for %s", filepath.Base(csvPath), day.Format("2006-01-02"))
		}
		seen[day] = struct{}{}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	return SettlementSeries{ContractKey: key, Rows: rows}, nil
}

func parseSettlementRecord(record []string, lineNum int) (SettlementBar, error) {
	if len(record) < 7 {
		return SettlementBar{}, fmt.Errorf("insufficient columns (line %d): expected 7, got %d", lineNum, len(record))
	}

	date, err := parseSettlementDate(strings.TrimSpace(record[0]))
	if err != nil {
		return SettlementBar{}, fmt.Errorf("parse date (line %d): %w", lineNum, err)
	}

	open, err := parsePrice(record[1], "open", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}
	high, err := parsePrice(record[2], "high", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}
	low, err := parsePrice(record[3], "low", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}
	settle, err := parsePrice(record[4], "settle", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}
	volume, err := parsePrice(record[5], "volume", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}
	openInterest, err := parsePrice(record[6], "prev. day open interest", lineNum)
	if err != nil {
		return SettlementBar{}, err
	}

	return SettlementBar{
		Date:           date,
		Open:           open,
		High:           high,
		Low:            low,
		Settle:         settle,
		Volume:         volume,
		PrevDayOpenInt: openInterest,
	}, nil
}

func parseSettlementDate(value string) (time.Time, error) {
	for _, format := range settlementDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}

func isSettlementHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	if strings.Contains(first, "date") {
		return true
	}
	_, err := parseSettlementDate(strings.TrimSpace(record[0]))
	return err != nil
}
