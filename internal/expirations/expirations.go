// Package expirations derives each contract's expiration date from the
// final bar of its intraday file and maintains the symbol-to-expiration
// index the enrichment join consumes.
package expirations

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
)

const dateFormat = "2006-01-02"

var csvHeader = []string{"Symbol", "Expiration Date"}

// Index maps contract symbols to their expiration dates, preserving
// the filename order the scan discovered them in.
type Index struct {
	symbols []string
	dates   map[string]time.Time
}

func newIndex() *Index {
	return &Index{dates: make(map[string]time.Time)}
}

func (x *Index) add(symbol string, date time.Time) {
	if _, ok := x.dates[symbol]; !ok {
		x.symbols = append(x.symbols, symbol)
	}
	x.dates[symbol] = date
}

// Len returns the number of contracts in the index.
func (x *Index) Len() int {
	return len(x.symbols)
}

// Symbols returns the contract symbols in index order.
func (x *Index) Symbols() []string {
	out := make([]string, len(x.symbols))
	copy(out, x.symbols)
	return out
}

// Expiration returns the expiration date recorded for a symbol.
func (x *Index) Expiration(symbol string) (time.Time, bool) {
	date, ok := x.dates[symbol]
	return date, ok
}

// DaysToExpiration returns the whole days from the given date's
// midnight to the symbol's expiration.
func (x *Index) DaysToExpiration(symbol string, date time.Time) (int, bool) {
	expiration, ok := x.dates[symbol]
	if !ok {
		return 0, false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return int(expiration.Sub(day).Hours() / 24), true
}

// Records renders the index as CSV rows in index order.
func (x *Index) Records() [][]string {
	records := make([][]string, 0, len(x.symbols))
	for _, symbol := range x.symbols {
		records = append(records, []string{symbol, x.dates[symbol].Format(dateFormat)})
	}
	return records
}

// Builder scans the raw futures directory and derives the expiration
// index from the bar files.
type Builder struct {
	paths  *config.Paths
	prefix string
}

// NewBuilder creates an expiration index builder. An empty prefix scans
// every contract file in the futures directory.
func NewBuilder(paths *config.Paths, prefix string) *Builder {
	return &Builder{paths: paths, prefix: prefix}
}

// Build derives each contract's expiration from its last bar. The bar
// files ship chronologically ordered, but the loader sorts them anyway
// so the final bar is trustworthy.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	discovery := files.NewDiscovery(b.paths.FuturesDir)
	csvFiles, err := discovery.FindCSVFilesWithPrefix(b.paths.FuturesDir, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("scan futures directory: %w", err)
	}
	if len(csvFiles) == 0 {
		slog.Warn("No contract files found",
			slog.String("dir", b.paths.FuturesDir),
			slog.String("prefix", b.prefix))
	}

	index := newIndex()
	for _, file := range csvFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		contract, err := marketdata.LoadContractBars(file.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Contract file disappeared during scan", slog.String("file", file.Name))
				continue
			}
			return nil, err
		}
		last := contract.Bars[len(contract.Bars)-1]
		index.add(contract.Symbol, last.Date())
	}

	slog.Info("Derived contract expirations",
		slog.String("prefix", b.prefix),
		slog.Int("contracts", index.Len()))
	return index, nil
}

// Run builds the index and writes expiration_date_by_contract.csv.
func (b *Builder) Run(ctx context.Context) (*Index, error) {
	index, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	writer := exporter.NewCSVWriter(b.paths)
	if err := writer.WriteSimpleCSV(b.paths.ExpirationsCSV, csvHeader, index.Records()); err != nil {
		return nil, fmt.Errorf("write expiration index: %w", err)
	}
	return index, nil
}

// Load reads a previously written expiration index from disk.
func Load(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open expiration index: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read expiration index: %w", err)
	}

	index := newIndex()
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("expiration index row %d has %d columns, expected 2", i+1, len(record))
		}
		symbol := strings.TrimSpace(record[0])
		if i == 0 && strings.EqualFold(symbol, "Symbol") {
			continue
		}
		date, err := time.Parse(dateFormat, strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("parse expiration date (line %d): %w", i+1, err)
		}
		index.add(symbol, date)
	}
	if index.Len() == 0 {
		return nil, fmt.Errorf("expiration index %s is empty", path)
	}
	return index, nil
}
