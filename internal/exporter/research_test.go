package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

const testVolumeByMinuteCSV = `Open Type,Open Minutes Offset,Bars,Total Volume,Mean Volume,Normalized Mean Volume
true_open,0,1200,84000,70,1
true_open,1,1180,59000,50,0
sliding_open,0,1250,87500,70,1
sliding_open,1,1230,61500,50,0
`

const testEnrichedTrueOpenCSV = `Symbol,DateTime,Open Minutes Offset,Open,High,Low,Close,Volume,Price Change From Intraday Open,Expiration Date,DTE
LEG15,2015-01-05 09:30:00,0,162.1,162.5,161.9,162.25,120,0.25,2015-02-27,53
LEG15,2015-01-06 09:30:00,0,163,163.2,162.8,163.1,90,0.75,2015-02-27,52
LEG15,2015-01-05 09:31:00,1,162.25,162.3,162,162.05,85,-0.5,2015-02-27,53
`

const testEnrichedSlidingOpenCSV = `Symbol,DateTime,Open Minutes Offset,Open,High,Low,Close,Volume,Price Change From Intraday Open,Expiration Date,DTE
LEG15,2015-01-05 09:30:00,0,162.1,162.5,161.9,162.225,120,0.125,2015-02-27,53
`

const testSettlementVolatilityCSV = `Date,Symbol,30D Count,7D Count,365D Count,365D Range,7D Range,30D CSD,30D Range
2015-01-05,LEG15,20,5,200,10.5,1.25,0.8,3.5
`

// setupResearchFixtures writes a partial set of derived datasets
func setupResearchFixtures(t *testing.T) *config.Paths {
	t.Helper()

	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	writeDataset := func(path, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	writeDataset(paths.VolumeByMinuteCSV, testVolumeByMinuteCSV)
	writeDataset(paths.EnrichedCSV(string(domain.OpenTypeTrue)), testEnrichedTrueOpenCSV)
	writeDataset(paths.EnrichedCSV(string(domain.OpenTypeSliding)), testEnrichedSlidingOpenCSV)
	writeDataset(paths.SettlementVolatilityCSV, testSettlementVolatilityCSV)

	return paths
}

func TestResearchExporter_Export(t *testing.T) {
	paths := setupResearchFixtures(t)
	research := NewResearchExporter(paths)

	workbookPath, err := research.Export(domain.AllOpenTypes())
	require.NoError(t, err)
	assert.Equal(t, paths.WorkbookXLSX, workbookPath)

	file, err := excelize.OpenFile(workbookPath)
	require.NoError(t, err)
	defer file.Close()

	sheets := file.GetSheetList()
	assert.Equal(t, []string{
		"Volume By Minute",
		"Settlement Volatility",
		"Volume Curves",
		"ACFO Curves",
	}, sheets, "missing datasets should be skipped, present ones sheeted in order")

	// Dataset sheet carries the CSV as-is
	rows, err := file.GetRows("Volume By Minute")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Open Type", rows[0][0])
	assert.Equal(t, "true_open", rows[1][0])

	// Volume pivot: one mean-volume column per open type
	value, err := file.GetCellValue("Volume Curves", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Open Minutes Offset", value)
	value, err = file.GetCellValue("Volume Curves", "B1")
	require.NoError(t, err)
	assert.Equal(t, "true_open", value)
	value, err = file.GetCellValue("Volume Curves", "C1")
	require.NoError(t, err)
	assert.Equal(t, "sliding_open", value)
	value, err = file.GetCellValue("Volume Curves", "B2")
	require.NoError(t, err)
	assert.Equal(t, "70", value)
	value, err = file.GetCellValue("Volume Curves", "C3")
	require.NoError(t, err)
	assert.Equal(t, "50", value)
}

func TestResearchExporter_ACFOCurveValues(t *testing.T) {
	paths := setupResearchFixtures(t)
	research := NewResearchExporter(paths)

	workbookPath, err := research.Export(domain.AllOpenTypes())
	require.NoError(t, err)

	file, err := excelize.OpenFile(workbookPath)
	require.NoError(t, err)
	defer file.Close()

	// true_open offset 0 averages 0.25 and 0.75
	value, err := file.GetCellValue("ACFO Curves", "B2")
	require.NoError(t, err)
	assert.Equal(t, "0.5", value)

	// true_open offset 1 has a single bar
	value, err = file.GetCellValue("ACFO Curves", "B3")
	require.NoError(t, err)
	assert.Equal(t, "-0.5", value)

	// sliding_open only has offset 0, so its offset-1 cell stays blank
	value, err = file.GetCellValue("ACFO Curves", "C2")
	require.NoError(t, err)
	assert.Equal(t, "0.125", value)
	value, err = file.GetCellValue("ACFO Curves", "C3")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestResearchExporter_NoDatasets(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	research := NewResearchExporter(paths)

	_, err := research.Export(domain.AllOpenTypes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no datasets")

	_, statErr := os.Stat(paths.WorkbookXLSX)
	assert.True(t, os.IsNotExist(statErr), "no workbook should be written")
}

func TestMeanCFOByOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enriched.csv")
	require.NoError(t, os.WriteFile(path, []byte(testEnrichedTrueOpenCSV), 0644))

	curve, err := meanCFOByOffset(path)
	require.NoError(t, err)

	assert.Equal(t, map[int]string{
		0: "0.5",
		1: "-0.5",
	}, curve)
}

func TestMeanCFOByOffset_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Symbol,Close\nLEG15,162.1\n"), 0644))

	_, err := meanCFOByOffset(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Open Minutes Offset")
}
