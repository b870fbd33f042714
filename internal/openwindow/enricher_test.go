package openwindow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func setupEnricherFixtures(t *testing.T) (*config.Paths, *expirations.Index) {
	t.Helper()
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(paths.FuturesDir, name), []byte(content), 0644))
	}

	// 2015-01-05 trades through the 10:05 pit open; 2015-01-06 has no
	// bar at the open itself
	write("LEG15.csv", `DateTime,Open,High,Low,Close,Volume
2015-01-05 10:05:00,160,160.3,159.9,160.25,100
2015-01-05 10:06:00,160.25,160.6,160.2,160.5,80
2015-01-05 09:00:00,159.5,159.6,159.4,159.55,40
2015-01-06 10:07:00,161,161.3,160.9,161.2,60
`)
	write("LEJ15.csv", `DateTime,Open,High,Low,Close,Volume
2015-09-01 09:30:00,140,140.2,139.9,140.1,50
`)
	write("GFQ15.csv", `DateTime,Open,High,Low,Close,Volume
2015-08-03 09:30:00,215,215.2,214.9,215.1,30
`)

	index, err := expirations.NewBuilder(paths, "").Build(context.Background())
	require.NoError(t, err)

	return paths, index
}

func TestEnricherRun(t *testing.T) {
	paths, index := setupEnricherFixtures(t)

	enricher, err := NewEnricher(paths, index, config.Default().Enrichment)
	require.NoError(t, err)

	rows, err := enricher.Run(context.Background(), domain.AllOpenTypes())
	require.NoError(t, err)
	assert.Equal(t, 4, rows[domain.OpenTypeTrue])
	assert.Equal(t, 4, rows[domain.OpenTypeSliding])

	trueContent, err := os.ReadFile(paths.EnrichedCSV(string(domain.OpenTypeTrue)))
	require.NoError(t, err)
	expectedTrue := "Symbol,DateTime,Open Minutes Offset,Open,High,Low,Close,Volume,Price Change From Intraday Open,Expiration Date,DTE\n" +
		"LEG15,2015-01-05 10:05:00,0,160,160.3,159.9,160.25,100,0.250,2015-01-06,1\n" +
		"LEG15,2015-01-05 10:06:00,1,160.25,160.6,160.2,160.5,80,0.500,2015-01-06,1\n" +
		"LEG15,2015-01-06 10:07:00,2,161,161.3,160.9,161.2,60,,2015-01-06,0\n" +
		"LEJ15,2015-09-01 09:30:00,0,140,140.2,139.9,140.1,50,0.100,2015-09-01,0\n"
	assert.Equal(t, expectedTrue, string(trueContent))

	slidingBars, err := LoadEnrichedBars(paths.EnrichedCSV(string(domain.OpenTypeSliding)))
	require.NoError(t, err)
	require.Len(t, slidingBars, 4)

	// The sliding open fills in the day the true open leaves blank
	assert.Equal(t, "LEG15", slidingBars[2].Symbol)
	assert.Equal(t, 2, slidingBars[2].Offset)
	assert.True(t, slidingBars[2].ChangeValid())
	assert.InDelta(t, 0.2, slidingBars[2].ChangeFromOpen, 1e-3)

	// GF contracts are filtered out by the LE prefix
	for _, b := range slidingBars {
		assert.NotEqual(t, "GFQ15", b.Symbol)
	}
}

func TestEnricherRunSingleMode(t *testing.T) {
	paths, index := setupEnricherFixtures(t)

	enricher, err := NewEnricher(paths, index, config.Default().Enrichment)
	require.NoError(t, err)

	rows, err := enricher.Run(context.Background(), []domain.OpenType{domain.OpenTypeSliding})
	require.NoError(t, err)
	assert.Equal(t, 4, rows[domain.OpenTypeSliding])

	assert.FileExists(t, paths.EnrichedCSV(string(domain.OpenTypeSliding)))
	assert.NoFileExists(t, paths.EnrichedCSV(string(domain.OpenTypeTrue)))
}

func TestEnricherRunNoMatchingFiles(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	index := testIndex(t, "LEG15,2015-02-27")

	enricher, err := NewEnricher(paths, index, config.Default().Enrichment)
	require.NoError(t, err)

	_, err = enricher.Run(context.Background(), domain.AllOpenTypes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contract files")
}

func TestEnricherRunMissingExpiration(t *testing.T) {
	paths, _ := setupEnricherFixtures(t)
	index := testIndex(t, "LEG15,2015-01-06")

	enricher, err := NewEnricher(paths, index, config.Default().Enrichment)
	require.NoError(t, err)

	// LEJ15 has no expiration entry, which poisons the whole run
	_, err = enricher.Run(context.Background(), domain.AllOpenTypes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEJ15")
}

func TestEnricherRunCancelled(t *testing.T) {
	paths, index := setupEnricherFixtures(t)

	enricher, err := NewEnricher(paths, index, config.Default().Enrichment)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = enricher.Run(ctx, domain.AllOpenTypes())
	assert.Error(t, err)
}
