package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewDeduplicatesAndSorts(t *testing.T) {
	cal := New([]time.Time{
		time.Date(2015, 7, 6, 10, 30, 0, 0, time.UTC),
		day(2015, 7, 2),
		day(2015, 7, 6),
		day(2015, 7, 1),
	})

	require.Equal(t, 3, cal.Len())
	days := cal.Days()
	assert.Equal(t, day(2015, 7, 1), days[0])
	assert.Equal(t, day(2015, 7, 2), days[1])
	assert.Equal(t, day(2015, 7, 6), days[2])
}

func TestPrior(t *testing.T) {
	cal := New([]time.Time{day(2015, 7, 1), day(2015, 7, 2), day(2015, 7, 6)})

	prior, ok := cal.Prior(day(2015, 7, 6))
	require.True(t, ok)
	assert.Equal(t, day(2015, 7, 2), prior)

	// Weekend gap still yields the previous trading day
	prior, ok = cal.Prior(day(2015, 7, 2))
	require.True(t, ok)
	assert.Equal(t, day(2015, 7, 1), prior)

	_, ok = cal.Prior(day(2015, 7, 1))
	assert.False(t, ok, "first day has no prior")

	_, ok = cal.Prior(day(2015, 7, 3))
	assert.False(t, ok, "non trading day has no prior")
}

func TestContains(t *testing.T) {
	cal := New([]time.Time{day(2015, 7, 2)})
	assert.True(t, cal.Contains(time.Date(2015, 7, 2, 14, 59, 0, 0, time.UTC)))
	assert.False(t, cal.Contains(day(2015, 7, 3)))
}

func TestPrecedingTuesday(t *testing.T) {
	// 2015-07-07 was a Tuesday
	tests := []struct {
		name string
		date time.Time
		want time.Time
	}{
		{name: "monday", date: day(2015, 7, 13), want: day(2015, 7, 7)},
		{name: "tuesday skips itself", date: day(2015, 7, 14), want: day(2015, 7, 7)},
		{name: "wednesday", date: day(2015, 7, 15), want: day(2015, 7, 7)},
		{name: "thursday", date: day(2015, 7, 16), want: day(2015, 7, 7)},
		{name: "friday", date: day(2015, 7, 17), want: day(2015, 7, 7)},
		{name: "saturday", date: day(2015, 7, 18), want: day(2015, 7, 7)},
		{name: "sunday", date: day(2015, 7, 19), want: day(2015, 7, 7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrecedingTuesday(tt.date))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique_trading_days.csv")
	content := "DateTime\n2015-07-01\n2015-07-02\n2015-07-06\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cal, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cal.Len())
	assert.True(t, cal.Contains(day(2015, 7, 2)))
}

func TestLoadRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique_trading_days.csv")
	require.NoError(t, os.WriteFile(path, []byte("DateTime\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique_trading_days.csv")
	require.NoError(t, os.WriteFile(path, []byte("DateTime\nnot-a-date\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
