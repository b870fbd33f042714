package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func TestParseOpenTypes(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []domain.OpenType
		wantErr  bool
	}{
		{
			name:     "empty means both",
			value:    "",
			expected: []domain.OpenType{domain.OpenTypeTrue, domain.OpenTypeSliding},
		},
		{
			name:     "single mode",
			value:    "true_open",
			expected: []domain.OpenType{domain.OpenTypeTrue},
		},
		{
			name:     "comma list with spaces",
			value:    "sliding_open, true_open",
			expected: []domain.OpenType{domain.OpenTypeSliding, domain.OpenTypeTrue},
		},
		{
			name:    "unknown mode",
			value:   "midpoint_open",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modes, err := parseOpenTypes(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown open type")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, modes)
		})
	}
}
