package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistryID(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"42", 42, false},
		{"0x2a", 42, false},
		{"0X2A", 42, false},
		{"18446744073709551615", 1<<64 - 1, false},
		{" 7 ", 7, false},
		{"", 0, true},
		{"-1", 0, true},
		{"0xzz", 0, true},
		{"18446744073709551616", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRegistryID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestParseDBPath(t *testing.T) {
	dp, err := ParseDBPath("/var/lib/bpfreg/db/registry.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bpfreg/db/registry.db", dp.Path)

	_, err = ParseDBPath("")
	assert.Error(t, err)

	dp, err = ParseDBPath("~/state.db")
	require.NoError(t, err)
	assert.NotContains(t, dp.Path, "~")
}
