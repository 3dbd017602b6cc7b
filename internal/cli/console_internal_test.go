package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	args, err := splitArgs(`add TEA-100 12 1.10 --supplier "Leaf & Co"  --expiry=+30`)
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "TEA-100", "12", "1.10", "--supplier", "Leaf & Co", "--expiry=+30"}, args)

	args, err = splitArgs(`add X 1 1 --supplier ''`)
	require.NoError(t, err)
	assert.Equal(t, "", args[len(args)-1])

	_, err = splitArgs(`add "unterminated`)
	assert.Error(t, err)
}

func TestParseDay(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC)

	cases := map[string]string{
		"today":      "2025-01-10",
		"TODAY":      "2025-01-10",
		"+7":         "2025-01-17",
		"-10":        "2024-12-31",
		"2024-12-01": "2024-12-01",
	}
	for in, want := range cases {
		got, err := parseDay("expiry", in, now)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Format(time.DateOnly), in)
	}

	_, err := parseDay("expiry", "next week", now)
	assert.Error(t, err)
}
