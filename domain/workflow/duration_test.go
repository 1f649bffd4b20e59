package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration_Valid(t *testing.T) {
	cases := map[string]int64{
		"0s":      0,
		"10s":     10,
		"5m":      300,
		"1h":      3600,
		"1h30m15s": 5415,
		"90":      90,
		"2h5s":    7205,
	}
	for input, want := range cases {
		got, err := ParseDuration(input)
		require.NoErrorf(t, err, "input %q", input)
		assert.Equalf(t, want, got, "input %q", input)
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	cases := []string{"", "-1", "1x", "h", "1h5", "1m1h"}
	for _, input := range cases {
		_, err := ParseDuration(input)
		assert.Errorf(t, err, "input %q should be invalid", input)
		var de *DurationError
		assert.ErrorAsf(t, err, &de, "input %q", input)
	}
}

// TestParseDuration_RoundTrip covers invariant 4 in §8: for every valid
// input D with canonical form C, parse(D) = parse(C).
func TestParseDuration_RoundTrip(t *testing.T) {
	canonical := map[string]string{
		"1h30m15s": "1h30m15s",
		"90":       "90s",
		"5m":       "5m",
	}
	for input, c := range canonical {
		got, err := ParseDuration(input)
		require.NoError(t, err)
		gotCanonical, err := ParseDuration(c)
		require.NoError(t, err)
		assert.Equal(t, gotCanonical, got)
	}
}
