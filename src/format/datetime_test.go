package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateFormatsAgree(t *testing.T) {
	for _, in := range []string{"2023-04-26", "2023/04/26", "20230426"} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2023-04-26", d.Format(DisplayDateLayout))
		assert.Equal(t, 20230426, DateKey(d))
	}

	s, err := NormalizeDate(20230426)
	require.NoError(t, err)
	assert.Equal(t, "2023-04-26", s)
}

func TestParseDateRejects(t *testing.T) {
	for _, in := range []string{"", "2023-13-01", "2023/02/30", "230426", "2023042x", "yesterday"} {
		_, err := ParseDate(in)
		assert.ErrorIs(t, err, ErrInvalidDate, in)
	}
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	for _, raw := range []int{20200302, 20240229, 20241231} {
		s, err := NormalizeDate(raw)
		require.NoError(t, err)
		back, err := DenormalizeDate(s)
		require.NoError(t, err)
		assert.Equal(t, raw, back)
	}
}

func TestNormalizeDateRejects(t *testing.T) {
	for _, raw := range []int{0, 20231301, 20230230, 20230100, 2023042} {
		_, err := NormalizeDate(raw)
		assert.ErrorIs(t, err, ErrInvalidDate, "%d", raw)
	}
}

func TestNormalizeTime(t *testing.T) {
	s, err := NormalizeTime(93000123000, FracDigitsFor(93000123000))
	require.NoError(t, err)
	assert.Equal(t, "09:30:00.123000", s)

	// milliseconds are padded, not rescaled
	s, err = NormalizeTime(93000123, 3)
	require.NoError(t, err)
	assert.Equal(t, "09:30:00.123000", s)

	// more digits than six are truncated
	s, err = NormalizeTime(1330001234567, 7)
	require.NoError(t, err)
	assert.Equal(t, "13:30:00.123456", s)

	s, err = NormalizeTime(133000, FracDigitsFor(133000))
	require.NoError(t, err)
	assert.Equal(t, "13:30:00.000000", s)

	s, err = NormalizeTimeMillis(93000999999, 6)
	require.NoError(t, err)
	assert.Equal(t, "09:30:00.999", s)
}

func TestNormalizeTimeRejects(t *testing.T) {
	for _, raw := range []int64{246000000000, 96000000000, 93060000000, -1} {
		_, err := NormalizeTime(raw, 6)
		assert.ErrorIs(t, err, ErrInvalidTime, "%d", raw)
	}
}

func TestDenormalizeTime(t *testing.T) {
	raw, err := DenormalizeTime("09:30:00.123")
	require.NoError(t, err)
	assert.Equal(t, int64(93000123000), raw)

	s, err := NormalizeTime(raw, 6)
	require.NoError(t, err)
	assert.Equal(t, "09:30:00.123000", s)

	_, err = DenormalizeTime("9:30")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"09:30:15": 93015,
		"093015":   93015,
		"09:30":    93000,
		"0930":     93000,
		"13":       130000,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"9", "12345", "25:00", "ab:cd"} {
		_, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrInvalidTime, in)
	}
}
