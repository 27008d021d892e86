package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("9:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(9*60+5), c)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "9", "09:5", "24:00", "12:60", "ab:cd", "123:00", "-1:00"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrMalformedTime, bad)
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "09:15", FormatTime("9:15"))
	assert.Equal(t, "14:00", FormatTime(" 14:00 "))
	assert.Equal(t, "Issue", FormatTime("Issue"))
}

func TestIndexOf_KnownRows(t *testing.T) {
	tests := []struct {
		time string
		conv Convention
		want int
	}{
		{"06:45", LookupConvention, 2},
		{"07:00", LookupConvention, 3},
		{"14:00", LookupConvention, 31},
		{"21:45", LookupConvention, 62},
		{"06:45", BookingConvention, 1},
		{"11:45", BookingConvention, 21},
		{"12:00", BookingConvention, 23},
		{"15:00", BookingConvention, 35},
	}
	for _, tt := range tests {
		t.Run(tt.conv.Name+" "+tt.time, func(t *testing.T) {
			got, err := IndexOfString(tt.time, tt.conv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexOf_StrictlyIncreasingOverTheGrid(t *testing.T) {
	for _, conv := range []Convention{LookupConvention, BookingConvention} {
		prev := 0
		for c := Opens; c < Closes; c = c.Add(1) {
			idx, err := IndexOf(c, conv)
			require.NoError(t, err, "%s %s", conv.Name, c)
			assert.Greater(t, idx, prev, "%s %s", conv.Name, c)
			assert.GreaterOrEqual(t, idx, 1)
			prev = idx
		}
	}
}

func TestIndexOf_RejectsOutsideWindow(t *testing.T) {
	for _, conv := range []Convention{LookupConvention, BookingConvention} {
		for _, s := range []string{"00:00", "06:30", "06:44", "22:00", "22:15", "23:59"} {
			_, err := IndexOfString(s, conv)
			assert.ErrorIs(t, err, ErrOutOfWindow, "%s %s", conv.Name, s)
		}
	}
}

func TestTimeframeIndices(t *testing.T) {
	start, end, err := TimeframeIndices("14:00-16:00", LookupConvention)
	require.NoError(t, err)
	assert.Equal(t, 31, start)
	assert.Equal(t, 39, end)

	_, _, err = TimeframeIndices("16:00-14:00", LookupConvention)
	assert.ErrorIs(t, err, ErrMalformedTime)
	_, _, err = TimeframeIndices("14:00", LookupConvention)
	assert.ErrorIs(t, err, ErrMalformedTime)
	_, _, err = TimeframeIndices("05:00-08:00", LookupConvention)
	assert.ErrorIs(t, err, ErrOutOfWindow)
}

func TestRange(t *testing.T) {
	r, err := ParseRange("9:00-10:00")
	require.NoError(t, err)
	assert.Equal(t, "09:00-10:00", r.String())
	assert.True(t, r.Contains(MustClock("09:00")))
	assert.True(t, r.Contains(MustClock("10:00")))
	assert.False(t, r.Contains(MustClock("10:15")))
}
