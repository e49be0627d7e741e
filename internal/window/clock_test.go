package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentFloorsToUnitBoundary(t *testing.T) {
	clk := New()
	at := time.Unix(125, 0)
	id := clk.At(Second, at)
	require.Equal(t, ID(125), id)

	id = clk.At(Minute, at)
	require.Equal(t, ID(2), id)
}

func TestAtClampsAgainstClockRegression(t *testing.T) {
	clk := New()
	first := clk.At(Second, time.Unix(1000, 0))
	require.Equal(t, ID(1000), first)

	regressed := clk.At(Second, time.Unix(500, 0))
	require.Equal(t, ID(1000), regressed, "window id must never decrease within a process lifetime")

	advanced := clk.At(Second, time.Unix(1200, 0))
	require.Equal(t, ID(1200), advanced)
}

func TestUnitsAreIndependent(t *testing.T) {
	clk := New()
	clk.At(Second, time.Unix(10000, 0))
	minuteID := clk.At(Minute, time.Unix(10000, 0))
	require.Equal(t, ID(10000/60), minuteID)
}

func TestWindowResetAtBoundaryNotFirstRequestTime(t *testing.T) {
	clk := New()
	before := clk.At(Second, time.Unix(0, 900_000_000))
	after := clk.At(Second, time.Unix(1, 100_000_000))
	require.NotEqual(t, before, after)
	require.Equal(t, ID(0), before)
	require.Equal(t, ID(1), after)
}

func TestRemainingInClampsAtZero(t *testing.T) {
	remaining := RemainingIn(Second, ID(5), time.Unix(10, 0))
	require.Equal(t, time.Duration(0), remaining)

	remaining = RemainingIn(Second, ID(5), time.Unix(4, 0))
	require.Equal(t, 2*time.Second, remaining)
}

func TestParseUnit(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Unit
	}{
		{"second", Second},
		{"minute", Minute},
		{"hour", Hour},
		{"day", Day},
	} {
		got, ok := ParseUnit(tc.in)
		require.True(t, ok)
		require.Equal(t, tc.want, got)
	}
	_, ok := ParseUnit("fortnight")
	require.False(t, ok)
}
