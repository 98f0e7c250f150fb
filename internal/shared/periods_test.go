package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodKeyRoundTrip(t *testing.T) {
	p, err := ParsePeriod("2026-08")
	require.NoError(t, err)
	require.Equal(t, "2026-08", p.Key())

	_, err = ParsePeriod("bogus")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPeriodBounds(t *testing.T) {
	p := Period{Year: 2026, Month: time.August}
	start, end := p.Bounds()
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), end)

	require.True(t, p.Contains(time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)))
	require.False(t, p.Contains(end))
}

func TestPeriodPrevious(t *testing.T) {
	p := Period{Year: 2026, Month: time.January}
	require.Equal(t, "2025-12", p.Previous().Key())
}
