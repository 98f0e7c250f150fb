package shared

import (
	"fmt"
	"time"
)

// Period identifies a monthly settlement period. The key format is YYYY-MM.
type Period struct {
	Year  int
	Month time.Month
}

// CurrentPeriod returns the period containing now (UTC).
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	return Period{Year: now.Year(), Month: now.Month()}
}

// ParsePeriod parses a YYYY-MM key.
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("%w: period key %q", ErrValidation, key)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Key renders the YYYY-MM key.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Bounds returns the half-open UTC interval [start, end) of the period.
func (p Period) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	start, end := p.Bounds()
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

// Previous returns the preceding period.
func (p Period) Previous() Period {
	start, _ := p.Bounds()
	prev := start.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: prev.Month()}
}
