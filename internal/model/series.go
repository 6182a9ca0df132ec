package model

import (
	"math"
	"time"
)

// DateLayout is the calendar date format used by the ledger and the feed.
const DateLayout = "2006-01-02"

// Observation is a single cumulative reading for one calendar day
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is a chronologically ordered cumulative series.
// BaseDate is the date of the first observation.
type Series struct {
	Name         string        `json:"name"`
	BaseDate     time.Time     `json:"base_date"`
	Observations []Observation `json:"observations"`
}

// NewSeries builds a series from observations that are already in chronological order.
func NewSeries(name string, obs []Observation) *Series {
	s := &Series{Name: name, Observations: obs}
	if len(obs) > 0 {
		s.BaseDate = obs[0].Date
	}
	return s
}

// Len returns the number of observations
func (s *Series) Len() int {
	return len(s.Observations)
}

// Offsets returns the day offset of every observation relative to BaseDate.
func (s *Series) Offsets() []float64 {
	out := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = float64(DaysBetween(s.BaseDate, o.Date))
	}
	return out
}

// Values returns the cumulative values in series order
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		out[i] = o.Value
	}
	return out
}

// LastDate returns the date of the newest observation, zero time for an empty series.
func (s *Series) LastDate() time.Time {
	if len(s.Observations) == 0 {
		return time.Time{}
	}
	return s.Observations[len(s.Observations)-1].Date
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = TruncateDay(a)
	b = TruncateDay(b)
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// TruncateDay drops the clock part of t, keeping the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// NoData returns the sentinel stored in projection cells without a value.
func NoData() float64 {
	return math.NaN()
}

// IsNoData reports whether v is the "no data" sentinel
func IsNoData(v float64) bool {
	return math.IsNaN(v)
}

// AddDays shifts t by a possibly fractional number of days.
func AddDays(t time.Time, days float64) time.Time {
	whole := math.Floor(days)
	frac := days - whole
	return t.AddDate(0, 0, int(whole)).Add(time.Duration(frac * 24 * float64(time.Hour)))
}
