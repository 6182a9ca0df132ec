// Package projection extends fitted models over a calendar window and aligns
// them with the observed values.
package projection

import (
	"math"
	"time"

	"github.com/Alias1177/covid-curve/internal/growth"
	"github.com/Alias1177/covid-curve/internal/model"
)

// DefaultMaxWindowDays bounds the window of degenerate fits with a peak
// centuries away.
const DefaultMaxWindowDays = 36500

// Window returns the number of days to project for a series whose last day
// offset is lastOffset. Without a logistic fit it covers twice the observed
// span, otherwise at least twice the distance to the peak.
func Window(lastOffset int, logistic *model.LogisticResult, maxDays int) int {
	span := lastOffset + 1
	days := 2 * span
	if logistic != nil {
		days = max(2*int(math.Floor(logistic.Peak)), span)
	}
	if maxDays > 0 && days > maxDays {
		days = max(maxDays, span)
	}
	return days
}

// Build creates the projection table starting at the series base date.
// Cells of an absent model and days without observation hold model.NoData.
func Build(s *model.Series, exp *model.ExponentialResult, logistic *model.LogisticResult, maxDays int) *model.ProjectionTable {
	if s.Len() == 0 {
		return &model.ProjectionTable{}
	}

	offsets := s.Offsets()
	days := Window(int(offsets[len(offsets)-1]), logistic, maxDays)

	t := &model.ProjectionTable{
		Dates:       make([]time.Time, days),
		Actual:      make([]float64, days),
		Logistic:    make([]float64, days),
		Exponential: make([]float64, days),
	}

	var expModel, logModel *growth.Model
	if exp != nil {
		m := growth.New(growth.Exponential, exp.Base, exp.Params()...)
		expModel = &m
	}
	if logistic != nil {
		m := growth.New(growth.Logistic, logistic.Base, logistic.Params()...)
		logModel = &m
	}

	for i := 0; i < days; i++ {
		x := float64(i)
		t.Dates[i] = s.BaseDate.AddDate(0, 0, i)
		t.Actual[i] = model.NoData()
		t.Exponential[i] = predict(expModel, x)
		t.Logistic[i] = predict(logModel, x)
	}
	for i, off := range offsets {
		if int(off) < days {
			t.Actual[int(off)] = s.Observations[i].Value
		}
	}
	return t
}

func predict(m *growth.Model, x float64) float64 {
	if m == nil {
		return model.NoData()
	}
	return m.Eval(x)
}
