package projection

import (
	"math"
	"testing"
	"time"

	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2020, time.March, 4, 0, 0, 0, 0, time.UTC)

func series(offsets []int, values []float64) *model.Series {
	obs := make([]model.Observation, len(offsets))
	for i, off := range offsets {
		obs[i] = model.Observation{Date: base.AddDate(0, 0, off), Value: values[i]}
	}
	return model.NewSeries("cases", obs)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		lastOffset int
		logistic   *model.LogisticResult
		maxDays    int
		want       int
	}{
		{"no logistic doubles the span", 9, nil, 0, 20},
		{"peak beyond span", 9, &model.LogisticResult{Peak: 30.7}, 0, 60},
		{"peak inside span keeps span", 49, &model.LogisticResult{Peak: 12.2}, 0, 50},
		{"negative peak keeps span", 9, &model.LogisticResult{Peak: -3.5}, 0, 10},
		{"capped", 9, &model.LogisticResult{Peak: 1e6}, 1000, 1000},
		{"cap never cuts observations", 1999, nil, 1000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Window(tt.lastOffset, tt.logistic, tt.maxDays))
		})
	}
}

func TestBuildWithoutLogistic(t *testing.T) {
	s := series([]int{0, 1, 3}, []float64{10, 12, 20})
	exp := &model.ExponentialResult{Rate: math.Log(2), Shift: 0, Base: 10}

	table := Build(s, exp, nil, DefaultMaxWindowDays)
	require.Equal(t, 8, table.Len())

	assert.Equal(t, base, table.Dates[0])
	assert.Equal(t, base.AddDate(0, 0, 7), table.Dates[7])

	assert.Equal(t, 10.0, table.Actual[0])
	assert.Equal(t, 12.0, table.Actual[1])
	assert.True(t, model.IsNoData(table.Actual[2]), "gap in observations")
	assert.Equal(t, 20.0, table.Actual[3])
	for i := 4; i < 8; i++ {
		assert.True(t, model.IsNoData(table.Actual[i]))
	}

	for i := 0; i < 8; i++ {
		assert.True(t, model.IsNoData(table.Logistic[i]))
		assert.InDelta(t, math.Pow(2, float64(i))+10, table.Exponential[i], 1e-9)
	}
}

func TestBuildWithLogistic(t *testing.T) {
	s := series([]int{0, 1, 2, 3, 4}, []float64{5, 6, 8, 11, 15})
	exp := &model.ExponentialResult{Rate: 0.3, Shift: 2, Base: 5}
	logistic := &model.LogisticResult{Scale: 2, Peak: 6.4, Max: 100, Base: 5}

	table := Build(s, exp, logistic, DefaultMaxWindowDays)
	require.Equal(t, 12, table.Len())

	assert.InDelta(t, 100/(1+math.Exp(-(0-6.4)/2))+5, table.Logistic[0], 1e-9)
	assert.InDelta(t, 100/(1+math.Exp(-(11-6.4)/2))+5, table.Logistic[11], 1e-9)
	assert.InDelta(t, math.Exp(0.3*(11-2))+5, table.Exponential[11], 1e-9)
	assert.Equal(t, 15.0, table.Actual[4])
	assert.True(t, model.IsNoData(table.Actual[5]))
}

func TestBuildWithoutExponential(t *testing.T) {
	s := series([]int{0, 1}, []float64{1, 2})

	table := Build(s, nil, nil, 0)
	require.Equal(t, 4, table.Len())
	for _, v := range table.Exponential {
		assert.True(t, model.IsNoData(v))
	}
}

func TestBuildEmptySeries(t *testing.T) {
	table := Build(model.NewSeries("cases", nil), nil, nil, 0)
	assert.Equal(t, 0, table.Len())
}
