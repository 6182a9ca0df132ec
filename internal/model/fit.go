package model

import "time"

// ExponentialResult holds a fitted exponential model and its derived statistics
type ExponentialResult struct {
	Rate       float64 `json:"ln_daily_growth"`
	RateErr    float64 `json:"ln_daily_growth_error"`
	Shift      float64 `json:"x_shift"`
	ShiftErr   float64 `json:"x_shift_error"`
	Base       float64 `json:"y_base"`
	Iterations int     `json:"iterations"`

	// DailyGrowth and DailyGrowthErr are the mean and standard deviation of the
	// log-normally distributed daily multiplier exp(Rate).
	DailyGrowth    float64 `json:"daily_growth"`
	DailyGrowthErr float64 `json:"daily_growth_error"`
	RawDailyGrowth float64 `json:"raw_daily_growth"`
	DoublingDays   float64 `json:"doubling_days"`
	TomorrowGrowth float64 `json:"tomorrow_growth"`
}

// Params returns the parameter vector in model order (rate, shift).
func (r *ExponentialResult) Params() []float64 {
	return []float64{r.Rate, r.Shift}
}

// LogisticResult holds a fitted sigmoid model and its derived statistics
type LogisticResult struct {
	Scale      float64 `json:"x_scale"`
	ScaleErr   float64 `json:"x_scale_error"`
	Peak       float64 `json:"peak"`
	PeakErr    float64 `json:"peak_date_error"`
	Max        float64 `json:"max_inf"`
	MaxErr     float64 `json:"max_inf_error"`
	Base       float64 `json:"y_base"`
	Iterations int     `json:"iterations"`

	PeakDate       time.Time `json:"peak_date"`
	PeakGrowth     float64   `json:"peak_growth"`
	TomorrowGrowth float64   `json:"tomorrow_growth"`
}

// Params returns the parameter vector in model order (scale, peak, max).
func (r *LogisticResult) Params() []float64 {
	return []float64{r.Scale, r.Peak, r.Max}
}

// Asymptote is the value the sigmoid approaches, including the anchored base.
func (r *LogisticResult) Asymptote() float64 {
	return r.Max + r.Base
}
