package model

import "time"

// ProjectionTable aligns observations with both model predictions day by day.
// All slices have the same length; missing values hold the NoData sentinel.
type ProjectionTable struct {
	Dates       []time.Time `json:"date"`
	Actual      []float64   `json:"actual"`
	Logistic    []float64   `json:"logistic"`
	Exponential []float64   `json:"exponential"`
}

// Len returns the number of days in the table
func (t *ProjectionTable) Len() int {
	return len(t.Dates)
}
