package lm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(x float64, p []float64) float64 { return p[0]*x + p[1] }

func lineGrad(x float64, _ []float64, dst []float64) {
	dst[0] = x
	dst[1] = 1
}

func expCurve(x float64, p []float64) float64 { return math.Exp(p[0] * (x - p[1])) }

func expGrad(x float64, p []float64, dst []float64) {
	e := math.Exp(p[0] * (x - p[1]))
	dst[0] = (x - p[1]) * e
	dst[1] = -p[0] * e
}

func TestSolveLinearMatchesOrdinaryLeastSquares(t *testing.T) {
	prob := Problem{
		X:    []float64{0, 1, 2, 3, 4},
		Y:    []float64{1.1, 2.9, 5.2, 6.8, 9.1},
		F:    line,
		Grad: lineGrad,
	}

	res, err := Solve(prob, []float64{0, 0}, DefaultSettings())
	require.NoError(t, err)

	assert.InDelta(t, 1.99, res.Params[0], 1e-6)
	assert.InDelta(t, 1.04, res.Params[1], 1e-6)
	assert.InDelta(t, 0.0597216, res.StdErr[0], 1e-5)
	assert.InDelta(t, 0.1462874, res.StdErr[1], 1e-5)
	assert.NotEmpty(t, res.Reason)
}

func TestSolveExponential(t *testing.T) {
	var xs, ys []float64
	for i := 0; i < 30; i++ {
		x := float64(i)
		xs = append(xs, x)
		ys = append(ys, math.Exp(0.15*(x-4)))
	}
	prob := Problem{X: xs, Y: ys, F: expCurve, Grad: expGrad}

	res, err := Solve(prob, []float64{0.1, 0}, DefaultSettings())
	require.NoError(t, err)
	assert.InDelta(t, 0.15, res.Params[0], 1e-6)
	assert.InDelta(t, 4, res.Params[1], 1e-4)
}

func TestSolveIterationBudget(t *testing.T) {
	var xs, ys []float64
	for i := 0; i < 40; i++ {
		x := float64(i)
		xs = append(xs, x)
		ys = append(ys, math.Exp(0.2*(x-10)))
	}
	prob := Problem{X: xs, Y: ys, F: expCurve, Grad: expGrad}
	s := DefaultSettings()
	s.MaxIterations = 1

	_, err := Solve(prob, []float64{0.01, 0}, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConverged))
}

func TestSolveWithoutDegreesOfFreedomReportsInfiniteErrors(t *testing.T) {
	prob := Problem{
		X:    []float64{0, 1},
		Y:    []float64{1, 3},
		F:    line,
		Grad: lineGrad,
	}

	res, err := Solve(prob, []float64{0, 0}, DefaultSettings())
	require.NoError(t, err)
	assert.InDelta(t, 2, res.Params[0], 1e-9)
	for _, e := range res.StdErr {
		assert.True(t, math.IsInf(e, 1))
	}
}

func TestSolveRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		prob Problem
		p0   []float64
	}{
		{"no points", Problem{F: line, Grad: lineGrad}, []float64{0, 0}},
		{"length mismatch", Problem{X: []float64{1, 2}, Y: []float64{1}, F: line, Grad: lineGrad}, []float64{0, 0}},
		{"no params", Problem{X: []float64{1}, Y: []float64{1}, F: line, Grad: lineGrad}, nil},
		{"sigma mismatch", Problem{X: []float64{1, 2}, Y: []float64{1, 2}, Sigma: []float64{1}, F: line, Grad: lineGrad}, []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.prob, tt.p0, DefaultSettings())
			assert.ErrorIs(t, err, ErrBadInput)
		})
	}
}

func TestSolveNonFiniteStart(t *testing.T) {
	prob := Problem{
		X:    []float64{0, 1000},
		Y:    []float64{1, 2},
		F:    expCurve,
		Grad: expGrad,
	}
	_, err := Solve(prob, []float64{10, 0}, DefaultSettings())
	assert.ErrorIs(t, err, ErrNotConverged)
}
