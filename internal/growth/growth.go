// Package growth implements the two parametric curves fitted to cumulative series.
//
// Both curves are shifted by a fixed base value, the first observed cumulative
// value, which is passed explicitly and never fitted.
package growth

import (
	"fmt"
	"math"
)

// Kind identifies a model variant
type Kind int

const (
	Exponential Kind = iota
	Logistic
)

func (k Kind) String() string {
	switch k {
	case Exponential:
		return "exponential"
	case Logistic:
		return "logistic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NumParams returns the number of free parameters of the variant.
func (k Kind) NumParams() int {
	switch k {
	case Exponential:
		return 2
	case Logistic:
		return 3
	default:
		return 0
	}
}

// ParamNames returns parameter names in vector order
func (k Kind) ParamNames() []string {
	switch k {
	case Exponential:
		return []string{"rate", "shift"}
	case Logistic:
		return []string{"scale", "peak", "max"}
	default:
		return nil
	}
}

// Model is a growth curve with concrete parameters.
//
// Exponential params: (rate, shift), value = exp(rate*(x-shift)) + base.
// Logistic params: (scale, peak, max), value = max/(1+exp(-(x-peak)/scale)) + base.
type Model struct {
	Kind   Kind
	Params []float64
	Base   float64
}

// New returns a model of the given kind. It panics when the parameter count is wrong.
func New(kind Kind, base float64, params ...float64) Model {
	if len(params) != kind.NumParams() {
		panic(fmt.Sprintf("growth: %s model needs %d params, got %d", kind, kind.NumParams(), len(params)))
	}
	p := make([]float64, len(params))
	copy(p, params)
	return Model{Kind: kind, Params: p, Base: base}
}

// Eval returns the model value at day offset x.
func (m Model) Eval(x float64) float64 {
	return Eval(m.Kind, x, m.Params, m.Base)
}

// Delta returns f(to) - f(from)
func (m Model) Delta(from, to float64) float64 {
	return m.Eval(to) - m.Eval(from)
}

// Eval evaluates the curve of the given kind without allocating a Model.
func Eval(kind Kind, x float64, p []float64, base float64) float64 {
	switch kind {
	case Exponential:
		return math.Exp(p[0]*(x-p[1])) + base
	case Logistic:
		return p[2]/(1+math.Exp(-(x-p[1])/p[0])) + base
	default:
		return math.NaN()
	}
}

// Gradient writes the partial derivatives of the curve w.r.t. each parameter at x into dst.
func Gradient(kind Kind, x float64, p []float64, dst []float64) {
	switch kind {
	case Exponential:
		rate, shift := p[0], p[1]
		e := math.Exp(rate * (x - shift))
		dst[0] = (x - shift) * e
		dst[1] = -rate * e
	case Logistic:
		scale, peak, maxInc := p[0], p[1], p[2]
		sig := 1 / (1 + math.Exp(-(x-peak)/scale))
		slope := maxInc * sig * (1 - sig)
		dst[0] = -slope * (x - peak) / (scale * scale)
		dst[1] = -slope / scale
		dst[2] = sig
	}
}
