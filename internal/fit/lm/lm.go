// Package lm is a small Levenberg-Marquardt nonlinear least-squares solver.
//
// It minimises sum(((y_i - f(x_i; p)) / sigma_i)^2) using an analytic gradient
// of f and reports the parameter covariance the same way curve_fit style
// tools do: inv(JᵀJ) scaled by the reduced chi-square.
package lm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged is returned when the iteration budget runs out.
var ErrNotConverged = errors.New("least squares did not converge")

// ErrBadInput is returned for inconsistent problem definitions.
var ErrBadInput = errors.New("invalid least squares problem")

// Func evaluates the model at x for parameters p.
type Func func(x float64, p []float64) float64

// GradFunc writes df/dp at x into dst.
type GradFunc func(x float64, p []float64, dst []float64)

// Problem describes a weighted curve fit
type Problem struct {
	X     []float64
	Y     []float64
	Sigma []float64 // optional, uniform weights when nil
	F     Func
	Grad  GradFunc
}

// Settings control the iteration
type Settings struct {
	MaxIterations int
	FTol          float64 // relative reduction of the cost
	XTol          float64 // relative step size
	GTol          float64 // scaled gradient
	InitialLambda float64
}

// DefaultSettings mirrors the usual MINPACK tolerances.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 1000,
		FTol:          1.49012e-8,
		XTol:          1.49012e-8,
		GTol:          1e-12,
		InitialLambda: 1e-3,
	}
}

// Result is the outcome of a successful fit
type Result struct {
	Params     []float64
	StdErr     []float64
	Covariance *mat.SymDense
	Cost       float64 // weighted sum of squared residuals
	Iterations int
	Reason     string
}

const maxLambda = 1e16

// Solve runs Levenberg-Marquardt from p0.
func Solve(prob Problem, p0 []float64, s Settings) (*Result, error) {
	n, np := len(prob.X), len(p0)
	if n == 0 || n != len(prob.Y) || np == 0 {
		return nil, fmt.Errorf("%w: %d points, %d values, %d params", ErrBadInput, len(prob.X), len(prob.Y), np)
	}
	if prob.Sigma != nil && len(prob.Sigma) != n {
		return nil, fmt.Errorf("%w: %d sigmas for %d points", ErrBadInput, len(prob.Sigma), n)
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultSettings().MaxIterations
	}
	if s.InitialLambda <= 0 {
		s.InitialLambda = DefaultSettings().InitialLambda
	}

	w := &workspace{prob: prob, n: n, np: np,
		jac:   mat.NewDense(n, np, nil),
		resid: make([]float64, n),
		grad:  make([]float64, np),
	}

	p := append([]float64(nil), p0...)
	cost := w.cost(p)
	if !isFinite(cost) {
		return nil, fmt.Errorf("%w: initial cost is not finite", ErrNotConverged)
	}

	lambda := s.InitialLambda
	trial := make([]float64, np)
	reason := ""

	iter := 0
	for ; iter < s.MaxIterations && reason == ""; iter++ {
		w.cost(p)
		w.jacobian(p)

		var jtj mat.SymDense
		jtj.SymOuterK(1, w.jac.T())
		jtr := mat.NewVecDense(np, nil)
		jtr.MulVec(w.jac.T(), mat.NewVecDense(n, w.resid))

		if w.gradientSmall(&jtj, jtr, cost, s.GTol) {
			reason = "gradient below tolerance"
			break
		}

		for {
			step, ok := solveDamped(&jtj, jtr, lambda)
			if ok {
				for j := range p {
					trial[j] = p[j] + step.AtVec(j)
				}
				trialCost := w.cost(trial)
				if isFinite(trialCost) && trialCost <= cost {
					stepNorm, pNorm := mat.Norm(step, 2), norm(p)
					reduction := cost - trialCost
					// heavily damped steps are tiny by construction and say nothing about convergence
					nearGaussNewton := lambda < 1
					copy(p, trial)
					lambda = math.Max(lambda/10, 1e-12)
					switch {
					case trialCost == 0:
						reason = "exact fit"
					case nearGaussNewton && reduction <= s.FTol*cost:
						reason = "relative cost reduction below tolerance"
					case nearGaussNewton && stepNorm <= s.XTol*(pNorm+s.XTol):
						reason = "relative step below tolerance"
					}
					cost = trialCost
					break
				}
			}
			lambda *= 10
			if lambda > maxLambda {
				// no damping produces a descent step: p is a numerical minimum
				reason = "no further improvement possible"
				break
			}
		}
	}

	if reason == "" {
		return nil, fmt.Errorf("%w after %d iterations (cost %.6g, params %v)", ErrNotConverged, iter, cost, p)
	}

	res := &Result{
		Params:     p,
		Cost:       cost,
		Iterations: iter,
		Reason:     reason,
	}
	res.Covariance, res.StdErr = w.covariance(p, cost)
	return res, nil
}

type workspace struct {
	prob  Problem
	n, np int
	jac   *mat.Dense
	resid []float64
	grad  []float64
}

func (w *workspace) weight(i int) float64 {
	if w.prob.Sigma == nil {
		return 1
	}
	return 1 / w.prob.Sigma[i]
}

// cost fills resid for p and returns the weighted sum of squares.
func (w *workspace) cost(p []float64) float64 {
	var sum float64
	for i, x := range w.prob.X {
		r := (w.prob.Y[i] - w.prob.F(x, p)) * w.weight(i)
		w.resid[i] = r
		sum += r * r
	}
	return sum
}

func (w *workspace) jacobian(p []float64) {
	for i, x := range w.prob.X {
		w.prob.Grad(x, p, w.grad)
		wi := w.weight(i)
		for j, g := range w.grad {
			w.jac.Set(i, j, g*wi)
		}
	}
}

// gradientSmall applies the MINPACK gtol test: the cosine between the
// residual vector and every Jacobian column.
func (w *workspace) gradientSmall(jtj *mat.SymDense, jtr *mat.VecDense, cost, gtol float64) bool {
	if cost == 0 {
		return true
	}
	rnorm := math.Sqrt(cost)
	for j := 0; j < w.np; j++ {
		cnorm := math.Sqrt(jtj.At(j, j))
		if cnorm == 0 {
			continue
		}
		if math.Abs(jtr.AtVec(j))/(cnorm*rnorm) > gtol {
			return false
		}
	}
	return true
}

func (w *workspace) covariance(p []float64, cost float64) (*mat.SymDense, []float64) {
	w.jacobian(p)
	var jtj mat.SymDense
	jtj.SymOuterK(1, w.jac.T())

	cov := mat.NewSymDense(w.np, nil)
	stderr := make([]float64, w.np)
	dof := w.n - w.np

	var inv mat.Dense
	if dof <= 0 || !invertible(inv.Inverse(&jtj)) {
		for i := 0; i < w.np; i++ {
			for j := i; j < w.np; j++ {
				cov.SetSym(i, j, math.Inf(1))
			}
			stderr[i] = math.Inf(1)
		}
		return cov, stderr
	}

	scale := cost / float64(dof)
	for i := 0; i < w.np; i++ {
		for j := i; j < w.np; j++ {
			v := (inv.At(i, j) + inv.At(j, i)) / 2 * scale
			if !isFinite(v) {
				v = math.Inf(1)
			}
			cov.SetSym(i, j, v)
		}
		stderr[i] = math.Sqrt(math.Abs(cov.At(i, i)))
	}
	return cov, stderr
}

// solveDamped solves (JᵀJ + lambda*diag(JᵀJ)) step = Jᵀr.
func solveDamped(jtj *mat.SymDense, jtr *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	np := jtj.SymmetricDim()
	a := mat.NewDense(np, np, nil)
	for i := 0; i < np; i++ {
		for j := 0; j < np; j++ {
			a.Set(i, j, jtj.At(i, j))
		}
		d := jtj.At(i, i)
		if d == 0 {
			d = 1e-12
		}
		a.Set(i, i, jtj.At(i, i)+lambda*d)
	}

	var step mat.VecDense
	if err := step.SolveVec(a, jtr); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, false
		}
	}
	for i := 0; i < np; i++ {
		if !isFinite(step.AtVec(i)) {
			return nil, false
		}
	}
	return &step, true
}

// invertible accepts an ill-conditioned but finite inverse.
func invertible(err error) bool {
	if err == nil {
		return true
	}
	var cond mat.Condition
	return errors.As(err, &cond) && !math.IsInf(float64(cond), 0)
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
