// Package fit fits the exponential and logistic growth models to a cumulative
// series and derives the statistics reported for each of them.
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Alias1177/covid-curve/internal/fit/lm"
	"github.com/Alias1177/covid-curve/internal/growth"
	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrExponentialFit is returned when the exponential model cannot be fitted.
	ErrExponentialFit = errors.New("exponential fit failed")
	// ErrTooFewPoints means the series is shorter than the model has parameters.
	ErrTooFewPoints = errors.New("not enough observations")
)

// Settings configure both fits
type Settings struct {
	Policy Policy

	// LogisticSeed is the starting point (scale, peak, max) of the sigmoid fit.
	LogisticSeed             [3]float64
	LogisticMaxIterations    int
	ExponentialMaxIterations int
}

// DefaultSettings returns the settings used by the CLI.
func DefaultSettings() Settings {
	return Settings{
		Policy:                   DefaultPolicy(),
		LogisticSeed:             [3]float64{2, 60, 100000},
		LogisticMaxIterations:    800,
		ExponentialMaxIterations: 5000,
	}
}

// Rejection explains why a logistic fit is absent.
type Rejection struct {
	Reason Reason
	Cause  error
}

func (r *Rejection) String() string {
	if r == nil {
		return ""
	}
	if r.Cause != nil {
		return fmt.Sprintf("%s: %v", r.Reason, r.Cause)
	}
	return string(r.Reason)
}

// Outcome holds the result of fitting both models to one series.
// Either model may be absent independently of the other.
type Outcome struct {
	Exponential    *model.ExponentialResult
	ExponentialErr error
	Logistic       *model.LogisticResult
	Rejection      *Rejection
}

// Run fits both models to the series. The two fits share no state and run concurrently.
func Run(ctx context.Context, s *model.Series, set Settings) (Outcome, error) {
	logger := log.With().Str("component", "fitter").Str("series", s.Name).Logger()
	xs, ys := s.Offsets(), s.Values()

	var out Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		out.Logistic, out.Rejection = Logistic(xs, ys, s.BaseDate, set)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		out.Exponential, out.ExponentialErr = Exponential(xs, ys, set)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	if out.Rejection != nil {
		logger.Info().Str("reason", out.Rejection.String()).Msg("No sigmoid fit")
	} else {
		logger.Debug().
			Float64("peak", out.Logistic.Peak).
			Float64("peak_err", out.Logistic.PeakErr).
			Float64("max", out.Logistic.Max).
			Float64("max_err", out.Logistic.MaxErr).
			Int("iterations", out.Logistic.Iterations).
			Msg("Sigmoid fit accepted")
	}
	if out.ExponentialErr != nil {
		logger.Error().Err(out.ExponentialErr).Msg("Exponential fit failed")
	} else {
		logger.Debug().
			Float64("rate", out.Exponential.Rate).
			Float64("rate_err", out.Exponential.RateErr).
			Float64("shift", out.Exponential.Shift).
			Int("iterations", out.Exponential.Iterations).
			Msg("Exponential fit done")
	}
	return out, nil
}

// Exponential fits exp(rate*(x-shift)) + y[0] to the data.
func Exponential(xs, ys []float64, set Settings) (*model.ExponentialResult, error) {
	kind := growth.Exponential
	if len(xs) <= kind.NumParams() {
		return nil, fmt.Errorf("%w: %w (%d)", ErrExponentialFit, ErrTooFewPoints, len(xs))
	}
	base := ys[0]

	settings := lm.DefaultSettings()
	settings.MaxIterations = set.ExponentialMaxIterations

	res, err := lm.Solve(problem(kind, xs, ys, base), exponentialSeed(xs, ys), settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExponentialFit, err)
	}

	rate, rateErr := res.Params[0], res.StdErr[0]
	m := growth.New(kind, base, res.Params...)
	out := &model.ExponentialResult{
		Rate:           rate,
		RateErr:        rateErr,
		Shift:          res.Params[1],
		ShiftErr:       res.StdErr[1],
		Base:           base,
		Iterations:     res.Iterations,
		RawDailyGrowth: math.Exp(rate),
		TomorrowGrowth: m.Eval(xs[len(xs)-1]+1) - ys[len(ys)-1],
	}
	out.DailyGrowth, out.DailyGrowthErr = LogNormalGrowth(rate, rateErr)
	out.DoublingDays = math.Ln2 / math.Log(out.DailyGrowth)
	return out, nil
}

// LogNormalGrowth returns the mean and standard deviation of exp(R) for
// R ~ N(rate, rateErr²).
func LogNormalGrowth(rate, rateErr float64) (mean, stddev float64) {
	v := rateErr * rateErr
	mean = math.Exp(rate + v/2)
	stddev = math.Sqrt((math.Exp(v) - 1) * math.Exp(2*rate+v))
	return mean, stddev
}

// Logistic fits max/(1+exp(-(x-peak)/scale)) + y[0] and applies the rejection policy.
// A nil result always comes with a non-nil Rejection.
func Logistic(xs, ys []float64, baseDate time.Time, set Settings) (*model.LogisticResult, *Rejection) {
	kind := growth.Logistic
	if len(xs) < kind.NumParams() {
		return nil, &Rejection{Reason: ReasonTooFewPoints}
	}
	base := ys[0]

	settings := lm.DefaultSettings()
	settings.MaxIterations = set.LogisticMaxIterations

	res, err := lm.Solve(problem(kind, xs, ys, base), set.LogisticSeed[:], settings)
	if err != nil {
		return nil, &Rejection{Reason: ReasonNotConverged, Cause: err}
	}

	scale, peak, maxInc := res.Params[0], res.Params[1], res.Params[2]
	peakErr, maxErr := res.StdErr[1], res.StdErr[2]
	if reason := set.Policy.Check(peakErr, maxInc, maxErr); reason != "" {
		return nil, &Rejection{
			Reason: reason,
			Cause:  fmt.Errorf("peak %.4g ± %.4g, max %.4g ± %.4g", peak, peakErr, maxInc, maxErr),
		}
	}

	m := growth.New(kind, base, res.Params...)
	return &model.LogisticResult{
		Scale:          scale,
		ScaleErr:       res.StdErr[0],
		Peak:           peak,
		PeakErr:        peakErr,
		Max:            maxInc,
		MaxErr:         maxErr,
		Base:           base,
		Iterations:     res.Iterations,
		PeakDate:       model.AddDays(baseDate, peak),
		PeakGrowth:     m.Delta(peak, peak+1),
		TomorrowGrowth: m.Eval(xs[len(xs)-1]+1) - ys[len(ys)-1],
	}, nil
}

func problem(kind growth.Kind, xs, ys []float64, base float64) lm.Problem {
	return lm.Problem{
		X: xs,
		Y: ys,
		F: func(x float64, p []float64) float64 {
			return growth.Eval(kind, x, p, base)
		},
		Grad: func(x float64, p []float64, dst []float64) {
			growth.Gradient(kind, x, p, dst)
		},
	}
}

// exponentialSeed estimates (rate, shift) with a log-linear regression of
// y - y[0]; it falls back to (1, 1) when the data is not growing.
func exponentialSeed(xs, ys []float64) []float64 {
	fallback := []float64{1, 1}
	base := ys[0]

	var n, sx, sy, sxx, sxy float64
	for i := range xs {
		d := ys[i] - base
		if d <= 0 {
			continue
		}
		ly := math.Log(d)
		n++
		sx += xs[i]
		sy += ly
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ly
	}
	if n < 2 {
		return fallback
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return fallback
	}
	rate := (n*sxy - sx*sy) / den
	intercept := (sy - rate*sx) / n
	if rate <= 0 || math.IsNaN(rate) {
		return fallback
	}
	return []float64{rate, -intercept / rate}
}
