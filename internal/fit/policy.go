package fit

import "math"

// Reason describes why a logistic fit is absent
type Reason string

const (
	ReasonTooFewPoints       Reason = "not enough observations"
	ReasonNotConverged       Reason = "solver did not converge"
	ReasonCovarianceTooLarge Reason = "too large covariance"
	ReasonUncertainMaximum   Reason = "the uncertainty of the maximum is larger than the maximum itself"
)

// Policy decides whether a numerically successful logistic fit is usable.
type Policy struct {
	// MaxStdErr is the largest acceptable standard error of the peak offset and of the maximum.
	MaxStdErr float64
	// RejectUncertainMaximum drops fits whose maximum is smaller than its standard error.
	RejectUncertainMaximum bool
}

// DefaultPolicy returns the empirically tuned thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxStdErr:              1e7,
		RejectUncertainMaximum: true,
	}
}

// Check returns the rejection reason for the given estimates, or "" when the fit is usable.
// Non-finite errors always count as too large.
func (p Policy) Check(peakErr, maxInc, maxErr float64) Reason {
	if tooLarge(peakErr, p.MaxStdErr) || tooLarge(maxErr, p.MaxStdErr) {
		return ReasonCovarianceTooLarge
	}
	if p.RejectUncertainMaximum && maxErr > maxInc {
		return ReasonUncertainMaximum
	}
	return ""
}

func tooLarge(v, limit float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v > limit
}
