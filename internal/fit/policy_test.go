package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		peakErr float64
		maxInc  float64
		maxErr  float64
		want    Reason
	}{
		{"usable fit", DefaultPolicy(), 0.4, 80000, 120, ""},
		{"peak error too large", DefaultPolicy(), 2e7, 80000, 120, ReasonCovarianceTooLarge},
		{"max error too large", DefaultPolicy(), 0.4, 5e8, 1.1e7, ReasonCovarianceTooLarge},
		{"infinite errors", DefaultPolicy(), math.Inf(1), 80000, math.Inf(1), ReasonCovarianceTooLarge},
		{"nan error", DefaultPolicy(), math.NaN(), 80000, 1, ReasonCovarianceTooLarge},
		{"error larger than maximum", DefaultPolicy(), 3, 1000, 1000.5, ReasonUncertainMaximum},
		{"error equal to maximum passes", DefaultPolicy(), 3, 1000, 1000, ""},
		{"uncertain maximum allowed when disabled", Policy{MaxStdErr: 1e7}, 3, 1000, 5000, ""},
		{"custom threshold", Policy{MaxStdErr: 10, RejectUncertainMaximum: true}, 11, 1000, 5, ReasonCovarianceTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Check(tt.peakErr, tt.maxInc, tt.maxErr))
		})
	}
}

func TestRejectionString(t *testing.T) {
	var nilRej *Rejection
	assert.Equal(t, "", nilRej.String())

	r := &Rejection{Reason: ReasonUncertainMaximum}
	assert.Equal(t, string(ReasonUncertainMaximum), r.String())
}
