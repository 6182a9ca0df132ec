// Package report turns fit outcomes and projection tables into the text
// handed to the chart renderer and printed on the terminal.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/Alias1177/covid-curve/internal/fit"
	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/olekukonko/tablewriter"
)

// NoSigmoidFit is shown instead of the sigmoid statistics when the model is absent.
const NoSigmoidFit = "The sigmoid model does not fit the data."

// NoExponentialFit is shown when even the exponential model failed.
const NoExponentialFit = "The exponential model could not be fitted."

// Summary holds the human readable statistics of one series.
type Summary struct {
	Title       string
	LastDate    string
	PeakDate    string
	Maximum     string
	DailyGrowth string
}

// Summarize formats the derived statistics of a fit outcome.
func Summarize(title string, s *model.Series, out fit.Outcome) Summary {
	sum := Summary{
		Title:       title,
		LastDate:    s.LastDate().Format(model.DateLayout),
		PeakDate:    NoSigmoidFit,
		DailyGrowth: NoExponentialFit,
	}
	if l := out.Logistic; l != nil {
		sum.PeakDate = PeakText(l)
		sum.Maximum = MaximumText(l)
	}
	if e := out.Exponential; e != nil {
		sum.DailyGrowth = GrowthText(e)
	}
	return sum
}

// PeakText describes the sigmoid inflection point.
func PeakText(l *model.LogisticResult) string {
	return fmt.Sprintf("Sigmoid inflection point: %s ± %.2f days (Maximum slope: %.2f, f(x+1) - y(x) ≈ %.2f)",
		l.PeakDate.Format(model.DateLayout), l.PeakErr, l.PeakGrowth, l.TomorrowGrowth)
}

// MaximumText describes the sigmoid asymptote.
func MaximumText(l *model.LogisticResult) string {
	return fmt.Sprintf("Sigmoid maximum: %.2f ± %.2f", l.Asymptote(), l.MaxErr)
}

// GrowthText describes the exponential daily growth and doubling time.
func GrowthText(e *model.ExponentialResult) string {
	return fmt.Sprintf("Daily growth based on the exponential model: %.2f%% ± %.2g%%. (Doubling every %.2f days, f(x+1) - y(x) ≈ %.2f)",
		e.DailyGrowth*100-100, e.DailyGrowthErr*100, e.DoublingDays, e.TomorrowGrowth)
}

// Lines returns the statistics in display order, skipping empty ones.
func (s Summary) Lines() []string {
	var out []string
	for _, l := range []string{s.Maximum, s.PeakDate, s.DailyGrowth} {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// WriteSummary prints the title line followed by the statistics.
func WriteSummary(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", s.Title, s.LastDate); err != nil {
		return err
	}
	for _, l := range s.Lines() {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable prints the projection table. Cells without data show "-".
func WriteTable(w io.Writer, t *model.ProjectionTable) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Date", "Actual", "Predicted log", "Predicted exp"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	tw.SetBorder(false)

	for i := 0; i < t.Len(); i++ {
		tw.Append([]string{
			t.Dates[i].Format(model.DateLayout),
			cell(t.Actual[i], 0),
			cell(t.Logistic[i], 2),
			cell(t.Exponential[i], 2),
		})
	}
	tw.Render()
}

func cell(v float64, prec int) string {
	if model.IsNoData(v) {
		return "-"
	}
	if math.IsInf(v, 0) {
		return "inf"
	}
	return fmt.Sprintf("%.*f", prec, v)
}
