package ledger

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/shopspring/decimal"
)

// Entry is one ledger line: date, cumulative total and the optional daily increment.
type Entry struct {
	Date  time.Time
	Total decimal.Decimal
	Delta *decimal.Decimal
}

// String renders the entry in ledger format, "2021-01-11 1030 +30".
func (e Entry) String() string {
	line := e.Date.Format(model.DateLayout) + " " + e.Total.String()
	if e.Delta != nil {
		line += " " + formatDelta(*e.Delta)
	}
	return line
}

func formatDelta(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.String()
	}
	return "+" + d.String()
}

// ParseError describes a ledger line that could not be used.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ledger line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads ledger lines from r. Blank and single-field lines are ignored;
// malformed or out-of-order lines are skipped and reported.
func Parse(r io.Reader) ([]Entry, []*ParseError, error) {
	var (
		entries []Entry
		skipped []*ParseError
	)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		fields := strings.Fields(text)
		if len(fields) < 2 {
			continue
		}

		e, err := parseFields(fields)
		if err == nil && len(entries) > 0 && !e.Date.After(entries[len(entries)-1].Date) {
			err = fmt.Errorf("date %s is not after %s", fields[0], entries[len(entries)-1].Date.Format(model.DateLayout))
		}
		if err != nil {
			skipped = append(skipped, &ParseError{Line: lineNo, Text: text, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading ledger: %w", err)
	}
	return entries, skipped, nil
}

func parseFields(fields []string) (Entry, error) {
	date, err := model.ParseDate(fields[0])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing date: %w", err)
	}
	total, err := decimal.NewFromString(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing total: %w", err)
	}
	e := Entry{Date: date, Total: total}
	if len(fields) > 2 {
		delta, err := decimal.NewFromString(strings.TrimPrefix(fields[2], "+"))
		if err != nil {
			return Entry{}, fmt.Errorf("parsing delta: %w", err)
		}
		e.Delta = &delta
	}
	return e, nil
}
