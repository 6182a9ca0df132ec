package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func writeLedger(t *testing.T, content string) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covid_data.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return New("cases", path)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func entry(d string, total, delta int64) Entry {
	dd := decimal.NewFromInt(delta)
	return Entry{Date: date(d), Total: decimal.NewFromInt(total), Delta: &dd}
}

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"2020-03-04 2",
		"",
		"2020-03-05",
		"2020-03-06 4",
		"2020-03-07 7 +3",
		"not-a-date 9",
		"2020-03-08 nine",
		"2020-03-07 8",
		"2020-03-09 12 +5",
	}, "\n")

	entries, skipped, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, entries, 4)
	assert.Equal(t, date("2020-03-04"), entries[0].Date)
	assert.Equal(t, "2", entries[0].Total.String())
	assert.Nil(t, entries[0].Delta)
	assert.Equal(t, date("2020-03-07"), entries[2].Date)
	require.NotNil(t, entries[2].Delta)
	assert.Equal(t, "3", entries[2].Delta.String())
	assert.Equal(t, date("2020-03-09"), entries[3].Date)

	require.Len(t, skipped, 3)
	assert.Equal(t, 6, skipped[0].Line)
	assert.Equal(t, 7, skipped[1].Line)
	assert.Equal(t, 8, skipped[2].Line)
	assert.Contains(t, skipped[2].Error(), "not after")
}

func TestEntryString(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{"with delta", entry("2021-01-11", 1030, 30), "2021-01-11 1030 +30"},
		{"negative correction", entry("2021-01-11", 990, -10), "2021-01-11 990 -10"},
		{"without delta", Entry{Date: date("2020-03-04"), Total: decimal.NewFromInt(2)}, "2020-03-04 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.String())
		})
	}
}

func TestLastAndSeries(t *testing.T) {
	l := writeLedger(t, "2020-03-04 2\n2020-03-06 4\n2020-03-07 7 +3\n")

	last, err := l.Last()
	require.NoError(t, err)
	assert.Equal(t, date("2020-03-07"), last.Date)
	assert.Equal(t, "7", last.Total.String())

	s, err := l.Series()
	require.NoError(t, err)
	assert.Equal(t, "cases", s.Name)
	assert.Equal(t, date("2020-03-04"), s.BaseDate)
	assert.Equal(t, []float64{0, 2, 3}, s.Offsets())
	assert.Equal(t, []float64{2, 4, 7}, s.Values())
}

func TestEmptyLedger(t *testing.T) {
	l := writeLedger(t, "\n\n")

	_, err := l.Last()
	assert.ErrorIs(t, err, ErrEmptyLedger)
	_, err = l.Series()
	assert.ErrorIs(t, err, ErrEmptyLedger)
}

func TestMissingLedger(t *testing.T) {
	l := New("cases", filepath.Join(t.TempDir(), "missing.txt"))
	_, err := l.Last()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAppend(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		want    string
	}{
		{
			name:    "file without trailing newline",
			initial: "2021-01-09 970\n2021-01-10 1000",
			want:    "2021-01-09 970\n2021-01-10 1000\n2021-01-11 1030 +30\n2021-01-12 1080 +50\n",
		},
		{
			name:    "file with trailing newline",
			initial: "2021-01-10 1000\n",
			want:    "2021-01-10 1000\n2021-01-11 1030 +30\n2021-01-12 1080 +50\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := writeLedger(t, tt.initial)

			err := l.Append(context.Background(), []Entry{
				entry("2021-01-11", 1030, 30),
				entry("2021-01-12", 1080, 50),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, readFile(t, l.Path()))

			last, err := l.Last()
			require.NoError(t, err)
			assert.Equal(t, date("2021-01-12"), last.Date)
		})
	}
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"not after last", []Entry{entry("2021-01-10", 1010, 10)}},
		{"before last", []Entry{entry("2021-01-08", 1010, 10)}},
		{"unsorted batch", []Entry{entry("2021-01-12", 1050, 50), entry("2021-01-11", 1080, 30)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := "2021-01-10 1000"
			l := writeLedger(t, initial)

			err := l.Append(context.Background(), tt.entries)
			assert.ErrorIs(t, err, ErrOutOfOrder)
			assert.Equal(t, initial, readFile(t, l.Path()))
		})
	}
}

func TestAppendNothing(t *testing.T) {
	initial := "2021-01-10 1000"
	l := writeLedger(t, initial)

	require.NoError(t, l.Append(context.Background(), nil))
	assert.Equal(t, initial, readFile(t, l.Path()))
	_, err := os.Stat(l.Path() + ".lock")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAppendTimesOutWhileLocked(t *testing.T) {
	initial := "2021-01-10 1000"
	l := writeLedger(t, initial)
	l.SetLockTimeout(150 * time.Millisecond)

	other := flock.New(l.Path() + ".lock")
	require.NoError(t, other.Lock())
	defer other.Unlock()

	start := time.Now()
	err := l.Append(context.Background(), []Entry{entry("2021-01-11", 1030, 30)})
	assert.ErrorIs(t, err, ErrLocked)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, initial, readFile(t, l.Path()))

	require.NoError(t, other.Unlock())
	require.NoError(t, l.Append(context.Background(), []Entry{entry("2021-01-11", 1030, 30)}))
	assert.Equal(t, initial+"\n2021-01-11 1030 +30\n", readFile(t, l.Path()))
}

func TestLockCancelledContext(t *testing.T) {
	l := writeLedger(t, "2021-01-10 1000")
	other := flock.New(l.Path() + ".lock")
	require.NoError(t, other.Lock())
	defer other.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Lock(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestWriterChecksBeforeWriting(t *testing.T) {
	initial := "2021-01-10 1000\n"
	l := writeLedger(t, initial)

	w, err := l.Lock(context.Background())
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, date("2021-01-10"), w.Last().Date)
	assert.ErrorIs(t, w.Check([]Entry{entry("2021-01-09", 990, -10)}), ErrOutOfOrder)
	require.NoError(t, w.Check([]Entry{entry("2021-01-11", 1030, 30)}))
	assert.Equal(t, initial, readFile(t, l.Path()))

	require.NoError(t, w.Write([]Entry{entry("2021-01-11", 1030, 30)}))
	assert.Equal(t, date("2021-01-11"), w.Last().Date)
	assert.ErrorIs(t, w.Write([]Entry{entry("2021-01-11", 1060, 30)}), ErrOutOfOrder)
	assert.Equal(t, initial+"2021-01-11 1030 +30\n", readFile(t, l.Path()))
}
