// Package ledger stores a cumulative daily series as an append-only text file,
// one "YYYY-MM-DD total [+delta]" line per day.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyLedger means the ledger has no usable line to anchor against.
	ErrEmptyLedger = errors.New("ledger has no entries")
	// ErrOutOfOrder is returned when appended dates are not strictly after the ledger's last date.
	ErrOutOfOrder = errors.New("entries are not strictly after the ledger's last date")
	// ErrLocked means another process holds the ledger lock.
	ErrLocked = errors.New("ledger is locked by another process")
)

// DefaultLockTimeout bounds the wait for another process's lock.
const DefaultLockTimeout = 10 * time.Second

const lockRetryDelay = 50 * time.Millisecond

// Ledger is a single series file
type Ledger struct {
	name        string
	path        string
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// New returns a ledger backed by the file at path. The file is not touched until used.
func New(name, path string) *Ledger {
	return &Ledger{
		name:        name,
		path:        path,
		lockTimeout: DefaultLockTimeout,
		logger:      log.With().Str("component", "ledger").Str("ledger", name).Logger(),
	}
}

// SetLockTimeout changes how long Lock waits for another holder. Non-positive
// values restore DefaultLockTimeout.
func (l *Ledger) SetLockTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultLockTimeout
	}
	l.lockTimeout = d
}

// Name returns the series name
func (l *Ledger) Name() string {
	return l.name
}

// Path returns the backing file path
func (l *Ledger) Path() string {
	return l.path
}

// Entries reads and parses the whole ledger.
func (l *Ledger) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	entries, skipped, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", l.path, err)
	}
	for _, pe := range skipped {
		l.logger.Warn().Err(pe.Err).Int("line", pe.Line).Str("text", pe.Text).Msg("Skipping ledger line")
	}
	return entries, nil
}

// Last returns the newest entry, ErrEmptyLedger when there is none.
func (l *Ledger) Last() (Entry, error) {
	entries, err := l.Entries()
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%s: %w", l.path, ErrEmptyLedger)
	}
	return entries[len(entries)-1], nil
}

// Series loads the ledger as a day-indexed series.
func (l *Ledger) Series() (*model.Series, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", l.path, ErrEmptyLedger)
	}

	obs := make([]model.Observation, len(entries))
	for i, e := range entries {
		obs[i] = model.Observation{Date: e.Date, Value: e.Total.InexactFloat64()}
	}
	return model.NewSeries(l.name, obs), nil
}

// Append writes entries at the end of the ledger in a single write while
// holding an exclusive lock. Every entry must be strictly after the current
// last entry and after the one before it; otherwise nothing is written.
func (l *Ledger) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	w, err := l.Lock(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Write(entries)
}

// Writer holds the exclusive lock of a ledger until Close.
type Writer struct {
	l    *Ledger
	lock *flock.Flock
	last Entry
}

// Lock takes the ledger's exclusive lock, waiting at most the ledger's lock
// timeout. The last entry is read under the lock.
func (l *Ledger) Lock(ctx context.Context) (*Writer, error) {
	lock := flock.New(l.path + ".lock")

	lctx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lctx, lockRetryDelay)
	switch {
	case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%s: %w after %s", l.path, ErrLocked, l.lockTimeout)
	case err != nil:
		return nil, fmt.Errorf("locking ledger %s: %w", l.path, err)
	case !locked:
		return nil, fmt.Errorf("%s: %w", l.path, ErrLocked)
	}

	last, err := l.Last()
	if err != nil {
		l.unlock(lock)
		return nil, err
	}
	return &Writer{l: l, lock: lock, last: last}, nil
}

// Last returns the ledger's last entry as read when the lock was taken.
func (w *Writer) Last() Entry {
	return w.last
}

// Check reports whether entries can be appended: each must be strictly after
// the last entry and after the one before it.
func (w *Writer) Check(entries []Entry) error {
	prev := w.last.Date
	for _, e := range entries {
		if !e.Date.After(prev) {
			return fmt.Errorf("%s: %w: %s after %s", w.l.name, ErrOutOfOrder,
				e.Date.Format(model.DateLayout), prev.Format(model.DateLayout))
		}
		prev = e.Date
	}
	return nil
}

// Write checks entries and appends them in a single write.
func (w *Writer) Write(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := w.Check(entries); err != nil {
		return err
	}
	l := w.l

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening ledger %s for append: %w", l.path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	terminated, err := endsWithNewline(f)
	if err != nil {
		return fmt.Errorf("reading ledger %s: %w", l.path, err)
	}
	if !terminated {
		buf.WriteByte('\n')
	}
	for _, e := range entries {
		buf.WriteString(e.String())
		buf.WriteByte('\n')
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("appending to ledger %s: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing ledger %s: %w", l.path, err)
	}
	w.last = entries[len(entries)-1]

	l.logger.Info().
		Int("count", len(entries)).
		Str("last_date", w.last.Date.Format(model.DateLayout)).
		Msg("Appended ledger entries")
	return nil
}

// Close releases the lock.
func (w *Writer) Close() error {
	w.l.unlock(w.lock)
	return nil
}

func (l *Ledger) unlock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		l.logger.Warn().Err(err).Msg("Unlocking ledger")
	}
}

// endsWithNewline reports whether the file is empty or its last byte is '\n'.
func endsWithNewline(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	if st.Size() == 0 {
		return true, nil
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, st.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return b[0] == '\n', nil
}
