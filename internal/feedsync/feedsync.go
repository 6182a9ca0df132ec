// Package feedsync extends the ledgers with the daily reports published since
// their last entry, scanning a newest-first paginated feed.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Alias1177/covid-curve/internal/ledger"
	"github.com/Alias1177/covid-curve/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	// ErrScanExhausted means the page budget ran out before known history was reached.
	ErrScanExhausted = errors.New("scan did not reach the last known date")
	// ErrInvalidRecord means a feed record carries an unusable increment.
	ErrInvalidRecord = errors.New("invalid feed record")
	// ErrEndOfFeed is returned, possibly wrapped, by a Feed asked for a page past its end.
	ErrEndOfFeed = errors.New("no more feed pages")
)

// DefaultMaxPages is the page budget of one scan.
const DefaultMaxPages = 50

// Feed is a newest-first paginated source of daily reports.
// Records within a page are in reverse chronological order. A page may hold no
// records at all; a page past the end of the feed yields ErrEndOfFeed.
type Feed interface {
	Page(ctx context.Context, index int) ([]model.FeedRecord, error)
}

// Field selects which increment of a feed record a ledger accumulates.
type Field int

const (
	Primary Field = iota
	Secondary
)

func (f Field) pick(r model.FeedRecord) string {
	if f == Secondary {
		return r.Secondary
	}
	return r.Primary
}

func (f Field) String() string {
	if f == Secondary {
		return "secondary"
	}
	return "primary"
}

// Target binds a ledger to the record field it accumulates.
type Target struct {
	Ledger *ledger.Ledger
	Field  Field
}

// State of a sync run
type State int

const (
	Idle State = iota
	Scanning
	Merging
	Done
	AbortedNoNewData
	AbortedExhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Merging:
		return "merging"
	case Done:
		return "done"
	case AbortedNoNewData:
		return "aborted_no_new_data"
	case AbortedExhausted:
		return "aborted_exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result summarises a sync run
type Result struct {
	State    State
	Anchor   time.Time      // earliest last date among the ledgers
	Latest   time.Time      // newest date written, zero when nothing was written
	Pages    int            // pages fetched
	Appended map[string]int // entries appended per ledger name
}

// Options tune a Syncer
type Options struct {
	MaxPages int
	Now      func() time.Time
}

// Syncer runs the scan-and-merge cycle for a set of ledgers fed by the same source.
type Syncer struct {
	feed     Feed
	targets  []Target
	maxPages int
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a Syncer. Zero options fall back to DefaultMaxPages and time.Now.
func New(feed Feed, opts Options, targets ...Target) *Syncer {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{
		feed:     feed,
		targets:  targets,
		maxPages: opts.MaxPages,
		now:      opts.Now,
		logger:   log.With().Str("component", "sync").Logger(),
	}
}

type anchor struct {
	target Target
	last   ledger.Entry
}

// Run performs one sync. Ledgers are written only when the scan reached known
// history and produced at least one new record, and only after every ledger
// was locked and accepted its batch. An I/O error while writing a later ledger
// leaves the earlier ones ahead; the next run anchors on the lagging ledger and
// fills it in.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	res := Result{State: Idle, Appended: make(map[string]int)}
	if len(s.targets) == 0 {
		return res, errors.New("no ledgers to sync")
	}

	anchors := make([]anchor, len(s.targets))
	for i, t := range s.targets {
		last, err := t.Ledger.Last()
		if err != nil {
			return res, fmt.Errorf("reading last entry of %s: %w", t.Ledger.Name(), err)
		}
		anchors[i] = anchor{target: t, last: last}
		if i == 0 || last.Date.Before(res.Anchor) {
			res.Anchor = last.Date
		}
	}

	today := model.TruncateDay(s.now())
	if !res.Anchor.Before(today) {
		s.logger.Info().Str("date", today.Format(model.DateLayout)).Msg("Already synced today's data")
		res.State = Done
		return res, nil
	}

	res.State = Scanning
	s.logger.Info().
		Str("until", res.Anchor.Format(model.DateLayout)).
		Int("max_pages", s.maxPages).
		Msg("Scanning feed backwards")

	records, pages, reached, err := s.scan(ctx, res.Anchor)
	res.Pages = pages
	if err != nil {
		return res, err
	}
	if !reached {
		res.State = AbortedExhausted
		oldest := "none"
		if len(records) > 0 {
			oldest = records[len(records)-1].Date.Format(model.DateLayout)
		}
		return res, fmt.Errorf("%w: %s after %d pages (oldest scanned %s)",
			ErrScanExhausted, res.Anchor.Format(model.DateLayout), pages, oldest)
	}
	if len(records) == 0 {
		res.State = AbortedNoNewData
		s.logger.Info().Msg("No new data in feed, today's report is probably not out yet")
		return res, nil
	}

	res.State = Merging
	reverse(records)

	batches := make([][]ledger.Entry, len(anchors))
	for i, a := range anchors {
		batch, err := accumulate(a, records)
		if err != nil {
			return res, err
		}
		batches[i] = batch
	}

	// Every ledger is locked and checked before the first one is written.
	writers := make([]*ledger.Writer, len(anchors))
	defer func() {
		for _, w := range writers {
			if w != nil {
				w.Close()
			}
		}
	}()
	for i, a := range anchors {
		if len(batches[i]) == 0 {
			continue
		}
		w, err := a.target.Ledger.Lock(ctx)
		if err != nil {
			return res, fmt.Errorf("merging into %s: %w", a.target.Ledger.Name(), err)
		}
		writers[i] = w
		if err := w.Check(batches[i]); err != nil {
			return res, fmt.Errorf("merging into %s: %w", a.target.Ledger.Name(), err)
		}
	}

	for i, a := range anchors {
		if w := writers[i]; w != nil {
			if err := w.Write(batches[i]); err != nil {
				return res, fmt.Errorf("merging into %s: %w", a.target.Ledger.Name(), err)
			}
		}
		res.Appended[a.target.Ledger.Name()] = len(batches[i])
	}

	res.Latest = records[len(records)-1].Date
	res.State = Done
	s.logger.Info().
		Str("latest", res.Latest.Format(model.DateLayout)).
		Int("records", len(records)).
		Msg("Sync done")
	return res, nil
}

// scan collects records newer than anchor, newest first. reached reports
// whether a record at or before anchor was seen.
func (s *Syncer) scan(ctx context.Context, anchor time.Time) (records []model.FeedRecord, pages int, reached bool, err error) {
	for page := 0; page < s.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, pages, false, err
		}

		recs, err := s.feed.Page(ctx, page)
		pages++
		if errors.Is(err, ErrEndOfFeed) {
			s.logger.Warn().Int("page", page).Msg("Reached the end of the feed")
			return records, pages, false, nil
		}
		if err != nil {
			return records, pages, false, fmt.Errorf("fetching feed page %d: %w", page, err)
		}
		if len(recs) == 0 {
			s.logger.Debug().Int("page", page).Msg("No daily report on page")
			continue
		}

		for _, r := range recs {
			if !r.Date.After(anchor) {
				return records, pages, true, nil
			}
			if n := len(records); n > 0 && !r.Date.Before(records[n-1].Date) {
				s.logger.Warn().
					Str("date", r.Date.Format(model.DateLayout)).
					Str("previous", records[n-1].Date.Format(model.DateLayout)).
					Msg("Dropping out-of-order feed record")
				continue
			}
			s.logger.Debug().
				Str("date", r.Date.Format(model.DateLayout)).
				Str("primary", r.Primary).
				Str("secondary", r.Secondary).
				Msg("Collected record")
			records = append(records, r)
		}
	}
	return records, pages, false, nil
}

// accumulate turns chronological records into ledger entries with running
// totals, skipping dates the ledger already holds.
func accumulate(a anchor, records []model.FeedRecord) ([]ledger.Entry, error) {
	total := a.last.Total
	var out []ledger.Entry
	for _, r := range records {
		if !r.Date.After(a.last.Date) {
			continue
		}
		raw := a.target.Field.pick(r)
		delta, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(raw), "+"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s increment %q: %v",
				ErrInvalidRecord, r.Date.Format(model.DateLayout), a.target.Field, raw, err)
		}
		total = total.Add(delta)
		d := delta
		out = append(out, ledger.Entry{Date: r.Date, Total: total, Delta: &d})
	}
	return out, nil
}

func reverse(records []model.FeedRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
