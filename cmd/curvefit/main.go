package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/covid-curve/internal/api/koronavirus"
	"github.com/Alias1177/covid-curve/internal/config"
	"github.com/Alias1177/covid-curve/internal/feedsync"
	"github.com/Alias1177/covid-curve/internal/fit"
	"github.com/Alias1177/covid-curve/internal/ledger"
	"github.com/Alias1177/covid-curve/internal/projection"
	"github.com/Alias1177/covid-curve/internal/report"
)

// curve is one tracked series and the title printed above its report
type curve struct {
	ledger *ledger.Ledger
	title  string
}

func main() {
	skipSync := flag.Bool("skip-sync", false, "fit the ledgers as they are, without reading the news feed")
	showTable := flag.Bool("table", false, "print the projection table after each summary")
	flag.Parse()

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	setupSignalHandling(cancel)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting curve fitter")

	// 3. Print configuration
	printConfig(cfg)

	cases := ledger.New("cases", cfg.CasesLedger)
	deaths := ledger.New("deaths", cfg.DeathsLedger)
	for _, l := range []*ledger.Ledger{cases, deaths} {
		l.SetLockTimeout(cfg.LedgerLockTimeoutDuration())
	}

	// 4. Extend the ledgers with the reports published since their last entry
	if !*skipSync {
		runSync(ctx, cfg, cases, deaths)
	}

	// 5. Fit and report each series
	curves := []curve{
		{ledger: deaths, title: "COVID-19 curve fitting - total deaths"},
		{ledger: cases, title: "COVID-19 curve fitting - total cases"},
	}
	for _, c := range curves {
		if err := runAnalysis(ctx, cfg, c, *showTable); err != nil {
			log.Fatal().Err(err).Str("ledger", c.ledger.Path()).Msg("Analysis failed")
		}
	}
}

// setupSignalHandling configures signal handling for graceful shutdown
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, exiting...")
		cancel()
		os.Exit(0)
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

// printConfig outputs the current configuration
func printConfig(cfg *config.Config) {
	log.Info().
		Str("CasesLedger", cfg.CasesLedger).
		Str("DeathsLedger", cfg.DeathsLedger).
		Int("LedgerLockTimeout", cfg.LedgerLockTimeout).
		Str("FeedBaseURL", cfg.FeedBaseURL).
		Int("MaxPages", cfg.MaxPages).
		Int("RequestsPerSec", cfg.RequestsPerSec).
		Int("MaxRetries", cfg.MaxRetries).
		Float64("LogisticMaxStdErr", cfg.LogisticMaxStdErr).
		Bool("RejectUncertainMaximum", cfg.RejectUncertainMaximum).
		Int("LogisticMaxIterations", cfg.LogisticMaxIterations).
		Int("ExponentialMaxIterations", cfg.ExponentialMaxIterations).
		Int("MaxWindowDays", cfg.MaxWindowDays).
		Msg("Configuration loaded")
}

// runSync scans the feed back to the ledgers' last known day and appends what is new.
// Failures are logged; fitting continues on whatever the ledgers already hold.
func runSync(ctx context.Context, cfg *config.Config, cases, deaths *ledger.Ledger) {
	log.Info().Msg("Synchronising ledgers with the news feed...")

	feed := koronavirus.NewClient(koronavirus.ClientOptions{
		BaseURL:         cfg.FeedBaseURL,
		RequestTimeout:  cfg.RequestTimeoutDuration(),
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetries:      cfg.MaxRetries,
		MaxRetryTimeout: cfg.MaxRetryTimeoutDuration(),
		UserAgent:       cfg.FeedUserAgent,
	})
	syncer := feedsync.New(feed, feedsync.Options{MaxPages: cfg.MaxPages},
		feedsync.Target{Ledger: cases, Field: feedsync.Primary},
		feedsync.Target{Ledger: deaths, Field: feedsync.Secondary},
	)

	res, err := syncer.Run(ctx)
	switch {
	case errors.Is(err, feedsync.ErrScanExhausted):
		log.Warn().Int("pages", res.Pages).Time("anchor", res.Anchor).Msg("Feed exhausted before reaching known data, ledgers left unchanged")
	case err != nil:
		log.Error().Err(err).Str("state", res.State.String()).Msg("Sync failed")
	case res.State == feedsync.AbortedNoNewData:
		log.Warn().Time("anchor", res.Anchor).Msg("No new reports since the last ledger entry")
	default:
		log.Info().
			Str("state", res.State.String()).
			Int("pages", res.Pages).
			Int("cases", res.Appended[cases.Name()]).
			Int("deaths", res.Appended[deaths.Name()]).
			Msg("Ledgers synchronised")
	}
}

// runAnalysis fits both models to one ledger and prints the summary.
func runAnalysis(ctx context.Context, cfg *config.Config, c curve, showTable bool) error {
	series, err := c.ledger.Series()
	if err != nil {
		return err
	}

	outcome, err := fit.Run(ctx, series, cfg.FitSettings())
	if err != nil {
		return fmt.Errorf("fit %s: %w", c.ledger.Name(), err)
	}

	if err := report.WriteSummary(os.Stdout, report.Summarize(c.title, series, outcome)); err != nil {
		return err
	}
	if showTable {
		table := projection.Build(series, outcome.Exponential, outcome.Logistic, cfg.MaxWindowDays)
		report.WriteTable(os.Stdout, table)
	}
	fmt.Println()
	return nil
}
