package config

import (
	"testing"
	"time"

	"github.com/Alias1177/covid-curve/internal/fit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "covid_data.txt", cfg.CasesLedger)
	assert.Equal(t, "covid_deaths.txt", cfg.DeathsLedger)
	assert.Equal(t, 50, cfg.MaxPages)
	assert.Equal(t, 10*time.Second, cfg.LedgerLockTimeoutDuration())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, fit.DefaultSettings(), cfg.FitSettings())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CASES_LEDGER", "/data/cases.txt")
	t.Setenv("MAX_PAGES", "7")
	t.Setenv("LOGISTIC_MAX_STDERR", "5e6")
	t.Setenv("REJECT_UNCERTAIN_MAXIMUM", "false")
	t.Setenv("REQUEST_TIMEOUT", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/cases.txt", cfg.CasesLedger)
	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, fit.Policy{MaxStdErr: 5e6}, cfg.FitSettings().Policy)
	assert.Equal(t, "12s", cfg.RequestTimeoutDuration().String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero pages", "MAX_PAGES", "0"},
		{"unknown log level", "LOG_LEVEL", "loud"},
		{"bad url", "FEED_BASE_URL", "not a url"},
		{"non numeric", "MAX_PAGES", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
