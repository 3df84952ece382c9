package application

import (
	"log/slog"
	"testing"
	"time"

	"github.com/JonMunkholm/csvjob/internal/config"
	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(key string) string {
		switch key {
		case "API_BASE_URL":
			return "http://localhost:3000/"
		case "POLL_INTERVAL":
			return "250ms"
		case "CSV_DIALECT":
			return "rfc4180"
		}
		return ""
	})
	require.NoError(t, err)
	return cfg
}

func TestControllerOptions(t *testing.T) {
	opts, err := ControllerOptions(testConfig(t), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, opts.Poller.Interval)
	assert.Equal(t, 15*time.Second, opts.Poller.RequestTimeout)
	assert.Equal(t, 5, opts.Poller.MaxConsecutiveErrors)
	assert.Equal(t, 30*time.Minute, opts.Poller.MaxDuration)
	assert.Equal(t, core.DialectRFC4180, opts.Dialect)
	assert.Equal(t, []string{"Department Name", "Total Number of Sales"}, opts.RequiredColumns)
	assert.Equal(t, 10, opts.RowsPerPage)
}

func TestControllerOptions_BadDialect(t *testing.T) {
	cfg := testConfig(t)
	cfg.Table.Dialect = "excel"

	_, err := ControllerOptions(cfg, slog.Default())
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Token = "secret"

	c, err := NewClient(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", c.BaseURL())
}

func TestNewController(t *testing.T) {
	ctrl, err := NewController(testConfig(t), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, core.StateIdle, ctrl.State())

	_, err = ctrl.Table()
	assert.ErrorIs(t, err, core.ErrNoResult)
}
