package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/botcore/market"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Decision.TimeoutDuration())
	assert.Equal(t, 15*time.Minute, cfg.Schedule.DefaultReviewDuration())
	assert.Equal(t, 5*time.Second, cfg.Schedule.PollDuration())
	assert.Equal(t, 2*time.Minute, cfg.Schedule.CycleTimeoutDuration())
	assert.Equal(t, market.M15, cfg.Schedule.Timeframe())
	assert.Equal(t, time.UTC, cfg.Schedule.Location())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no symbol", func(c *Config) { c.Symbol = "" }, "symbol is required"},
		{"no decision url", func(c *Config) { c.Decision.URL = "" }, "decision.url"},
		{"bad mode", func(c *Config) { c.Broker.Mode = "live" }, "broker.mode"},
		{"bridge without url", func(c *Config) { c.Broker.Mode = "bridge"; c.Broker.URL = "" }, "broker.url"},
		{"paper unknown symbol", func(c *Config) { c.Symbol = "BTCUSD" }, "unknown instrument"},
		{"paper crossed prices", func(c *Config) { c.Paper.Ask = c.Paper.Bid }, "paper.ask"},
		{"paper bad step", func(c *Config) { c.Paper.PriceSteps = []PriceStep{{Bid: 1, Ask: 1.1, Delay: "soon"}} }, "price_steps[0]"},
		{"session hour", func(c *Config) { c.Schedule.SessionHour = 24 }, "session_hour"},
		{"timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"timeframe", func(c *Config) { c.Schedule.BaseTimeframe = "M7" }, "base_timeframe"},
		{"duration", func(c *Config) { c.Schedule.DefaultReview = "fifteen" }, "schedule.default_review"},
		{"zero duration", func(c *Config) { c.Decision.Timeout = "0s" }, "decision.timeout must be positive"},
		{"max positions", func(c *Config) { c.Safety.MaxOpenPositions = 0 }, "max_open_positions"},
		{"drawdown", func(c *Config) { c.Safety.MaxDrawdown = 1.5 }, "max_drawdown"},
		{"journal type", func(c *Config) { c.Journal.Type = "mongo" }, "journal.type"},
		{"journal dsn", func(c *Config) { c.Journal.DSN = "" }, "journal.dsn"},
		{"csv files", func(c *Config) { c.Journal.Type = "csv" }, "cycles_file"},
		{"status addr", func(c *Config) { c.Status.Addr = "" }, "status.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBridgeModeSkipsPaperChecks(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Broker.Mode = "bridge"
	cfg.Symbol = "BTCUSD"
	cfg.Paper = PaperConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestSaveAndLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "botcore.yaml")
	cfg := Default()
	cfg.Symbol = "GBPUSD"
	cfg.Paper.PriceSteps = []PriceStep{{Bid: 1.27, Ask: 1.2702, Delay: "1s"}}
	require.NoError(t, cfg.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", got.Symbol)
	require.Len(t, got.Paper.PriceSteps, 1)

	d, err := got.Paper.PriceSteps[0].ParseDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestLoadJSONKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "botcore.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"symbol":"USDJPY","paper":{"currency":"USD","balance":5000,"bid":150.10,"ask":150.12}}`), 0o600))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "USDJPY", got.Symbol)
	assert.Equal(t, 5000.0, got.Paper.Balance)
	assert.Equal(t, "15m", got.Schedule.DefaultReview)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbol: EURUSD\nbroker:\n  mode: carrier-pigeon\n"), 0o600))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOTCORE_DECISION_URL", "https://decide.example.com")
	t.Setenv("BOTCORE_DECISION_API_KEY", "secret")
	t.Setenv("BOTCORE_BRIDGE_URL", "http://bridge:9000")
	t.Setenv("BOTCORE_BRIDGE_TOKEN", "tok")
	t.Setenv("BOTCORE_SYMBOL", "XAUUSD")
	t.Setenv("BOTCORE_LOG_LEVEL", "debug")
	t.Setenv("BOTCORE_JOURNAL_DSN", "postgres://u:p@db/botcore")

	cfg := Default()
	ApplyEnv(cfg)

	assert.Equal(t, "https://decide.example.com", cfg.Decision.URL)
	assert.Equal(t, "secret", cfg.Decision.APIKey)
	assert.Equal(t, "http://bridge:9000", cfg.Broker.URL)
	assert.Equal(t, "tok", cfg.Broker.Token)
	assert.Equal(t, "XAUUSD", cfg.Symbol)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Journal.Type)
	assert.Equal(t, "postgres://u:p@db/botcore", cfg.Journal.DSN)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOTCORE_TEST_ONLY_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BOTCORE_TEST_ONLY_KEY") })

	LoadEnv(path)
	assert.Equal(t, "from-file", os.Getenv("BOTCORE_TEST_ONLY_KEY"))

	// missing files are tolerated
	LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
}
