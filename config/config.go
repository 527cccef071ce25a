package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/botcore/market"
)

// Config is the complete runtime configuration.
type Config struct {
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decision DecisionConfig `json:"decision" yaml:"decision"`
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
	Safety   SafetyConfig   `json:"safety" yaml:"safety"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Status   StatusConfig   `json:"status" yaml:"status"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Paper    PaperConfig    `json:"paper" yaml:"paper"`
}

// DecisionConfig locates the decision service.
type DecisionConfig struct {
	URL     string `json:"url" yaml:"url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Timeout string `json:"timeout" yaml:"timeout"` // e.g. "30s"

	// RatePerMinute caps requests; 0 means unlimited.
	RatePerMinute int `json:"rate_per_minute" yaml:"rate_per_minute"`

	// ReportTimeout bounds retries of the positions report.
	ReportTimeout string `json:"report_timeout" yaml:"report_timeout"`
}

// BrokerConfig selects the live bridge or the in-memory paper broker.
type BrokerConfig struct {
	Mode    string `json:"mode" yaml:"mode"` // "bridge" or "paper"
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type ScheduleConfig struct {
	SessionHour   int    `json:"session_hour" yaml:"session_hour"`
	Timezone      string `json:"timezone" yaml:"timezone"`
	BaseTimeframe string `json:"base_timeframe" yaml:"base_timeframe"`
	PollInterval  string `json:"poll_interval" yaml:"poll_interval"`
	DefaultReview string `json:"default_review" yaml:"default_review"`
	CycleTimeout  string `json:"cycle_timeout" yaml:"cycle_timeout"`
	Candles       int    `json:"candles" yaml:"candles"`
}

type SafetyConfig struct {
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxDrawdown      float64 `json:"max_drawdown" yaml:"max_drawdown"` // fraction of balance
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type           string `json:"type" yaml:"type"` // "sqlite", "postgres", "csv" or "none"
	DSN            string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	CyclesFile     string `json:"cycles_file,omitempty" yaml:"cycles_file,omitempty"`
	ExecutionsFile string `json:"executions_file,omitempty" yaml:"executions_file,omitempty"`
}

type StatusConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level   string `json:"level" yaml:"level"`
	Console bool   `json:"console" yaml:"console"`
}

// PaperConfig seeds the paper broker.
type PaperConfig struct {
	AccountID  string      `json:"account_id" yaml:"account_id"`
	Currency   string      `json:"currency" yaml:"currency"`
	Balance    float64     `json:"balance" yaml:"balance"`
	Bid        float64     `json:"bid" yaml:"bid"`
	Ask        float64     `json:"ask" yaml:"ask"`
	PriceSteps []PriceStep `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`

	// HistoryFile is an optional HistData M1 file the paper broker
	// serves candles from.
	HistoryFile string `json:"history_file,omitempty" yaml:"history_file,omitempty"`
}

// PriceStep represents a scripted price update for the paper broker
type PriceStep struct {
	Bid   float64 `json:"bid" yaml:"bid"`
	Ask   float64 `json:"ask" yaml:"ask"`
	Delay string  `json:"delay" yaml:"delay"` // e.g., "1h", "30m", "1s"
}

// ParseDuration converts the delay string to time.Duration
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// LoadFromFile loads configuration from a YAML or JSON file, applies
// environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadEnv reads .env style files into the process environment. A
// missing file is not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg(".env file not found, relying on actual environment variables")
	}
}

// ApplyEnv overrides secrets and deployment settings from BOTCORE_*
// environment variables.
func ApplyEnv(c *Config) {
	c.Decision.URL = getEnvWithDefault("BOTCORE_DECISION_URL", c.Decision.URL)
	c.Decision.APIKey = getEnvWithDefault("BOTCORE_DECISION_API_KEY", c.Decision.APIKey)
	c.Broker.URL = getEnvWithDefault("BOTCORE_BRIDGE_URL", c.Broker.URL)
	c.Broker.Token = getEnvWithDefault("BOTCORE_BRIDGE_TOKEN", c.Broker.Token)
	c.Symbol = getEnvWithDefault("BOTCORE_SYMBOL", c.Symbol)
	c.Log.Level = getEnvWithDefault("BOTCORE_LOG_LEVEL", c.Log.Level)

	if dsn := os.Getenv("BOTCORE_JOURNAL_DSN"); dsn != "" {
		c.Journal.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			c.Journal.Type = "postgres"
		}
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Decision.URL == "" {
		return fmt.Errorf("decision.url is required")
	}
	if c.Decision.RatePerMinute < 0 {
		return fmt.Errorf("decision.rate_per_minute must not be negative")
	}

	switch c.Broker.Mode {
	case "bridge":
		if c.Broker.URL == "" {
			return fmt.Errorf("broker.url is required for bridge mode")
		}
	case "paper":
		if _, ok := market.Instruments[c.Symbol]; !ok {
			return fmt.Errorf("unknown instrument for paper mode: %s", c.Symbol)
		}
		if c.Paper.Currency == "" {
			return fmt.Errorf("paper.currency is required")
		}
		if c.Paper.Balance <= 0 {
			return fmt.Errorf("paper.balance must be positive")
		}
		if c.Paper.Bid <= 0 || c.Paper.Ask <= 0 {
			return fmt.Errorf("paper initial prices must be positive")
		}
		if c.Paper.Ask <= c.Paper.Bid {
			return fmt.Errorf("paper.ask must be greater than paper.bid")
		}
		for i, ps := range c.Paper.PriceSteps {
			if _, err := ps.ParseDuration(); err != nil {
				return fmt.Errorf("paper.price_steps[%d].delay: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("broker.mode must be 'bridge' or 'paper'")
	}

	if c.Schedule.SessionHour < 0 || c.Schedule.SessionHour > 23 {
		return fmt.Errorf("schedule.session_hour must be between 0 and 23")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if _, err := market.ParseTimeframe(c.Schedule.BaseTimeframe); err != nil {
		return fmt.Errorf("schedule.base_timeframe: %w", err)
	}
	if c.Schedule.Candles <= 0 {
		return fmt.Errorf("schedule.candles must be positive")
	}

	durations := map[string]string{
		"decision.timeout":        c.Decision.Timeout,
		"decision.report_timeout": c.Decision.ReportTimeout,
		"broker.timeout":          c.Broker.Timeout,
		"schedule.poll_interval":  c.Schedule.PollInterval,
		"schedule.default_review": c.Schedule.DefaultReview,
		"schedule.cycle_timeout":  c.Schedule.CycleTimeout,
	}
	for field, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", field)
		}
	}

	if c.Safety.MaxOpenPositions <= 0 {
		return fmt.Errorf("safety.max_open_positions must be positive")
	}
	if c.Safety.MaxDrawdown <= 0 || c.Safety.MaxDrawdown >= 1 {
		return fmt.Errorf("safety.max_drawdown must be between 0 and 1")
	}

	switch c.Journal.Type {
	case "none":
	case "sqlite", "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn required for %s type", c.Journal.Type)
		}
	case "csv":
		if c.Journal.CyclesFile == "" || c.Journal.ExecutionsFile == "" {
			return fmt.Errorf("journal cycles_file and executions_file required for CSV type")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'postgres', 'csv' or 'none'")
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status.addr is required when status is enabled")
	}
	return nil
}

// Duration accessors assume Validate has passed.

func (d DecisionConfig) TimeoutDuration() time.Duration       { return mustDuration(d.Timeout) }
func (d DecisionConfig) ReportTimeoutDuration() time.Duration { return mustDuration(d.ReportTimeout) }
func (b BrokerConfig) TimeoutDuration() time.Duration         { return mustDuration(b.Timeout) }
func (s ScheduleConfig) PollDuration() time.Duration          { return mustDuration(s.PollInterval) }
func (s ScheduleConfig) DefaultReviewDuration() time.Duration { return mustDuration(s.DefaultReview) }
func (s ScheduleConfig) CycleTimeoutDuration() time.Duration  { return mustDuration(s.CycleTimeout) }

func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s ScheduleConfig) Timeframe() market.Timeframe {
	tf, err := market.ParseTimeframe(s.BaseTimeframe)
	if err != nil {
		return market.M15
	}
	return tf
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Symbol: "EURUSD",
		Decision: DecisionConfig{
			URL:           "http://localhost:5000",
			Timeout:       "30s",
			RatePerMinute: 12,
			ReportTimeout: "30s",
		},
		Broker: BrokerConfig{
			Mode:    "paper",
			URL:     "http://localhost:8228",
			Timeout: "10s",
		},
		Schedule: ScheduleConfig{
			SessionHour:   7,
			Timezone:      "UTC",
			BaseTimeframe: "M15",
			PollInterval:  "5s",
			DefaultReview: "15m",
			CycleTimeout:  "2m",
			Candles:       100,
		},
		Safety: SafetyConfig{
			MaxOpenPositions: 1,
			MaxDrawdown:      0.2,
		},
		Journal: JournalConfig{
			Type: "sqlite",
			DSN:  "./botcore.db",
		},
		Status: StatusConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Paper: PaperConfig{
			AccountID: "PAPER-001",
			Currency:  "USD",
			Balance:   10000,
			Bid:       1.1000,
			Ask:       1.1002,
		},
	}
}
