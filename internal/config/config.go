// Package config provides configuration management for the heartbeat daemon.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Heartbeat defaults applied when the corresponding key is unset.
const (
	defaultTickIntervalSeconds       = 30
	defaultSupervisorIntervalSeconds = 60
	defaultRollingBufferSize         = 60
	defaultSnapshotWarnFailures      = 5
	defaultSnapshotFatalFailures     = 10

	defaultPnlShiftPct            = 1.5
	defaultApproachingStopPct     = 1.0
	defaultApproachingTpPct       = 1.0
	defaultLiquidationProximity   = 5.0
	defaultFundingSpike           = 0.0001
	defaultVolatilitySpikePct     = 2.0
	defaultVolatilitySpikeWindow  = 10
	defaultTimeCeilingMinutes     = 15
	defaultTriggerCooldownSeconds = 180

	defaultBreakerLiqPct  = 2.0
	defaultBreakerLossPct = -5.0

	defaultMaxAdvisorCallsPerHour = 20
	defaultLLMMaxTokens           = 1024
	defaultLLMTemperature         = 0.2

	defaultMaxEntriesPerDay = 10
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	LLM         LLMConfig         `yaml:"llm"`
	Risk        RiskConfig        `yaml:"risk"`
	Journal     JournalConfig     `yaml:"journal"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ExchangeConfig defines the perp exchange gateway settings.
type ExchangeConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
	// MinPositionNotional is the gateway's minimum residual position size;
	// partial closes that would leave less than this are rejected.
	MinPositionNotional float64 `yaml:"min_position_notional"`
	// PriceTickSize is the venue's price increment. Outgoing trigger prices
	// are rounded to it; zero disables rounding.
	PriceTickSize float64 `yaml:"price_tick_size"`
}

// HeartbeatConfig defines the polling loop and significance thresholds.
type HeartbeatConfig struct {
	Enabled                   *bool         `yaml:"enabled"`
	TickIntervalSeconds       int           `yaml:"tick_interval_seconds"`
	SupervisorIntervalSeconds int           `yaml:"supervisor_interval_seconds"`
	RollingBufferSize         int           `yaml:"rolling_buffer_size"`
	SnapshotWarnFailures      int           `yaml:"snapshot_warn_failures"`
	SnapshotFatalFailures     int           `yaml:"snapshot_fatal_failures"`
	Triggers                  TriggerConfig `yaml:"triggers"`
	CircuitBreakers           BreakerConfig `yaml:"circuit_breakers"`
	Advisor                   AdvisorBudget `yaml:"llm"`
	Notify                    *bool         `yaml:"notify"`
}

// TriggerConfig holds the significance thresholds and the generic cooldown
// fallback. Named per-trigger cooldown defaults live with the evaluator.
type TriggerConfig struct {
	PnlShiftPct                float64 `yaml:"pnl_shift_pct"`
	ApproachingStopPct         float64 `yaml:"approaching_stop_pct"`
	ApproachingTpPct           float64 `yaml:"approaching_tp_pct"`
	LiquidationProximityPct    float64 `yaml:"liquidation_proximity_pct"`
	FundingSpike               float64 `yaml:"funding_spike"`
	VolatilitySpikePct         float64 `yaml:"volatility_spike_pct"`
	VolatilitySpikeWindowTicks int     `yaml:"volatility_spike_window_ticks"`
	TimeCeilingMinutes         int     `yaml:"time_ceiling_minutes"`
	TriggerCooldownSeconds     int     `yaml:"trigger_cooldown_seconds"`
}

// BreakerConfig holds the hard, LLM-free close thresholds.
type BreakerConfig struct {
	LiqPct  float64 `yaml:"liq_pct"`
	LossPct float64 `yaml:"loss_pct"`
}

// AdvisorBudget bounds LLM spend from the heartbeat.
type AdvisorBudget struct {
	MaxAdvisorCallsPerHour int `yaml:"max_advisor_calls_per_hour"`
	MaxTokens              int `yaml:"max_tokens"`
}

// LLMConfig defines the chat-completion endpoint used for advisories.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// RiskConfig defines account-level limits surfaced to the advisor.
type RiskConfig struct {
	MaxEntriesPerDay int `yaml:"max_entries_per_day"`
}

// JournalConfig defines journal persistence settings.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only status server.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NotifyConfig defines the notification channel.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig holds Telegram bot credentials (usually env-expanded).
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate normalizes defaults and checks that all values are consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.AccountID == "" {
		return fmt.Errorf("exchange.account_id is required")
	}
	if c.Exchange.MinPositionNotional < 0 {
		return fmt.Errorf("exchange.min_position_notional must be >= 0")
	}
	if c.Exchange.PriceTickSize < 0 {
		return fmt.Errorf("exchange.price_tick_size must be >= 0")
	}

	c.normalizeHeartbeat()

	hb := &c.Heartbeat
	if hb.TickIntervalSeconds < 5 || hb.TickIntervalSeconds > 600 {
		return fmt.Errorf("heartbeat.tick_interval_seconds must be in [5, 600]")
	}
	if hb.SupervisorIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat.supervisor_interval_seconds must be > 0")
	}
	if hb.RollingBufferSize < 1 || hb.RollingBufferSize > 10000 {
		return fmt.Errorf("heartbeat.rolling_buffer_size must be in [1, 10000]")
	}
	if hb.SnapshotWarnFailures <= 0 || hb.SnapshotFatalFailures <= 0 {
		return fmt.Errorf("heartbeat snapshot failure thresholds must be > 0")
	}
	if hb.SnapshotWarnFailures > hb.SnapshotFatalFailures {
		return fmt.Errorf("heartbeat.snapshot_warn_failures (%d) must be <= snapshot_fatal_failures (%d)",
			hb.SnapshotWarnFailures, hb.SnapshotFatalFailures)
	}

	tr := &hb.Triggers
	if tr.PnlShiftPct <= 0 {
		return fmt.Errorf("heartbeat.triggers.pnl_shift_pct must be > 0")
	}
	if tr.ApproachingStopPct <= 0 || tr.ApproachingTpPct <= 0 {
		return fmt.Errorf("heartbeat.triggers approaching thresholds must be > 0")
	}
	if tr.LiquidationProximityPct <= 0 {
		return fmt.Errorf("heartbeat.triggers.liquidation_proximity_pct must be > 0")
	}
	if tr.FundingSpike <= 0 {
		return fmt.Errorf("heartbeat.triggers.funding_spike must be > 0")
	}
	if tr.VolatilitySpikePct <= 0 || tr.VolatilitySpikeWindowTicks < 2 {
		return fmt.Errorf("heartbeat.triggers volatility spike settings invalid")
	}
	if tr.TimeCeilingMinutes < 1 || tr.TimeCeilingMinutes > 10000 {
		return fmt.Errorf("heartbeat.triggers.time_ceiling_minutes must be in [1, 10000]")
	}
	if tr.TriggerCooldownSeconds <= 0 {
		return fmt.Errorf("heartbeat.triggers.trigger_cooldown_seconds must be > 0")
	}

	if hb.CircuitBreakers.LiqPct <= 0 {
		return fmt.Errorf("heartbeat.circuit_breakers.liq_pct must be > 0")
	}
	if hb.CircuitBreakers.LossPct >= 0 {
		return fmt.Errorf("heartbeat.circuit_breakers.loss_pct must be < 0")
	}
	if hb.CircuitBreakers.LiqPct >= hb.Triggers.LiquidationProximityPct {
		return fmt.Errorf("heartbeat.circuit_breakers.liq_pct (%.2f) must be < triggers.liquidation_proximity_pct (%.2f)",
			hb.CircuitBreakers.LiqPct, hb.Triggers.LiquidationProximityPct)
	}

	if hb.Advisor.MaxAdvisorCallsPerHour <= 0 {
		return fmt.Errorf("heartbeat.llm.max_advisor_calls_per_hour must be > 0")
	}
	if hb.Advisor.MaxTokens <= 0 {
		return fmt.Errorf("heartbeat.llm.max_tokens must be > 0")
	}

	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 0.3 {
		return fmt.Errorf("llm.temperature must be in [0, 0.3]")
	}

	if c.Risk.MaxEntriesPerDay <= 0 {
		return fmt.Errorf("risk.max_entries_per_day must be > 0")
	}

	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when dashboard is enabled")
	}

	return nil
}

// normalizeHeartbeat fills zero values with defaults.
func (c *Config) normalizeHeartbeat() {
	hb := &c.Heartbeat
	if hb.TickIntervalSeconds == 0 {
		hb.TickIntervalSeconds = defaultTickIntervalSeconds
	}
	if hb.SupervisorIntervalSeconds == 0 {
		hb.SupervisorIntervalSeconds = defaultSupervisorIntervalSeconds
	}
	if hb.RollingBufferSize == 0 {
		hb.RollingBufferSize = defaultRollingBufferSize
	}
	if hb.SnapshotWarnFailures == 0 {
		hb.SnapshotWarnFailures = defaultSnapshotWarnFailures
	}
	if hb.SnapshotFatalFailures == 0 {
		hb.SnapshotFatalFailures = defaultSnapshotFatalFailures
	}

	tr := &hb.Triggers
	if tr.PnlShiftPct == 0 {
		tr.PnlShiftPct = defaultPnlShiftPct
	}
	if tr.ApproachingStopPct == 0 {
		tr.ApproachingStopPct = defaultApproachingStopPct
	}
	if tr.ApproachingTpPct == 0 {
		tr.ApproachingTpPct = defaultApproachingTpPct
	}
	if tr.LiquidationProximityPct == 0 {
		tr.LiquidationProximityPct = defaultLiquidationProximity
	}
	if tr.FundingSpike == 0 {
		tr.FundingSpike = defaultFundingSpike
	}
	if tr.VolatilitySpikePct == 0 {
		tr.VolatilitySpikePct = defaultVolatilitySpikePct
	}
	if tr.VolatilitySpikeWindowTicks == 0 {
		tr.VolatilitySpikeWindowTicks = defaultVolatilitySpikeWindow
	}
	if tr.TimeCeilingMinutes == 0 {
		tr.TimeCeilingMinutes = defaultTimeCeilingMinutes
	}
	if tr.TriggerCooldownSeconds == 0 {
		tr.TriggerCooldownSeconds = defaultTriggerCooldownSeconds
	}

	if hb.CircuitBreakers.LiqPct == 0 {
		hb.CircuitBreakers.LiqPct = defaultBreakerLiqPct
	}
	if hb.CircuitBreakers.LossPct == 0 {
		hb.CircuitBreakers.LossPct = defaultBreakerLossPct
	}

	if hb.Advisor.MaxAdvisorCallsPerHour == 0 {
		hb.Advisor.MaxAdvisorCallsPerHour = defaultMaxAdvisorCallsPerHour
	}
	if hb.Advisor.MaxTokens == 0 {
		hb.Advisor.MaxTokens = defaultLLMMaxTokens
	}

	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = defaultLLMTemperature
	}
	if c.Risk.MaxEntriesPerDay == 0 {
		c.Risk.MaxEntriesPerDay = defaultMaxEntriesPerDay
	}
}

// HeartbeatEnabled reports whether the heartbeat loop should run (default true).
func (c *Config) HeartbeatEnabled() bool {
	return c.Heartbeat.Enabled == nil || *c.Heartbeat.Enabled
}

// NotifyEnabled reports whether notifications are on (default true).
func (c *Config) NotifyEnabled() bool {
	return c.Heartbeat.Notify == nil || *c.Heartbeat.Notify
}

// IsPaperTrading returns true if the daemon is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// TickInterval returns the per-symbol poll interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Heartbeat.TickIntervalSeconds) * time.Second
}

// SupervisorInterval returns the reconcile interval.
func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.Heartbeat.SupervisorIntervalSeconds) * time.Second
}
