// ABOUTME: Configuration loading and parsing for coven-hcs10
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-hcs10/internal/hcs"
)

// Config represents the complete coven-hcs10 configuration
type Config struct {
	Network   NetworkConfig   `yaml:"network" toml:"network"`
	Operator  OperatorConfig  `yaml:"operator" toml:"operator"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor" toml:"monitor"`
	Messaging MessagingConfig `yaml:"messaging" toml:"messaging"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// NetworkConfig selects the Hedera network and its read endpoints
type NetworkConfig struct {
	Name              string  `yaml:"name" toml:"name"`
	MirrorURL         string  `yaml:"mirror_url" toml:"mirror_url"`
	CDNURL            string  `yaml:"cdn_url" toml:"cdn_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// OperatorConfig holds the paying account used for ledger writes
type OperatorConfig struct {
	AccountID  string `yaml:"account_id" toml:"account_id"`
	PrivateKey string `yaml:"private_key" toml:"private_key"`
}

// AgentConfig describes the registered agent identity
type AgentConfig struct {
	Name            string `yaml:"name" toml:"name"`
	AccountID       string `yaml:"account_id" toml:"account_id"`
	InboundTopicID  string `yaml:"inbound_topic_id" toml:"inbound_topic_id"`
	OutboundTopicID string `yaml:"outbound_topic_id" toml:"outbound_topic_id"`
	ProfileTopicID  string `yaml:"profile_topic_id" toml:"profile_topic_id"`
	PrivateKey      string `yaml:"private_key" toml:"private_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
	// SealingSecret enables storing agent private keys in the database.
	SealingSecret string `yaml:"sealing_secret" toml:"sealing_secret"`
}

// FeeConfig is one configured connection fee
type FeeConfig struct {
	Amount    float64 `yaml:"amount" toml:"amount"`
	TokenID   string  `yaml:"token_id" toml:"token_id"`
	Collector string  `yaml:"collector" toml:"collector"`
}

// MonitorConfig holds the accept policy and timing of the monitor loop
type MonitorConfig struct {
	Duration time.Duration `yaml:"-" toml:"-"`
	Interval time.Duration `yaml:"-" toml:"-"`

	AcceptAll        bool        `yaml:"accept_all" toml:"accept_all"`
	TargetAccountID  string      `yaml:"target_account_id" toml:"target_account_id"`
	DefaultCollector string      `yaml:"default_collector" toml:"default_collector"`
	HbarFees         []FeeConfig `yaml:"hbar_fees" toml:"hbar_fees"`
	TokenFees        []FeeConfig `yaml:"token_fees" toml:"token_fees"`
	ExemptAccountIDs []string    `yaml:"exempt_account_ids" toml:"exempt_account_ids"`
	Memo             string      `yaml:"memo" toml:"memo"`

	// Raw string values for unmarshaling
	DurationRaw string `yaml:"duration" toml:"duration"`
	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// MessagingConfig holds reply polling settings
type MessagingConfig struct {
	ReplyAttempts int           `yaml:"reply_attempts" toml:"reply_attempts"`
	ReplyInterval time.Duration `yaml:"-" toml:"-"`

	ReplyIntervalRaw string `yaml:"reply_interval" toml:"reply_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default values applied by Load.
const (
	DefaultNetwork         = "testnet"
	DefaultCDNURL          = "https://kiloscribe.com"
	DefaultMonitorDuration = 120 * time.Second
	DefaultMonitorInterval = 3 * time.Second
	DefaultReplyAttempts   = 30
	DefaultReplyInterval   = 4 * time.Second
)

var mirrorURLs = map[string]string{
	"mainnet":    "https://mainnet-public.mirrornode.hedera.com",
	"testnet":    "https://testnet.mirrornode.hedera.com",
	"previewnet": "https://previewnet.mirrornode.hedera.com",
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config file location: $COVEN_HCS10_CONFIG if set,
// otherwise coven/hcs10.yaml under the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv("COVEN_HCS10_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "hcs10.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "coven", "hcs10.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Network.Name == "" {
		c.Network.Name = DefaultNetwork
	}
	c.Network.Name = strings.ToLower(c.Network.Name)
	if c.Network.MirrorURL == "" {
		c.Network.MirrorURL = mirrorURLs[c.Network.Name]
	}
	if c.Network.CDNURL == "" {
		c.Network.CDNURL = DefaultCDNURL
	}
	if c.Agent.Name == "" {
		c.Agent.Name = c.Agent.AccountID
	}
	if c.Operator.AccountID == "" {
		c.Operator.AccountID = c.Agent.AccountID
	}
	if c.Operator.PrivateKey == "" {
		c.Operator.PrivateKey = c.Agent.PrivateKey
	}
	if c.Monitor.Duration == 0 {
		c.Monitor.Duration = DefaultMonitorDuration
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultMonitorInterval
	}
	if c.Messaging.ReplyAttempts == 0 {
		c.Messaging.ReplyAttempts = DefaultReplyAttempts
	}
	if c.Messaging.ReplyInterval == 0 {
		c.Messaging.ReplyInterval = DefaultReplyInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if _, ok := mirrorURLs[c.Network.Name]; !ok {
		return fmt.Errorf("network.name must be mainnet, testnet or previewnet, got %q", c.Network.Name)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !hcs.IsAccountID(c.Agent.AccountID) {
		return fmt.Errorf("agent.account_id is required and must look like 0.0.N")
	}
	if !hcs.IsTopicID(c.Agent.InboundTopicID) {
		return fmt.Errorf("agent.inbound_topic_id is required and must look like 0.0.N")
	}
	if c.Agent.OutboundTopicID != "" && !hcs.IsTopicID(c.Agent.OutboundTopicID) {
		return fmt.Errorf("agent.outbound_topic_id %q is not a topic id", c.Agent.OutboundTopicID)
	}
	if c.Monitor.TargetAccountID != "" && !hcs.IsAccountID(c.Monitor.TargetAccountID) {
		return fmt.Errorf("monitor.target_account_id %q is not an account id", c.Monitor.TargetAccountID)
	}
	for i, f := range c.Monitor.HbarFees {
		if f.Amount <= 0 {
			return fmt.Errorf("monitor.hbar_fees[%d].amount must be positive", i)
		}
	}
	for i, f := range c.Monitor.TokenFees {
		if f.Amount <= 0 || f.TokenID == "" {
			return fmt.Errorf("monitor.token_fees[%d] needs a positive amount and token_id", i)
		}
	}
	if c.Messaging.ReplyAttempts < 0 {
		return fmt.Errorf("messaging.reply_attempts must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// RegisteredAgent returns the configured agent identity.
func (c *Config) RegisteredAgent() hcs.RegisteredAgent {
	return hcs.RegisteredAgent{
		Name:            c.Agent.Name,
		AccountID:       c.Agent.AccountID,
		InboundTopicID:  c.Agent.InboundTopicID,
		OutboundTopicID: c.Agent.OutboundTopicID,
		ProfileTopicID:  c.Agent.ProfileTopicID,
		PrivateKey:      c.Agent.PrivateKey,
	}
}

// Fees converts the configured fee lists.
func (m MonitorConfig) Fees() ([]hcs.HbarFee, []hcs.TokenFee) {
	var hbar []hcs.HbarFee
	for _, f := range m.HbarFees {
		hbar = append(hbar, hcs.HbarFee{Amount: f.Amount, CollectorAccount: f.Collector})
	}
	var tokens []hcs.TokenFee
	for _, f := range m.TokenFees {
		tokens = append(tokens, hcs.TokenFee{Amount: f.Amount, TokenID: f.TokenID, CollectorAccount: f.Collector})
	}
	return hbar, tokens
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Monitor.DurationRaw != "" {
		cfg.Monitor.Duration, err = time.ParseDuration(cfg.Monitor.DurationRaw)
		if err != nil {
			return fmt.Errorf("parsing monitor.duration %q: %w", cfg.Monitor.DurationRaw, err)
		}
	}

	if cfg.Monitor.IntervalRaw != "" {
		cfg.Monitor.Interval, err = time.ParseDuration(cfg.Monitor.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing monitor.interval %q: %w", cfg.Monitor.IntervalRaw, err)
		}
	}

	if cfg.Messaging.ReplyIntervalRaw != "" {
		cfg.Messaging.ReplyInterval, err = time.ParseDuration(cfg.Messaging.ReplyIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing messaging.reply_interval %q: %w", cfg.Messaging.ReplyIntervalRaw, err)
		}
	}

	return nil
}
