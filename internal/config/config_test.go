// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML and TOML parsing, env expansion, defaults and validation failures

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
agent:
  account_id: "0.0.1001"
  inbound_topic_id: "0.0.2001"
database:
  path: "/tmp/hcs10.db"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "hcs10.yaml", `
network:
  name: mainnet
agent:
  name: alice
  account_id: "0.0.1001"
  inbound_topic_id: "0.0.2001"
  outbound_topic_id: "0.0.2002"
  private_key: "302e"
database:
  path: "/tmp/hcs10.db"
monitor:
  duration: "30s"
  interval: "1s"
  accept_all: true
  hbar_fees:
    - amount: 1.5
      collector: "0.0.9"
  token_fees:
    - amount: 10
      token_id: "0.0.777"
messaging:
  reply_attempts: 5
  reply_interval: "2s"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Network.MirrorURL != "https://mainnet-public.mirrornode.hedera.com" {
		t.Errorf("mirror url = %q", cfg.Network.MirrorURL)
	}
	if cfg.Monitor.Duration != 30*time.Second {
		t.Errorf("monitor duration = %v, want 30s", cfg.Monitor.Duration)
	}
	if cfg.Monitor.Interval != time.Second {
		t.Errorf("monitor interval = %v, want 1s", cfg.Monitor.Interval)
	}
	if !cfg.Monitor.AcceptAll {
		t.Error("expected accept_all")
	}
	if cfg.Messaging.ReplyAttempts != 5 || cfg.Messaging.ReplyInterval != 2*time.Second {
		t.Errorf("messaging = %+v", cfg.Messaging)
	}
	if cfg.Operator.AccountID != "0.0.1001" || cfg.Operator.PrivateKey != "302e" {
		t.Errorf("operator should default to agent credentials, got %+v", cfg.Operator)
	}

	hbar, tokens := cfg.Monitor.Fees()
	if len(hbar) != 1 || hbar[0].Amount != 1.5 || hbar[0].CollectorAccount != "0.0.9" {
		t.Errorf("hbar fees = %+v", hbar)
	}
	if len(tokens) != 1 || tokens[0].TokenID != "0.0.777" {
		t.Errorf("token fees = %+v", tokens)
	}

	agent := cfg.RegisteredAgent()
	if agent.Name != "alice" || agent.OutboundTopicID != "0.0.2002" {
		t.Errorf("agent = %+v", agent)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "hcs10.toml", `
[agent]
account_id = "0.0.1001"
inbound_topic_id = "0.0.2001"

[database]
path = "/tmp/hcs10.db"

[monitor]
interval = "5s"
target_account_id = "0.0.3003"

[[monitor.hbar_fees]]
amount = 2.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Monitor.Interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.TargetAccountID != "0.0.3003" {
		t.Errorf("target = %q", cfg.Monitor.TargetAccountID)
	}
	if len(cfg.Monitor.HbarFees) != 1 {
		t.Errorf("hbar fees = %+v", cfg.Monitor.HbarFees)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "hcs10.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Network.Name != "testnet" {
		t.Errorf("network = %q, want testnet", cfg.Network.Name)
	}
	if cfg.Network.MirrorURL != "https://testnet.mirrornode.hedera.com" {
		t.Errorf("mirror url = %q", cfg.Network.MirrorURL)
	}
	if cfg.Network.CDNURL != DefaultCDNURL {
		t.Errorf("cdn url = %q", cfg.Network.CDNURL)
	}
	if cfg.Agent.Name != "0.0.1001" {
		t.Errorf("agent name should default to account id, got %q", cfg.Agent.Name)
	}
	if cfg.Monitor.Duration != DefaultMonitorDuration || cfg.Monitor.Interval != DefaultMonitorInterval {
		t.Errorf("monitor timing = %v/%v", cfg.Monitor.Duration, cfg.Monitor.Interval)
	}
	if cfg.Messaging.ReplyAttempts != DefaultReplyAttempts || cfg.Messaging.ReplyInterval != DefaultReplyInterval {
		t.Errorf("messaging = %+v", cfg.Messaging)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_HCS10_KEY", "secret-key")
	t.Setenv("TEST_HCS10_DB", "/tmp/from-env.db")

	cfg, err := Load(writeConfig(t, "hcs10.yaml", `
agent:
  account_id: "0.0.1001"
  inbound_topic_id: "0.0.2001"
  private_key: "${TEST_HCS10_KEY}"
database:
  path: "${TEST_HCS10_DB}"
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.PrivateKey != "secret-key" {
		t.Errorf("private key = %q", cfg.Agent.PrivateKey)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
}

func TestExpandEnvVarsUnset(t *testing.T) {
	got := expandEnvVars("key: ${TEST_HCS10_DEFINITELY_UNSET}")
	if got != "key: " {
		t.Errorf("expandEnvVars = %q", got)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing database path",
			content: `
agent:
  account_id: "0.0.1001"
  inbound_topic_id: "0.0.2001"
`,
			wantErr: "database.path",
		},
		{
			name: "bad account id",
			content: `
agent:
  account_id: "alice"
  inbound_topic_id: "0.0.2001"
database:
  path: "/tmp/x.db"
`,
			wantErr: "agent.account_id",
		},
		{
			name: "missing inbound topic",
			content: `
agent:
  account_id: "0.0.1001"
database:
  path: "/tmp/x.db"
`,
			wantErr: "agent.inbound_topic_id",
		},
		{
			name:    "unknown network",
			content: minimalYAML + "network:\n  name: devnet\n",
			wantErr: "network.name",
		},
		{
			name:    "negative fee",
			content: minimalYAML + "monitor:\n  hbar_fees:\n    - amount: -1\n",
			wantErr: "hbar_fees[0]",
		},
		{
			name:    "token fee without token",
			content: minimalYAML + "monitor:\n  token_fees:\n    - amount: 3\n",
			wantErr: "token_fees[0]",
		},
		{
			name:    "bad target",
			content: minimalYAML + "monitor:\n  target_account_id: bob\n",
			wantErr: "target_account_id",
		},
		{
			name:    "bad duration",
			content: minimalYAML + "monitor:\n  duration: forever\n",
			wantErr: "monitor.duration",
		},
		{
			name:    "bad log format",
			content: minimalYAML + "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "hcs10.yaml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COVEN_HCS10_CONFIG", "/etc/custom.yaml")
	if got := DefaultPath(); got != "/etc/custom.yaml" {
		t.Errorf("DefaultPath = %q", got)
	}

	t.Setenv("COVEN_HCS10_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "coven", "hcs10.yaml") {
		t.Errorf("DefaultPath = %q", got)
	}
}
