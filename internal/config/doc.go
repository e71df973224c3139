// Package config handles configuration loading for coven-hcs10.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. The file extension picks the format: .toml is TOML, anything
// else is YAML.
//
// # Configuration File
//
// Default location:
//
//  1. Path from COVEN_HCS10_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/hcs10.yaml (falling back to ~/.config)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agent:
//	  private_key: "${HCS10_AGENT_KEY}"
//
// # Configuration Sections
//
//	network:
//	  name: "testnet"                 # mainnet, testnet, previewnet
//	  mirror_url: ""                  # defaults per network
//	  cdn_url: "https://kiloscribe.com"
//	  requests_per_second: 10
//	  burst: 5
//
//	operator:                         # defaults to the agent credentials
//	  account_id: "0.0.1001"
//	  private_key: "${HEDERA_OPERATOR_KEY}"
//
//	agent:
//	  name: "alice"
//	  account_id: "0.0.1001"
//	  inbound_topic_id: "0.0.2001"
//	  outbound_topic_id: "0.0.2002"
//
//	database:
//	  path: "~/.local/share/coven/hcs10.db"
//	  sealing_secret: "${COVEN_HCS10_SEALING_SECRET}"
//
//	monitor:
//	  duration: "120s"
//	  interval: "3s"
//	  accept_all: false
//	  target_account_id: ""
//	  hbar_fees:
//	    - amount: 1.5
//	      collector: "0.0.1001"
//
//	messaging:
//	  reply_attempts: 30
//	  reply_interval: "4s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
