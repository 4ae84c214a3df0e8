package config

import (
	"time"

	"github.com/mezonai/omniverse/store"
)

// NodeSection describes the token instance this node runs
type NodeSection struct {
	ChainID         uint32         `yaml:"chain_id"`
	ContractAddress string         `yaml:"contract_address"`
	OwnerPubKey     string         `yaml:"owner_pubkey"`
	CommitteePubKey string         `yaml:"committee_pubkey"`
	CoolingDown     uint64         `yaml:"cooling_down"`
	Members         []MemberConfig `yaml:"members"`
}

// MemberConfig is a peer token instance on another chain
type MemberConfig struct {
	ChainID uint32 `yaml:"chain_id"`
	Address string `yaml:"address"`
}

type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// RateLimitPerMinute caps mutating calls per caller; 0 disables the limit
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type TriggerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// NodeConfig is the top-level structure of node.yml
type NodeConfig struct {
	Node    NodeSection       `yaml:"node"`
	Storage store.StoreConfig `yaml:"storage"`
	RPC     RPCConfig         `yaml:"rpc"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Trigger TriggerConfig     `yaml:"trigger"`
}
