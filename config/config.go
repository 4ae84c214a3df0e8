package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/omniverse/engine"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/store"
	"github.com/mezonai/omniverse/types"
)

// LoadNodeConfig reads and parses node.yml, applies defaults and validates the result
func LoadNodeConfig(path string) (*NodeConfig, error) {
	logx.Info("CONFIG", fmt.Sprintf("Loading node config | path=%s", path))
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg NodeConfig
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded node config | chain_id=%d | members=%d | storage=%s | cooling_down=%d",
		cfg.Node.ChainID, len(cfg.Node.Members), cfg.Storage.Type, cfg.Node.CoolingDown))
	return &cfg, nil
}

// WriteNodeConfig writes cfg as yaml to path, refusing to overwrite unless force is set
func WriteNodeConfig(path string, cfg *NodeConfig, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// Default returns a config for a single local instance storing state under ./data.
// Keys and the contract address are left empty.
func Default() *NodeConfig {
	cfg := &NodeConfig{
		Storage: store.StoreConfig{Type: store.LevelDBStoreType, Directory: DefaultDataDir},
	}
	cfg.ApplyDefaults()
	return cfg
}

func (c *NodeConfig) ApplyDefaults() {
	if c.Storage.Type == "" {
		c.Storage.Type = store.MemoryStoreType
	}
	if (c.Storage.Type == store.LevelDBStoreType || c.Storage.Type == store.BoltStoreType) && c.Storage.Directory == "" {
		c.Storage.Directory = DefaultDataDir
	}
	if c.RPC.ListenAddr == "" {
		c.RPC.ListenAddr = DefaultRPCListenAddr
	}
	if c.RPC.RateLimitPerMinute == 0 {
		c.RPC.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsListenAddr
	}
	if c.Trigger.Interval == 0 {
		c.Trigger.Interval = DefaultTriggerInterval
	}
}

func (c *NodeConfig) Validate() error {
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerMinute < 0 {
		return fmt.Errorf("rpc.rate_limit_per_minute must not be negative")
	}
	if c.Trigger.Interval < 0 {
		return fmt.Errorf("trigger.interval must not be negative")
	}
	return c.Storage.Validate()
}

// EngineConfig converts the node section into the engine's typed configuration
func (c *NodeConfig) EngineConfig() (engine.Config, error) {
	n := c.Node
	if !common.IsHexAddress(n.ContractAddress) {
		return engine.Config{}, fmt.Errorf("node.contract_address %q is not an address", n.ContractAddress)
	}
	owner, err := types.HexToPublicKey(n.OwnerPubKey)
	if err != nil {
		return engine.Config{}, fmt.Errorf("node.owner_pubkey: %w", err)
	}
	committee, err := types.HexToPublicKey(n.CommitteePubKey)
	if err != nil {
		return engine.Config{}, fmt.Errorf("node.committee_pubkey: %w", err)
	}
	members, err := c.EngineMembers()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		ChainID:   n.ChainID,
		Address:   common.HexToAddress(n.ContractAddress),
		Owner:     owner,
		Committee: committee,
		Cooldown:  n.CoolingDown,
		Members:   members,
	}, nil
}

// EngineMembers parses the member list; chain ids must be unique
func (c *NodeConfig) EngineMembers() ([]types.Member, error) {
	seen := make(map[uint32]bool, len(c.Node.Members))
	out := make([]types.Member, 0, len(c.Node.Members))
	for i, m := range c.Node.Members {
		if !common.IsHexAddress(m.Address) {
			return nil, fmt.Errorf("node.members[%d].address %q is not an address", i, m.Address)
		}
		if seen[m.ChainID] {
			return nil, fmt.Errorf("node.members[%d]: duplicate chain id %d", i, m.ChainID)
		}
		seen[m.ChainID] = true
		out = append(out, types.Member{ChainID: m.ChainID, Address: common.HexToAddress(m.Address)})
	}
	return out, nil
}

// LoadPrivateKeyFile loads a secp256k1 private key from a file (expects hex encoding)
func LoadPrivateKeyFile(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return signer.LoadPrivateKey(strings.TrimSpace(string(data)))
}
