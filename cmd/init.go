package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/config"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/store"
)

var (
	// Init command specific variables
	initOut         string
	initKeysDir     string
	initChainID     uint32
	initContract    string
	initCoolingDown uint64
	initStorage     string
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a node configuration with fresh owner and committee keys",
	Long: `Initialize a new omniverse node by:
- Generating owner and committee secp256k1 keys into the keys directory
- Writing a node configuration that names their public keys`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initializeNode()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initOut, "out", "config/node.yml", "Path of the configuration file to write")
	initCmd.Flags().StringVar(&initKeysDir, "keys-dir", "keys", "Directory to save the generated private keys")
	initCmd.Flags().Uint32Var(&initChainID, "chain-id", 0, "Local chain id")
	initCmd.Flags().StringVar(&initContract, "contract", "", "Contract address transactions must name as initiator")
	initCmd.Flags().Uint64Var(&initCoolingDown, "cooling-down", 2, "Cooldown in seconds before an admitted tx may execute")
	initCmd.Flags().StringVar(&initStorage, "storage", "leveldb", "Store backend: leveldb, bolt, memory, redis or postgres")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	_ = initCmd.MarkFlagRequired("contract")
}

func initializeNode() error {
	if !common.IsHexAddress(initContract) {
		return fmt.Errorf("--contract %q is not an address", initContract)
	}
	if err := os.MkdirAll(initKeysDir, 0o700); err != nil {
		return fmt.Errorf("create keys directory: %w", err)
	}
	if dir := filepath.Dir(initOut); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	pubKeys := make(map[string]string, 2)
	for _, role := range []string{"owner", "committee"} {
		priv, err := signer.GenerateKey()
		if err != nil {
			return err
		}
		path := filepath.Join(initKeysDir, role+".key")
		if err := writeKeyFile(path, priv); err != nil {
			return fmt.Errorf("%s key: %w", role, err)
		}
		info := describeKey(priv, false)
		pubKeys[role] = info.PublicKey
		logx.Info("INIT", fmt.Sprintf("Generated %s key | path=%s | address=%s", role, path, info.Address))
	}

	cfg := config.Default()
	cfg.Storage.Type = store.StoreType(initStorage)
	cfg.Node = config.NodeSection{
		ChainID:         initChainID,
		ContractAddress: common.HexToAddress(initContract).Hex(),
		OwnerPubKey:     pubKeys["owner"],
		CommitteePubKey: pubKeys["committee"],
		CoolingDown:     initCoolingDown,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.WriteNodeConfig(initOut, cfg, initForce); err != nil {
		return err
	}
	logx.Info("INIT", fmt.Sprintf("Node configuration written | path=%s | chain_id=%d | storage=%s", initOut, initChainID, cfg.Storage.Type))
	return nil
}
