package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/signer"
)

var keygenOut string

type keyInfo struct {
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 key pair and print its omniverse public key and address",
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := signer.GenerateKey()
		if err != nil {
			return err
		}
		info := describeKey(priv, keygenOut == "")
		if keygenOut != "" {
			if err := writeKeyFile(keygenOut, priv); err != nil {
				return err
			}
			logx.Info("CMD", fmt.Sprintf("Private key written | path=%s | address=%s", keygenOut, info.Address))
		}
		out, err := jsonx.MarshalIndent(info)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "Write the private key to this file instead of printing it")
}

func describeKey(priv *ecdsa.PrivateKey, withPrivate bool) keyInfo {
	pk := signer.PublicKeyOf(priv)
	info := keyInfo{
		PublicKey: pk.Hex(),
		Address:   signer.AddressOf(pk).Hex(),
	}
	if withPrivate {
		info.PrivateKey = hexutil.Encode(crypto.FromECDSA(priv))
	}
	return info
}

func writeKeyFile(path string, priv *ecdsa.PrivateKey) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(hexutil.Encode(crypto.FromECDSA(priv))+"\n"), 0o600)
}
