package cmd

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/signer"
)

var (
	signDepositKey    signOptions
	signDepositAmount string
	signDepositIndex  uint64
)

// depositRequestOutput has the shape of the bridge.requestdeposit params
type depositRequestOutput struct {
	Receiver  string `json:"receiver"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

var signDepositCmd = &cobra.Command{
	Use:   "sign-deposit",
	Short: "Sign a deposit request for the key's own native balance",
	Long: `Sign a deposit request moving native balance back into the omniverse ledger.
--index must be the next request index, the count returned by bridge.dealingindex;
the signature is only valid for that index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := signDepositKey.loadKey()
		if err != nil {
			return err
		}
		out, err := buildDepositRequest(signDepositAmount, signDepositIndex, priv)
		if err != nil {
			return err
		}
		body, err := jsonx.MarshalIndent(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signDepositCmd)
	f := signDepositCmd.Flags()
	f.StringVar(&signDepositKey.Key, "key", "", "Hex private key of the receiver")
	f.StringVar(&signDepositKey.KeyFile, "key-file", "", "File holding the hex private key")
	f.StringVar(&signDepositAmount, "amount", "0", "Amount, decimal")
	f.Uint64Var(&signDepositIndex, "index", 0, "Index the request will get")
	signDepositCmd.MarkFlagsMutuallyExclusive("key", "key-file")
}

func buildDepositRequest(amountStr string, index uint64, priv *ecdsa.PrivateKey) (*depositRequestOutput, error) {
	amount, err := uint256.FromDecimal(amountStr)
	if err != nil {
		return nil, fmt.Errorf("--amount: %w", err)
	}
	sig, err := signer.SignDepositRequest(amount, index, priv)
	if err != nil {
		return nil, err
	}
	return &depositRequestOutput{
		Receiver:  signer.PublicKeyOf(priv).Hex(),
		Amount:    amount.Dec(),
		Signature: hexutil.Encode(sig),
	}, nil
}
