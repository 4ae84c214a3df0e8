package cmd

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/config"
	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

type signOptions struct {
	Key       string
	KeyFile   string
	Nonce     uint64
	ChainID   uint32
	Initiator string
	Op        string
	To        string
	Data      string
	Amount    string
}

type signedTxOutput struct {
	TxHash string            `json:"tx_hash"`
	Tx     types.OmniverseTx `json:"tx"`
}

var signOpts signOptions

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Build and sign an omniverse transaction",
	Long: `Build an omniverse transaction, sign it with a secp256k1 key and print it as JSON.
The tx object can be passed as is to omniverse.sendtransaction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv, err := signOpts.loadKey()
		if err != nil {
			return err
		}
		out, err := buildSignedTx(signOpts, priv)
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
	rootCmd.AddCommand(signCmd)
	f := signCmd.Flags()
	f.StringVar(&signOpts.Key, "key", "", "Hex private key")
	f.StringVar(&signOpts.KeyFile, "key-file", "", "File holding the hex private key")
	f.Uint64Var(&signOpts.Nonce, "nonce", 0, "Sender nonce (omniverse.gettransactioncount)")
	f.Uint32Var(&signOpts.ChainID, "chain-id", 0, "Target chain id")
	f.StringVar(&signOpts.Initiator, "initiator", "", "Contract address of the instance that will admit the tx")
	f.StringVar(&signOpts.Op, "op", "transfer", "transfer | mint | burn | deposit | withdraw")
	f.StringVar(&signOpts.To, "to", "", "Recipient public key (transfer, mint, deposit)")
	f.StringVar(&signOpts.Data, "data", "", "Raw hex payload, used when --to is empty")
	f.StringVar(&signOpts.Amount, "amount", "0", "Amount, decimal")
	_ = signCmd.MarkFlagRequired("initiator")
	signCmd.MarkFlagsMutuallyExclusive("key", "key-file")
	signCmd.MarkFlagsMutuallyExclusive("to", "data")
}

func (o signOptions) loadKey() (*ecdsa.PrivateKey, error) {
	switch {
	case o.Key != "":
		return signer.LoadPrivateKey(o.Key)
	case o.KeyFile != "":
		return config.LoadPrivateKeyFile(o.KeyFile)
	default:
		return nil, fmt.Errorf("one of --key or --key-file is required")
	}
}

func buildSignedTx(o signOptions, priv *ecdsa.PrivateKey) (*signedTxOutput, error) {
	op, err := types.ParseOp(o.Op)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(o.Initiator) {
		return nil, fmt.Errorf("--initiator %q is not an address", o.Initiator)
	}
	amount, err := uint256.FromDecimal(o.Amount)
	if err != nil {
		return nil, fmt.Errorf("--amount: %w", err)
	}

	var data []byte
	switch {
	case o.To != "":
		to, err := types.HexToPublicKey(o.To)
		if err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
		data = to.Bytes()
	case o.Data != "":
		if data, err = hexutil.Decode(o.Data); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
	}

	tx := types.OmniverseTx{
		Nonce:     o.Nonce,
		ChainID:   o.ChainID,
		Initiator: common.HexToAddress(o.Initiator),
		From:      signer.PublicKeyOf(priv),
		Op:        op,
		Data:      data,
		Amount:    amount,
	}
	if err := signer.SignTx(&tx, priv); err != nil {
		return nil, err
	}
	digest, err := codec.Digest(&tx)
	if err != nil {
		return nil, err
	}
	return &signedTxOutput{TxHash: digest.Hex(), Tx: tx}, nil
}
