package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// PublicKeyLength is the size of an uncompressed secp256k1 point without the 0x04 prefix.
const PublicKeyLength = 64

// Op is the kind of an omniverse transaction. Values are part of the signed encoding.
type Op uint8

const (
	OpTransfer Op = 0
	OpMint     Op = 1
	OpBurn     Op = 2
	OpDeposit  Op = 3
	OpWithdraw Op = 4
)

func (op Op) String() string {
	switch op {
	case OpTransfer:
		return "transfer"
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Valid reports whether op is one of the known operations.
func (op Op) Valid() bool {
	return op <= OpWithdraw
}

// ParseOp accepts either the lower-case name or the numeric code.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transfer", "0":
		return OpTransfer, nil
	case "mint", "1":
		return OpMint, nil
	case "burn", "2":
		return OpBurn, nil
	case "deposit", "3":
		return OpDeposit, nil
	case "withdraw", "4":
		return OpWithdraw, nil
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// PublicKey identifies an omniverse account independently of any chain account.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBytes copies b into a PublicKey; b must be exactly 64 bytes.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key length %d, want %d", len(b), PublicKeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// HexToPublicKey parses a 0x-prefixed (or bare) hex public key.
func HexToPublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	return PublicKeyFromBytes(b)
}

func (pk PublicKey) Bytes() []byte { return pk[:] }

func (pk PublicKey) Hex() string { return hexutil.Encode(pk[:]) }

func (pk PublicKey) String() string { return pk.Hex() }

func (pk PublicKey) IsZero() bool { return pk == PublicKey{} }

// Short is used in log lines.
func (pk PublicKey) Short() string {
	return hex.EncodeToString(pk[:4])
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.Hex()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := HexToPublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// OmniverseTx is a signed, chain-agnostic instruction. It is never mutated after signing.
type OmniverseTx struct {
	Nonce     uint64         `json:"nonce"`
	ChainID   uint32         `json:"chain_id"`
	Initiator common.Address `json:"initiator"`
	From      PublicKey      `json:"from"`
	Op        Op             `json:"op"`
	Data      hexutil.Bytes  `json:"data"`
	Amount    *uint256.Int   `json:"amount"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Recipient decodes Data as the public key of the credited account.
func (tx *OmniverseTx) Recipient() (PublicKey, error) {
	return PublicKeyFromBytes(tx.Data)
}

// Copy returns a deep copy so queued and historical transactions never alias caller memory.
func (tx *OmniverseTx) Copy() OmniverseTx {
	cp := *tx
	cp.Data = bytes.Clone(tx.Data)
	cp.Signature = bytes.Clone(tx.Signature)
	if tx.Amount != nil {
		cp.Amount = new(uint256.Int).Set(tx.Amount)
	}
	return cp
}
