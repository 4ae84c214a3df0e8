// Package codec builds the canonical byte form of an omniverse transaction.
//
// Layout (all integers big-endian, fixed width):
//
//	nonce(16) | chainId(4) | initiator(20) | from(64) | op(1) | data(var) | amount(16)
//
// Only data is variable and it sits between two fixed-width fields, so the
// encoding is injective over the transaction domain.
package codec

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/types"
)

const (
	NonceSize  = 16
	ChainSize  = 4
	AmountSize = 16

	fixedSize = NonceSize + ChainSize + common.AddressLength + types.PublicKeyLength + 1 + AmountSize
)

var (
	ErrNilAmount      = errors.New("amount is nil")
	ErrAmountOverflow = errors.New("amount does not fit in 128 bits")
)

// Encode returns the signing payload of tx. The signature field is not part of it.
func Encode(tx *types.OmniverseTx) ([]byte, error) {
	if tx.Amount == nil {
		return nil, ErrNilAmount
	}
	if tx.Amount.BitLen() > AmountSize*8 {
		return nil, ErrAmountOverflow
	}

	buf := make([]byte, 0, fixedSize+len(tx.Data))

	var nonce [NonceSize]byte
	binary.BigEndian.PutUint64(nonce[NonceSize-8:], tx.Nonce)
	buf = append(buf, nonce[:]...)

	buf = binary.BigEndian.AppendUint32(buf, tx.ChainID)
	buf = append(buf, tx.Initiator.Bytes()...)
	buf = append(buf, tx.From.Bytes()...)
	buf = append(buf, byte(tx.Op))
	buf = append(buf, tx.Data...)

	amount := tx.Amount.Bytes32()
	buf = append(buf, amount[32-AmountSize:]...)
	return buf, nil
}

// Digest is keccak256(Encode(tx)); it is what the sender signs.
func Digest(tx *types.OmniverseTx) (common.Hash, error) {
	raw, err := Encode(tx)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(raw), nil
}

// DepositRequestDigest is what a receiver signs to move its native balance into
// the deposit request at index:
//
//	keccak256(receiver(64) | amount(16) | index(16))
//
// Binding the index makes a signature valid for exactly one request.
func DepositRequestDigest(receiver types.PublicKey, amount *uint256.Int, index uint64) (common.Hash, error) {
	if amount == nil {
		return common.Hash{}, ErrNilAmount
	}
	if amount.BitLen() > AmountSize*8 {
		return common.Hash{}, ErrAmountOverflow
	}

	buf := make([]byte, 0, types.PublicKeyLength+AmountSize+NonceSize)
	buf = append(buf, receiver.Bytes()...)
	raw := amount.Bytes32()
	buf = append(buf, raw[32-AmountSize:]...)

	var idx [NonceSize]byte
	binary.BigEndian.PutUint64(idx[NonceSize-8:], index)
	buf = append(buf, idx[:]...)
	return crypto.Keccak256Hash(buf), nil
}
