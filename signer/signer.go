// Package signer authenticates omniverse transactions with secp256k1 recovery.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/types"
)

const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

// Verifier recovers the public key that produced sig over digest.
type Verifier interface {
	Recover(digest common.Hash, sig []byte) (types.PublicKey, error)
}

// Secp256k1Verifier accepts 65-byte r||s||v signatures with v in {0,1,27,28}.
type Secp256k1Verifier struct{}

func NewSecp256k1Verifier() *Secp256k1Verifier {
	return &Secp256k1Verifier{}
}

func (Secp256k1Verifier) Recover(digest common.Hash, sig []byte) (types.PublicKey, error) {
	if len(sig) != SignatureLength {
		return types.PublicKey{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	switch v := normalized[64]; v {
	case 0, 1:
	case 27, 28:
		normalized[64] = v - 27
	default:
		return types.PublicKey{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, v)
	}

	pub, err := crypto.Ecrecover(digest.Bytes(), normalized)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	// Ecrecover returns the 65-byte uncompressed form with the 0x04 prefix.
	return types.PublicKeyFromBytes(pub[1:])
}

// AddressOf derives the chain account bound to pk.
func AddressOf(pk types.PublicKey) common.Address {
	return common.BytesToAddress(crypto.Keccak256(pk[:])[12:])
}

// PublicKeyOf returns the 64-byte public key of priv.
func PublicKeyOf(priv *ecdsa.PrivateKey) types.PublicKey {
	var pk types.PublicKey
	copy(pk[:], crypto.FromECDSAPub(&priv.PublicKey)[1:])
	return pk
}

func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// LoadPrivateKey parses a hex secp256k1 private key, with or without 0x.
func LoadPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Sign signs digest and returns r||s||v with v in {27,28}, the form wallets produce.
func Sign(digest common.Hash, priv *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), priv)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// SignTx fills tx.Signature with priv's signature over the canonical digest.
func SignTx(tx *types.OmniverseTx, priv *ecdsa.PrivateKey) error {
	digest, err := codec.Digest(tx)
	if err != nil {
		return err
	}
	sig, err := Sign(digest, priv)
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// SignDepositRequest signs a deposit request for priv's own key at index.
func SignDepositRequest(amount *uint256.Int, index uint64, priv *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := codec.DepositRequestDigest(PublicKeyOf(priv), amount, index)
	if err != nil {
		return nil, err
	}
	return Sign(digest, priv)
}
