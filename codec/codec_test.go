package codec

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/omniverse/types"
)

// public key of the secp256k1 private key 0x01
const generatorKey = "0x79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"

func sampleTx(t *testing.T) *types.OmniverseTx {
	t.Helper()
	from, err := types.HexToPublicKey(generatorKey)
	require.NoError(t, err)
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	return &types.OmniverseTx{
		Nonce:     5,
		ChainID:   1,
		Initiator: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		From:      from,
		Op:        types.OpMint,
		Data:      data,
		Amount:    uint256.NewInt(1_000_000_000_000_000_000),
	}
}

func TestEncodeLayout(t *testing.T) {
	tx := sampleTx(t)
	raw, err := Encode(tx)
	require.NoError(t, err)
	require.Len(t, raw, 16+4+20+64+1+64+16)

	off := 0
	field := func(n int) []byte {
		b := raw[off : off+n]
		off += n
		return b
	}
	assert.Equal(t, append(make([]byte, 15), 5), field(NonceSize))
	assert.Equal(t, []byte{0, 0, 0, 1}, field(ChainSize))
	assert.Equal(t, tx.Initiator.Bytes(), field(common.AddressLength))
	assert.Equal(t, tx.From.Bytes(), field(types.PublicKeyLength))
	assert.Equal(t, []byte{byte(types.OpMint)}, field(1))
	assert.Equal(t, []byte(tx.Data), field(len(tx.Data)))

	amount := field(AmountSize)
	assert.Equal(t, uint64(1_000_000_000_000_000_000), new(uint256.Int).SetBytes(amount).Uint64())
	assert.Equal(t, len(raw), off)
}

func TestEncodeIgnoresSignature(t *testing.T) {
	tx := sampleTx(t)
	a, err := Encode(tx)
	require.NoError(t, err)
	tx.Signature = bytes.Repeat([]byte{0xff}, 65)
	b, err := Encode(tx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDigestVector(t *testing.T) {
	digest, err := Digest(sampleTx(t))
	require.NoError(t, err)
	assert.Equal(t, "0x2faaf315e883998182f000de5c91e7b33fe6eacf5b73ae9a7921886ad8cf6718", digest.Hex())
}

func TestDigestChangesWithEveryField(t *testing.T) {
	base, err := Digest(sampleTx(t))
	require.NoError(t, err)

	mutations := map[string]func(tx *types.OmniverseTx){
		"nonce":     func(tx *types.OmniverseTx) { tx.Nonce++ },
		"chain":     func(tx *types.OmniverseTx) { tx.ChainID++ },
		"initiator": func(tx *types.OmniverseTx) { tx.Initiator[0] ^= 1 },
		"from":      func(tx *types.OmniverseTx) { tx.From[63] ^= 1 },
		"op":        func(tx *types.OmniverseTx) { tx.Op = types.OpTransfer },
		"data":      func(tx *types.OmniverseTx) { tx.Data = tx.Data[:63] },
		"amount":    func(tx *types.OmniverseTx) { tx.Amount = uint256.NewInt(1) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tx := sampleTx(t)
			mutate(tx)
			got, err := Digest(tx)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestEncodeAmountBounds(t *testing.T) {
	tx := sampleTx(t)

	max128 := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	tx.Amount = max128
	raw, err := Encode(tx)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xff}, AmountSize), raw[len(raw)-AmountSize:])

	tx.Amount = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	_, err = Encode(tx)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	tx.Amount = nil
	_, err = Digest(tx)
	assert.ErrorIs(t, err, ErrNilAmount)
}

func TestDepositRequestDigest(t *testing.T) {
	receiver, err := types.HexToPublicKey(generatorKey)
	require.NoError(t, err)

	digest, err := DepositRequestDigest(receiver, uint256.NewInt(7), 2)
	require.NoError(t, err)

	buf := append([]byte(nil), receiver.Bytes()...)
	buf = append(buf, append(make([]byte, AmountSize-1), 7)...)
	buf = append(buf, append(make([]byte, NonceSize-1), 2)...)
	assert.Equal(t, crypto.Keccak256Hash(buf), digest)

	other, err := DepositRequestDigest(receiver, uint256.NewInt(7), 3)
	require.NoError(t, err)
	assert.NotEqual(t, digest, other)
	other, err = DepositRequestDigest(receiver, uint256.NewInt(8), 2)
	require.NoError(t, err)
	assert.NotEqual(t, digest, other)

	_, err = DepositRequestDigest(receiver, nil, 0)
	assert.ErrorIs(t, err, ErrNilAmount)
	_, err = DepositRequestDigest(receiver, new(uint256.Int).Lsh(uint256.NewInt(1), 128), 0)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}
