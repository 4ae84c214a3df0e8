package store

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mezonai/omniverse/types"
)

// Declare database key prefix for objects
const (
	PrefixAccount = "account:"
	PrefixQueue   = "queue:"
	PrefixDeposit = "deposit:"
	PrefixNative  = "native:"
	PrefixMeta    = "meta:"

	MetaKeyState = PrefixMeta + "state"
)

func accountKey(pk types.PublicKey) []byte {
	return append([]byte(PrefixAccount), pk[:]...)
}

func nativeKey(addr common.Address) []byte {
	return append([]byte(PrefixNative), addr[:]...)
}

// queue and deposit keys carry big-endian numbers so prefix iteration follows seq/index order
func queueKey(seq uint64) []byte {
	return uint64Key(PrefixQueue, seq)
}

func depositKey(index uint64) []byte {
	return uint64Key(PrefixDeposit, index)
}

func uint64Key(prefix string, n uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], n)
	return key
}
