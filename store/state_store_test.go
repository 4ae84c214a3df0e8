package store

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/omniverse/db"
	"github.com/mezonai/omniverse/types"
)

func newMemStateStore(t *testing.T) *GenericStateStore {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	ss, err := NewGenericStateStore(provider)
	require.NoError(t, err)
	t.Cleanup(ss.MustClose)
	return ss
}

func testKey(b byte) types.PublicKey {
	var pk types.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	ss := newMemStateStore(t)

	alice, bob := testKey(0xaa), testKey(0xbb)
	tx := types.OmniverseTx{
		Nonce:     0,
		ChainID:   1,
		Initiator: common.HexToAddress("0x01"),
		From:      alice,
		Op:        types.OpTransfer,
		Data:      bob.Bytes(),
		Amount:    uint256.NewInt(3),
		Signature: []byte{1, 2, 3},
	}

	accA := types.NewAccount(alice)
	accA.Nonce = 1
	accA.Balance = uint256.NewInt(7)
	accA.History = []types.OmniverseTx{tx}
	accB := types.NewAccount(bob)
	accB.Malicious = true

	pending := tx.Copy()
	pending.Nonce = 1
	entries := []*types.QueueEntry{
		{Seq: 2, Sender: alice, Tx: pending, AdmittedAt: 40},
		{Seq: 256, Sender: bob, Tx: tx, AdmittedAt: 41},
	}
	addr := common.HexToAddress("0xabc")

	err := ss.Commit(&ChangeSet{
		Accounts: []*types.Account{accB, accA},
		QueuePut: entries,
		Deposits: []*types.DepositRequest{
			{Index: 1, Receiver: bob, Amount: uint256.NewInt(2)},
			{Index: 0, Receiver: alice, Amount: uint256.NewInt(1), Status: types.DepositApproved},
		},
		Native: map[common.Address]*uint256.Int{addr: uint256.NewInt(9)},
		Meta:   &Meta{DealingIndex: 1, NextQueueSeq: 257},
	})
	require.NoError(t, err)

	accounts, err := ss.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	// keys sort by public key bytes
	assert.Equal(t, alice, accounts[0].PublicKey)
	assert.Equal(t, uint64(1), accounts[0].Nonce)
	assert.Equal(t, "7", accounts[0].Balance.Dec())
	require.Len(t, accounts[0].History, 1)
	assert.Equal(t, tx.Data, accounts[0].History[0].Data)
	assert.Equal(t, "3", accounts[0].History[0].Amount.Dec())
	assert.True(t, accounts[1].Malicious)

	queue, err := ss.LoadQueue()
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, uint64(2), queue[0].Seq)
	assert.Equal(t, uint64(256), queue[1].Seq)
	assert.Equal(t, uint64(40), queue[0].AdmittedAt)

	requests, err := ss.LoadDepositRequests()
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, uint64(0), requests[0].Index)
	assert.Equal(t, types.DepositApproved, requests[0].Status)
	assert.Equal(t, types.DepositPending, requests[1].Status)

	native, err := ss.LoadNativeBalances()
	require.NoError(t, err)
	require.Contains(t, native, addr)
	assert.Equal(t, "9", native[addr].Dec())

	meta, ok, err := ss.LoadMeta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Meta{DealingIndex: 1, NextQueueSeq: 257}, meta)
}

func TestCommitQueueDelete(t *testing.T) {
	ss := newMemStateStore(t)
	alice := testKey(1)
	tx := types.OmniverseTx{From: alice, Amount: uint256.NewInt(1)}

	require.NoError(t, ss.Commit(&ChangeSet{QueuePut: []*types.QueueEntry{
		{Seq: 0, Sender: alice, Tx: tx},
		{Seq: 1, Sender: alice, Tx: tx},
	}}))
	require.NoError(t, ss.Commit(&ChangeSet{QueueDelete: []uint64{0}}))

	queue, err := ss.LoadQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, uint64(1), queue[0].Seq)
}

func TestLoadFromEmptyStore(t *testing.T) {
	ss := newMemStateStore(t)

	accounts, err := ss.LoadAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, ok, err := ss.LoadMeta()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, ss.Commit(&ChangeSet{}))
	assert.NoError(t, ss.Commit(nil))
}

func TestStoreConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  StoreConfig
		wantErr bool
	}{
		{"leveldb", StoreConfig{Type: LevelDBStoreType, Directory: "./data"}, false},
		{"leveldb without directory", StoreConfig{Type: LevelDBStoreType}, true},
		{"memory", StoreConfig{Type: MemoryStoreType}, false},
		{"redis", StoreConfig{Type: RedisStoreType, Address: "localhost:6379"}, false},
		{"redis without address", StoreConfig{Type: RedisStoreType}, true},
		{"empty", StoreConfig{}, true},
		{"unknown", StoreConfig{Type: "rocksdb", Directory: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateStoreMemory(t *testing.T) {
	ss, err := CreateStore(&StoreConfig{Type: MemoryStoreType})
	require.NoError(t, err)
	defer ss.MustClose()

	require.NoError(t, ss.Commit(&ChangeSet{Meta: &Meta{NextQueueSeq: 3}}))
	meta, ok, err := ss.LoadMeta()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), meta.NextQueueSeq)
}

func TestCreateStoreLevelDB(t *testing.T) {
	dir := t.TempDir()
	cfg := &StoreConfig{Type: LevelDBStoreType, Directory: dir}

	ss, err := CreateStore(cfg)
	require.NoError(t, err)
	require.NoError(t, ss.Commit(&ChangeSet{Accounts: []*types.Account{types.NewAccount(testKey(5))}}))
	ss.MustClose()

	reopened, err := CreateStore(cfg)
	require.NoError(t, err)
	defer reopened.MustClose()
	accounts, err := reopened.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, testKey(5), accounts[0].PublicKey)
}

func TestCreateStoreBolt(t *testing.T) {
	cfg := &StoreConfig{Type: BoltStoreType, Directory: t.TempDir()}

	ss, err := CreateStore(cfg)
	require.NoError(t, err)
	require.NoError(t, ss.Commit(&ChangeSet{
		Accounts: []*types.Account{types.NewAccount(testKey(6)), types.NewAccount(testKey(2))},
		Meta:     &Meta{NextQueueSeq: 4},
	}))
	ss.MustClose()

	reopened, err := CreateStore(cfg)
	require.NoError(t, err)
	defer reopened.MustClose()
	accounts, err := reopened.LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, testKey(2), accounts[0].PublicKey)
	assert.Equal(t, testKey(6), accounts[1].PublicKey)

	meta, ok, err := reopened.LoadMeta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), meta.NextQueueSeq)
}
