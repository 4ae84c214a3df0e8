package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/db"
	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/types"
)

var ErrNotIterable = errors.New("provider does not support prefix iteration")

// ChangeSet is everything one engine call touched. It is written in a single batch.
type ChangeSet struct {
	Accounts    []*types.Account
	QueuePut    []*types.QueueEntry
	QueueDelete []uint64
	Deposits    []*types.DepositRequest
	Native      map[common.Address]*uint256.Int
	Meta        *Meta
}

// Empty reports whether there is nothing to write.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || (len(cs.Accounts) == 0 && len(cs.QueuePut) == 0 && len(cs.QueueDelete) == 0 &&
		len(cs.Deposits) == 0 && len(cs.Native) == 0 && cs.Meta == nil)
}

type StateStore interface {
	Commit(cs *ChangeSet) error
	LoadAccounts() ([]*types.Account, error)
	LoadQueue() ([]*types.QueueEntry, error)
	LoadDepositRequests() ([]*types.DepositRequest, error)
	LoadNativeBalances() (map[common.Address]*uint256.Int, error)
	LoadMeta() (Meta, bool, error)
	MustClose()
}

type nativeRecord struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
}

// GenericStateStore persists omniverse state through any IterableProvider.
type GenericStateStore struct {
	mu         sync.RWMutex
	dbProvider db.IterableProvider
	txManager  *db.DBTxManager
	meta       *GenericStateMetaStore
}

func NewGenericStateStore(dbProvider db.DatabaseProvider) (*GenericStateStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	iterable, ok := dbProvider.(db.IterableProvider)
	if !ok {
		return nil, ErrNotIterable
	}

	return &GenericStateStore{
		dbProvider: iterable,
		txManager:  db.NewDBTxManager(dbProvider),
		meta:       NewGenericStateMetaStore(dbProvider),
	}, nil
}

func (ss *GenericStateStore) Commit(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.txManager.WithBatch(func(batch db.DatabaseBatch) error {
		for _, acc := range cs.Accounts {
			value, err := jsonx.Marshal(acc)
			if err != nil {
				return fmt.Errorf("failed to marshal account %s: %w", acc.PublicKey.Short(), err)
			}
			batch.Put(accountKey(acc.PublicKey), value)
		}

		for _, seq := range cs.QueueDelete {
			batch.Delete(queueKey(seq))
		}
		for _, entry := range cs.QueuePut {
			value, err := jsonx.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal queue entry %d: %w", entry.Seq, err)
			}
			batch.Put(queueKey(entry.Seq), value)
		}

		for _, req := range cs.Deposits {
			value, err := jsonx.Marshal(req)
			if err != nil {
				return fmt.Errorf("failed to marshal deposit request %d: %w", req.Index, err)
			}
			batch.Put(depositKey(req.Index), value)
		}

		for addr, bal := range cs.Native {
			value, err := jsonx.Marshal(nativeRecord{Address: addr, Balance: bal})
			if err != nil {
				return fmt.Errorf("failed to marshal native balance %s: %w", addr.Hex(), err)
			}
			batch.Put(nativeKey(addr), value)
		}

		if cs.Meta != nil {
			value, err := jsonx.Marshal(cs.Meta)
			if err != nil {
				return fmt.Errorf("failed to marshal meta: %w", err)
			}
			batch.Put([]byte(MetaKeyState), value)
		}
		return nil
	})
}

func (ss *GenericStateStore) LoadAccounts() ([]*types.Account, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var accounts []*types.Account
	err := ss.iterate(PrefixAccount, func(value []byte) error {
		var acc types.Account
		if err := jsonx.Unmarshal(value, &acc); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		accounts = append(accounts, &acc)
		return nil
	})
	return accounts, err
}

// LoadQueue returns the persisted delayed queue in admission order.
func (ss *GenericStateStore) LoadQueue() ([]*types.QueueEntry, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var entries []*types.QueueEntry
	err := ss.iterate(PrefixQueue, func(value []byte) error {
		var entry types.QueueEntry
		if err := jsonx.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal queue entry: %w", err)
		}
		entries = append(entries, &entry)
		return nil
	})
	return entries, err
}

func (ss *GenericStateStore) LoadDepositRequests() ([]*types.DepositRequest, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var requests []*types.DepositRequest
	err := ss.iterate(PrefixDeposit, func(value []byte) error {
		var req types.DepositRequest
		if err := jsonx.Unmarshal(value, &req); err != nil {
			return fmt.Errorf("failed to unmarshal deposit request: %w", err)
		}
		requests = append(requests, &req)
		return nil
	})
	return requests, err
}

func (ss *GenericStateStore) LoadNativeBalances() (map[common.Address]*uint256.Int, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	balances := make(map[common.Address]*uint256.Int)
	err := ss.iterate(PrefixNative, func(value []byte) error {
		var rec nativeRecord
		if err := jsonx.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal native balance: %w", err)
		}
		if rec.Balance == nil {
			rec.Balance = uint256.NewInt(0)
		}
		balances[rec.Address] = rec.Balance
		return nil
	})
	return balances, err
}

func (ss *GenericStateStore) LoadMeta() (Meta, bool, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.meta.GetMeta()
}

func (ss *GenericStateStore) MustClose() {
	if err := ss.dbProvider.Close(); err != nil {
		logx.Error("STORE", "Failed to close provider:", err)
	}
}

func (ss *GenericStateStore) iterate(prefix string, fn func(value []byte) error) error {
	var decodeErr error
	err := ss.dbProvider.IteratePrefix([]byte(prefix), func(_, value []byte) bool {
		decodeErr = fn(value)
		return decodeErr == nil
	})
	if err != nil {
		return fmt.Errorf("failed to iterate %q: %w", prefix, err)
	}
	return decodeErr
}
