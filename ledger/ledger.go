package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonceGap            = errors.New("executed nonce out of order")
	ErrTxNotFound          = errors.New("transaction not found")
)

// Ledger holds per-account nonces, omniverse balances, malicious flags and executed history.
// It does no locking; the engine serializes every access.
type Ledger struct {
	accounts map[types.PublicKey]*types.Account
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[types.PublicKey]*types.Account),
	}
}

// Get returns the record for pk, creating the zero record on first use.
func (l *Ledger) Get(pk types.PublicKey) *types.Account {
	acc, ok := l.accounts[pk]
	if !ok {
		acc = types.NewAccount(pk)
		l.accounts[pk] = acc
	}
	return acc
}

// Lookup returns the record for pk without creating it.
func (l *Ledger) Lookup(pk types.PublicKey) (*types.Account, bool) {
	acc, ok := l.accounts[pk]
	return acc, ok
}

func (l *Ledger) Nonce(pk types.PublicKey) uint64 {
	if acc, ok := l.accounts[pk]; ok {
		return acc.Nonce
	}
	return 0
}

// Balance returns a copy of pk's omniverse balance.
func (l *Ledger) Balance(pk types.PublicKey) *uint256.Int {
	if acc, ok := l.accounts[pk]; ok {
		return new(uint256.Int).Set(acc.Balance)
	}
	return uint256.NewInt(0)
}

func (l *Ledger) IsMalicious(pk types.PublicKey) bool {
	if acc, ok := l.accounts[pk]; ok {
		return acc.Malicious
	}
	return false
}

func (l *Ledger) MarkMalicious(pk types.PublicKey) {
	l.Get(pk).Malicious = true
}

func (l *Ledger) SetPending(pk types.PublicKey, entry *types.QueueEntry) {
	l.Get(pk).Pending = entry
}

func (l *Ledger) ClearPending(pk types.PublicKey) {
	if acc, ok := l.accounts[pk]; ok {
		acc.Pending = nil
	}
}

// HasBalance reports whether pk holds at least amount.
func (l *Ledger) HasBalance(pk types.PublicKey, amount *uint256.Int) bool {
	return l.Balance(pk).Cmp(amount) >= 0
}

func (l *Ledger) Credit(pk types.PublicKey, amount *uint256.Int) {
	acc := l.Get(pk)
	acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
}

func (l *Ledger) Debit(pk types.PublicKey, amount *uint256.Int) error {
	acc := l.Get(pk)
	if acc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, acc.Balance, amount)
	}
	acc.Balance = new(uint256.Int).Sub(acc.Balance, amount)
	return nil
}

// RecordExecuted advances the sender nonce by one and appends tx to its history.
func (l *Ledger) RecordExecuted(pk types.PublicKey, tx types.OmniverseTx) error {
	acc := l.Get(pk)
	if tx.Nonce != acc.Nonce {
		return fmt.Errorf("%w: account nonce %d, tx nonce %d", ErrNonceGap, acc.Nonce, tx.Nonce)
	}
	acc.History = append(acc.History, tx)
	acc.Nonce++
	return nil
}

// TxAt returns the executed transaction of pk with the given nonce.
func (l *Ledger) TxAt(pk types.PublicKey, nonce uint64) (*types.OmniverseTx, error) {
	acc, ok := l.accounts[pk]
	if !ok || nonce >= uint64(len(acc.History)) {
		return nil, fmt.Errorf("%w: %s nonce %d", ErrTxNotFound, pk.Short(), nonce)
	}
	tx := acc.History[nonce].Copy()
	return &tx, nil
}

// Restore replaces the ledger contents with accounts loaded from storage.
func (l *Ledger) Restore(accounts []*types.Account) {
	l.accounts = make(map[types.PublicKey]*types.Account, len(accounts))
	for _, acc := range accounts {
		if acc.Balance == nil {
			acc.Balance = uint256.NewInt(0)
		}
		acc.Pending = nil
		l.accounts[acc.PublicKey] = acc
	}
}
