// Package bridge tracks native balances and the deposit-request queue that moves
// native value back into the omniverse ledger under committee approval.
package bridge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

var (
	ErrSignerNotSender = errors.New("signer not sender")
	ErrExceedBalance   = errors.New("exceed balance")
	ErrNotCommittee    = errors.New("not committee")
	ErrIndexError      = errors.New("index error")
	ErrIndexOutOfBound = errors.New("index out of bound")
)

// Ledger is not goroutine-safe; the engine owns it.
type Ledger struct {
	native       map[common.Address]*uint256.Int
	requests     []*types.DepositRequest
	dealingIndex uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		native: make(map[common.Address]*uint256.Int),
	}
}

// NativeBalance returns a copy of the native balance of addr.
func (l *Ledger) NativeBalance(addr common.Address) *uint256.Int {
	if bal, ok := l.native[addr]; ok {
		return new(uint256.Int).Set(bal)
	}
	return uint256.NewInt(0)
}

func (l *Ledger) CreditNative(addr common.Address, amount *uint256.Int) {
	l.native[addr] = new(uint256.Int).Add(l.NativeBalance(addr), amount)
}

func (l *Ledger) DebitNative(addr common.Address, amount *uint256.Int) error {
	bal := l.NativeBalance(addr)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native %s, requested %s", ErrExceedBalance, bal, amount)
	}
	l.native[addr] = bal.Sub(bal, amount)
	return nil
}

// Request debits amount from the caller's native balance and queues a pending
// deposit for receiver. caller must be the address bound to receiver.
func (l *Ledger) Request(receiver types.PublicKey, amount *uint256.Int, caller common.Address) (*types.DepositRequest, error) {
	if signer.AddressOf(receiver) != caller {
		return nil, ErrSignerNotSender
	}
	if amount == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrExceedBalance)
	}
	if err := l.DebitNative(caller, amount); err != nil {
		return nil, err
	}
	req := &types.DepositRequest{
		Index:    uint64(len(l.requests)),
		Receiver: receiver,
		Amount:   new(uint256.Int).Set(amount),
		Status:   types.DepositPending,
	}
	l.requests = append(l.requests, req)
	return req, nil
}

// CheckApproval returns the request at index if it is the one currently being dealt with.
func (l *Ledger) CheckApproval(index uint64) (*types.DepositRequest, error) {
	if index != l.dealingIndex {
		return nil, fmt.Errorf("%w: got %d, dealing %d", ErrIndexError, index, l.dealingIndex)
	}
	if index >= uint64(len(l.requests)) {
		return nil, fmt.Errorf("%w: index %d, %d requests", ErrIndexOutOfBound, index, len(l.requests))
	}
	return l.requests[index], nil
}

// MarkApproved approves the dealing request and moves on to the next one.
func (l *Ledger) MarkApproved(index uint64) (*types.DepositRequest, error) {
	req, err := l.CheckApproval(index)
	if err != nil {
		return nil, err
	}
	req.Status = types.DepositApproved
	l.dealingIndex++
	return req, nil
}

// Get returns a copy of the request at index.
func (l *Ledger) Get(index uint64) (*types.DepositRequest, error) {
	if index >= uint64(len(l.requests)) {
		return nil, fmt.Errorf("%w: index %d, %d requests", ErrIndexOutOfBound, index, len(l.requests))
	}
	req := *l.requests[index]
	req.Amount = new(uint256.Int).Set(req.Amount)
	return &req, nil
}

func (l *Ledger) DealingIndex() uint64 {
	return l.dealingIndex
}

func (l *Ledger) Len() int {
	return len(l.requests)
}

// Restore replaces the bridge state with values loaded from storage.
func (l *Ledger) Restore(native map[common.Address]*uint256.Int, requests []*types.DepositRequest, dealingIndex uint64) error {
	sorted := make([]*types.DepositRequest, len(requests))
	copy(sorted, requests)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, req := range sorted {
		if req.Index != uint64(i) {
			return fmt.Errorf("deposit request index gap at %d (found %d)", i, req.Index)
		}
	}
	if dealingIndex > uint64(len(sorted)) {
		return fmt.Errorf("dealing index %d beyond %d requests", dealingIndex, len(sorted))
	}
	l.native = make(map[common.Address]*uint256.Int, len(native))
	for addr, bal := range native {
		l.native[addr] = new(uint256.Int).Set(bal)
	}
	l.requests = sorted
	l.dealingIndex = dealingIndex
	return nil
}
