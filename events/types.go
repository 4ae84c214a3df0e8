package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/types"
)

// EventType is an enum-like string type for omniverse events
type EventType string

const (
	EventTransactionSent        EventType = "TransactionSent"
	EventOmniverseTokenTransfer EventType = "OmniverseTokenTransfer"
	EventOmniverseTokenWithdraw EventType = "OmniverseTokenWithdraw"
	EventOmniverseTokenDeposit  EventType = "OmniverseTokenDeposit"
)

// OmniverseEvent is anything the engine emits. Seq is the global emission order.
type OmniverseEvent interface {
	Type() EventType
	Seq() uint64
	TxHash() common.Hash
	// Timestamp is the logical time unit the event was emitted at.
	Timestamp() uint64

	stamp(seq uint64)
}

type base struct {
	seq       uint64
	txHash    common.Hash
	timestamp uint64
}

func (b *base) Seq() uint64         { return b.seq }
func (b *base) TxHash() common.Hash { return b.txHash }
func (b *base) Timestamp() uint64   { return b.timestamp }
func (b *base) stamp(seq uint64)    { b.seq = seq }

// TransactionSent is emitted when a transaction is admitted into the delayed queue.
type TransactionSent struct {
	base
	sender  types.PublicKey
	nonce   uint64
	op      types.Op
	chainID uint32
}

func NewTransactionSent(txHash common.Hash, tx *types.OmniverseTx, at uint64) *TransactionSent {
	return &TransactionSent{
		base:    base{txHash: txHash, timestamp: at},
		sender:  tx.From,
		nonce:   tx.Nonce,
		op:      tx.Op,
		chainID: tx.ChainID,
	}
}

func (e *TransactionSent) Type() EventType         { return EventTransactionSent }
func (e *TransactionSent) Sender() types.PublicKey { return e.sender }
func (e *TransactionSent) Nonce() uint64           { return e.nonce }
func (e *TransactionSent) Op() types.Op            { return e.op }
func (e *TransactionSent) ChainID() uint32         { return e.chainID }

// OmniverseTokenTransfer covers transfer, mint (zero From) and burn (zero To).
type OmniverseTokenTransfer struct {
	base
	from   types.PublicKey
	to     types.PublicKey
	amount *uint256.Int
}

func NewOmniverseTokenTransfer(txHash common.Hash, from, to types.PublicKey, amount *uint256.Int, at uint64) *OmniverseTokenTransfer {
	return &OmniverseTokenTransfer{
		base:   base{txHash: txHash, timestamp: at},
		from:   from,
		to:     to,
		amount: new(uint256.Int).Set(amount),
	}
}

func (e *OmniverseTokenTransfer) Type() EventType       { return EventOmniverseTokenTransfer }
func (e *OmniverseTokenTransfer) From() types.PublicKey { return e.from }
func (e *OmniverseTokenTransfer) To() types.PublicKey   { return e.to }
func (e *OmniverseTokenTransfer) Amount() *uint256.Int  { return new(uint256.Int).Set(e.amount) }

// OmniverseTokenWithdraw is emitted when omniverse balance leaves the ledger.
// Credited is false when the withdraw targets another chain and no local native credit happened.
type OmniverseTokenWithdraw struct {
	base
	from     types.PublicKey
	amount   *uint256.Int
	chainID  uint32
	native   common.Address
	credited bool
}

func NewOmniverseTokenWithdraw(txHash common.Hash, from types.PublicKey, amount *uint256.Int, chainID uint32, native common.Address, credited bool, at uint64) *OmniverseTokenWithdraw {
	return &OmniverseTokenWithdraw{
		base:     base{txHash: txHash, timestamp: at},
		from:     from,
		amount:   new(uint256.Int).Set(amount),
		chainID:  chainID,
		native:   native,
		credited: credited,
	}
}

func (e *OmniverseTokenWithdraw) Type() EventType               { return EventOmniverseTokenWithdraw }
func (e *OmniverseTokenWithdraw) From() types.PublicKey         { return e.from }
func (e *OmniverseTokenWithdraw) Amount() *uint256.Int          { return new(uint256.Int).Set(e.amount) }
func (e *OmniverseTokenWithdraw) ChainID() uint32               { return e.chainID }
func (e *OmniverseTokenWithdraw) NativeAddress() common.Address { return e.native }
func (e *OmniverseTokenWithdraw) Credited() bool                { return e.credited }

// OmniverseTokenDeposit is emitted when a deposit credits the omniverse ledger.
type OmniverseTokenDeposit struct {
	base
	from    types.PublicKey
	to      types.PublicKey
	amount  *uint256.Int
	chainID uint32
}

func NewOmniverseTokenDeposit(txHash common.Hash, from, to types.PublicKey, amount *uint256.Int, chainID uint32, at uint64) *OmniverseTokenDeposit {
	return &OmniverseTokenDeposit{
		base:    base{txHash: txHash, timestamp: at},
		from:    from,
		to:      to,
		amount:  new(uint256.Int).Set(amount),
		chainID: chainID,
	}
}

func (e *OmniverseTokenDeposit) Type() EventType       { return EventOmniverseTokenDeposit }
func (e *OmniverseTokenDeposit) From() types.PublicKey { return e.from }
func (e *OmniverseTokenDeposit) To() types.PublicKey   { return e.to }
func (e *OmniverseTokenDeposit) Amount() *uint256.Int  { return new(uint256.Int).Set(e.amount) }
func (e *OmniverseTokenDeposit) ChainID() uint32       { return e.chainID }
