// Package engine is the omniverse state machine: admission, delayed execution,
// malicious detection and the committee-gated deposit bridge.
//
// Every exported method runs to completion under one mutex, so the engine
// behaves as a strictly serialized ledger whatever the number of callers.
package engine

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/bridge"
	"github.com/mezonai/omniverse/clock"
	"github.com/mezonai/omniverse/events"
	"github.com/mezonai/omniverse/ledger"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/mempool"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/store"
	"github.com/mezonai/omniverse/types"
)

// Config is the per-instance protocol setup.
type Config struct {
	// ChainID is the local chain. Withdraws on it credit native balances.
	ChainID uint32
	// Address is this instance's own address; every tx must name it as initiator.
	Address   common.Address
	Owner     types.PublicKey
	Committee types.PublicKey
	// Cooldown is measured in clock units.
	Cooldown uint64
	Members  []types.Member
}

type Engine struct {
	mu sync.Mutex

	cfg      Config
	members  map[uint32]common.Address
	verifier signer.Verifier
	clock    clock.Clock
	store    store.StateStore

	ledger *ledger.Ledger
	queue  *mempool.DelayedQueue
	bridge *bridge.Ledger
	router *events.EventRouter
}

// New builds an engine with empty state. st and bus may be nil.
func New(cfg Config, verifier signer.Verifier, clk clock.Clock, st store.StateStore, bus *events.EventBus) *Engine {
	if verifier == nil {
		verifier = signer.NewSecp256k1Verifier()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	e := &Engine{
		cfg:      cfg,
		verifier: verifier,
		clock:    clk,
		store:    st,
		ledger:   ledger.NewLedger(),
		queue:    mempool.NewDelayedQueue(),
		bridge:   bridge.NewLedger(),
		router:   events.NewEventRouter(bus),
	}
	e.setMembersLocked(cfg.Members)
	return e
}

// Restore replaces the in-memory state with what the store holds.
func (e *Engine) Restore() error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, err := e.store.LoadAccounts()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	entries, err := e.store.LoadQueue()
	if err != nil {
		return fmt.Errorf("load delayed queue: %w", err)
	}
	requests, err := e.store.LoadDepositRequests()
	if err != nil {
		return fmt.Errorf("load deposit requests: %w", err)
	}
	native, err := e.store.LoadNativeBalances()
	if err != nil {
		return fmt.Errorf("load native balances: %w", err)
	}
	meta, _, err := e.store.LoadMeta()
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}

	if err := e.bridge.Restore(native, requests, meta.DealingIndex); err != nil {
		return fmt.Errorf("restore bridge: %w", err)
	}
	e.ledger.Restore(accounts)
	e.queue.Restore(entries, meta.NextQueueSeq)
	for _, entry := range entries {
		acc := e.ledger.Get(entry.Sender)
		if acc.Pending != nil {
			return fmt.Errorf("restore queue: %s has more than one queued entry", entry.Sender.Short())
		}
		acc.Pending = entry
	}
	monitoring.SetDelayedQueueSize(e.queue.Len())

	logx.Info("ENGINE", fmt.Sprintf("Restored state | accounts=%d | delayed=%d | deposits=%d | dealing_index=%d",
		len(accounts), len(entries), len(requests), meta.DealingIndex))
	return nil
}

// GetExecutableDelayedTx returns a copy of the queue head if its cooldown has elapsed.
func (e *Engine) GetExecutableDelayedTx() (*types.QueueEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	head, ok := e.queue.Executable(e.clock.Now(), e.cfg.Cooldown)
	if !ok {
		return nil, false
	}
	return copyEntry(head), true
}

func (e *Engine) GetDelayedTxCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(e.queue.Len())
}

// DelayedTxs returns copies of every queued entry in execution order.
func (e *Engine) DelayedTxs() []*types.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.queue.Entries()
	out := make([]*types.QueueEntry, len(entries))
	for i, entry := range entries {
		out[i] = copyEntry(entry)
	}
	return out
}

// GetTransactionCount is the number of executed transactions of pk, which is also its next nonce.
func (e *Engine) GetTransactionCount(pk types.PublicKey) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Nonce(pk)
}

// GetTransactionData returns the executed transaction of pk with the given nonce.
func (e *Engine) GetTransactionData(pk types.PublicKey, nonce uint64) (*types.OmniverseTx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TxAt(pk, nonce)
}

func (e *Engine) IsMalicious(pk types.PublicKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.IsMalicious(pk)
}

func (e *Engine) OmniverseBalanceOf(pk types.PublicKey) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(pk)
}

func (e *Engine) NativeBalanceOf(addr common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge.NativeBalance(addr)
}

// SetMembers replaces the member table.
func (e *Engine) SetMembers(members []types.Member) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setMembersLocked(members)
	logx.Info("ENGINE", fmt.Sprintf("Member table updated | members=%d", len(members)))
}

func (e *Engine) setMembersLocked(members []types.Member) {
	e.members = make(map[uint32]common.Address, len(members))
	for _, m := range members {
		e.members[m.ChainID] = m.Address
	}
	e.cfg.Members = append([]types.Member(nil), members...)
}

func (e *Engine) SetCommitteeAddress(pk types.PublicKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Committee = pk
	logx.Info("ENGINE", fmt.Sprintf("Committee updated | committee=%s | address=%s", pk.Short(), signer.AddressOf(pk).Hex()))
}

func (e *Engine) SetCoolingDownTime(d uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Cooldown = d
	logx.Info("ENGINE", fmt.Sprintf("Cooling down time updated | cooldown=%d", d))
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Members = append([]types.Member(nil), e.cfg.Members...)
	return cfg
}

// Events returns every event emitted so far, in emission order.
func (e *Engine) Events() []events.OmniverseEvent {
	return e.router.All()
}

// EventsSince returns the events with sequence number >= seq.
func (e *Engine) EventsSince(seq uint64) []events.OmniverseEvent {
	return e.router.Since(seq)
}

// Subscribe registers a live event listener. It fails when the engine was built without a bus.
func (e *Engine) Subscribe() (events.SubscriberID, <-chan events.OmniverseEvent, error) {
	bus := e.router.Bus()
	if bus == nil {
		return "", nil, fmt.Errorf("engine has no event bus")
	}
	id, ch := bus.Subscribe()
	monitoring.SetEventSubscriberCount(bus.GetTotalSubscriptions())
	return id, ch, nil
}

func (e *Engine) Unsubscribe(id events.SubscriberID) bool {
	bus := e.router.Bus()
	if bus == nil {
		return false
	}
	removed := bus.Unsubscribe(id)
	monitoring.SetEventSubscriberCount(bus.GetTotalSubscriptions())
	return removed
}

func (e *Engine) isMember(chainID uint32) bool {
	_, ok := e.members[chainID]
	return ok
}

func copyEntry(entry *types.QueueEntry) *types.QueueEntry {
	cp := *entry
	cp.Tx = entry.Tx.Copy()
	return &cp
}
