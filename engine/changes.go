package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/store"
	"github.com/mezonai/omniverse/types"
)

// changes records what one call touched so it can be committed as a single batch.
type changes struct {
	accounts    []types.PublicKey
	seen        map[types.PublicKey]struct{}
	queuePut    []*types.QueueEntry
	queueDelete []uint64
	deposits    []*types.DepositRequest
	native      []common.Address
	meta        bool
}

func newChanges() *changes {
	return &changes{seen: make(map[types.PublicKey]struct{})}
}

func (c *changes) touchAccount(pk types.PublicKey) {
	if _, ok := c.seen[pk]; ok {
		return
	}
	c.seen[pk] = struct{}{}
	c.accounts = append(c.accounts, pk)
}

// commit writes c through the store. Callers hold e.mu.
func (e *Engine) commit(c *changes) error {
	if e.store == nil || c == nil {
		return nil
	}

	cs := &store.ChangeSet{
		QueuePut:    c.queuePut,
		QueueDelete: c.queueDelete,
		Deposits:    c.deposits,
	}
	for _, pk := range c.accounts {
		cs.Accounts = append(cs.Accounts, e.ledger.Get(pk))
	}
	if len(c.native) > 0 {
		cs.Native = make(map[common.Address]*uint256.Int, len(c.native))
		for _, addr := range c.native {
			cs.Native[addr] = e.bridge.NativeBalance(addr)
		}
	}
	if c.meta {
		cs.Meta = &store.Meta{
			DealingIndex: e.bridge.DealingIndex(),
			NextQueueSeq: e.queue.NextSeq(),
		}
	}

	if err := e.store.Commit(cs); err != nil {
		logx.Error("ENGINE", fmt.Sprintf("State commit failed: %v", err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
