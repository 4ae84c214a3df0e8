package engine

import (
	"fmt"

	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/events"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

// TriggerExecution executes the queue head once its cooldown has elapsed.
func (e *Engine) TriggerExecution() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	head, ok := e.queue.Head()
	if !ok {
		return ErrNoDelayedTx
	}
	if _, ok := e.queue.Executable(now, e.cfg.Cooldown); !ok {
		return fmt.Errorf("%w: admitted at %d, now %d, cooldown %d", ErrNotExecutable, head.AdmittedAt, now, e.cfg.Cooldown)
	}

	tx := &head.Tx
	digest, err := codec.Digest(tx)
	if err != nil {
		return fmt.Errorf("digest queued transaction: %w", err)
	}
	// validated at admission; only the debit side can have moved since then
	debited := debits(tx.Op)
	if debited {
		if err := e.ledger.Debit(head.Sender, tx.Amount); err != nil {
			return fmt.Errorf("%w: queued %s of %s: %v", ErrExceedBalance, tx.Op, head.Sender.Short(), err)
		}
	}
	if err := e.ledger.RecordExecuted(head.Sender, tx.Copy()); err != nil {
		if debited {
			e.ledger.Credit(head.Sender, tx.Amount)
		}
		return fmt.Errorf("%w: %v", ErrNonceError, err)
	}

	e.queue.Pop()
	e.ledger.ClearPending(head.Sender)

	c := newChanges()
	c.touchAccount(head.Sender)
	c.queueDelete = append(c.queueDelete, head.Seq)

	var event events.OmniverseEvent
	switch tx.Op {
	case types.OpMint:
		to, _ := tx.Recipient()
		e.ledger.Credit(to, tx.Amount)
		c.touchAccount(to)
		event = events.NewOmniverseTokenTransfer(digest, types.PublicKey{}, to, tx.Amount, now)

	case types.OpTransfer:
		to, _ := tx.Recipient()
		e.ledger.Credit(to, tx.Amount)
		c.touchAccount(to)
		event = events.NewOmniverseTokenTransfer(digest, head.Sender, to, tx.Amount, now)

	case types.OpBurn:
		event = events.NewOmniverseTokenTransfer(digest, head.Sender, types.PublicKey{}, tx.Amount, now)

	case types.OpWithdraw:
		native := signer.AddressOf(head.Sender)
		credited := tx.ChainID == e.cfg.ChainID
		if credited {
			e.bridge.CreditNative(native, tx.Amount)
			c.native = append(c.native, native)
		}
		event = events.NewOmniverseTokenWithdraw(digest, head.Sender, tx.Amount, tx.ChainID, native, credited, now)

	case types.OpDeposit:
		to, _ := tx.Recipient()
		e.ledger.Credit(to, tx.Amount)
		c.touchAccount(to)
		event = events.NewOmniverseTokenDeposit(digest, head.Sender, to, tx.Amount, tx.ChainID, now)
	}

	e.router.Emit(event)
	monitoring.RecordExecutedTx(tx.Op.String())
	monitoring.SetDelayedQueueSize(e.queue.Len())
	logx.Info("ENGINE", fmt.Sprintf("Transaction executed | sender=%s | nonce=%d | op=%s | amount=%s | hash=%s",
		head.Sender.Short(), tx.Nonce, tx.Op, tx.Amount, digest.Hex()))

	return e.commit(c)
}

func debits(op types.Op) bool {
	return op == types.OpTransfer || op == types.OpBurn || op == types.OpWithdraw
}
