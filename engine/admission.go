package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/events"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/types"
)

// Submit authenticates tx, checks it against the sender's sequence and queues it for delayed execution.
//
// A conflicting transaction for a nonce that is queued or already executed marks the
// sender malicious, evicts its queued entry and returns ErrMaliciousDetected.
// Every other error leaves the state untouched.
func (e *Engine) Submit(tx *types.OmniverseTx) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.admit(tx, false)
	return err
}

// admit runs the admission pipeline. viaBridge is set only for committee deposits built by ApproveDeposit.
// On ErrPersist the entry is queued in memory and still returned.
func (e *Engine) admit(tx *types.OmniverseTx, viaBridge bool) (*types.QueueEntry, error) {
	if tx == nil {
		return nil, e.reject(fmt.Errorf("%w: nil transaction", ErrInvalidPayload))
	}

	if tx.Initiator != e.cfg.Address {
		return nil, e.reject(fmt.Errorf("%w: %s", ErrWrongInitiator, tx.Initiator.Hex()))
	}

	digest, err := codec.Digest(tx)
	if err != nil {
		if errors.Is(err, codec.ErrAmountOverflow) {
			return nil, e.reject(err)
		}
		return nil, e.reject(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	recovered, err := e.verifier.Recover(digest, tx.Signature)
	if err != nil {
		return nil, e.reject(fmt.Errorf("%w: %v", ErrVerifyFailed, err))
	}
	if recovered != tx.From {
		return nil, e.reject(ErrSignerNotSender)
	}

	sender := tx.From
	acc, _ := e.ledger.Lookup(sender)
	if acc != nil && acc.Malicious {
		return nil, e.reject(ErrUserMalicious)
	}

	var nonce uint64
	if acc != nil {
		nonce = acc.Nonce
	}
	switch {
	case tx.Nonce == nonce && acc != nil && acc.Pending != nil:
		same, err := sameTx(&acc.Pending.Tx, digest)
		if err != nil {
			return nil, e.reject(err)
		}
		if same {
			return nil, e.reject(ErrTransactionCached)
		}
		return nil, e.markMalicious(sender, tx.Nonce, digest)

	case tx.Nonce < nonce:
		same, err := sameTx(&acc.History[tx.Nonce], digest)
		if err != nil {
			return nil, e.reject(err)
		}
		if same {
			return nil, e.reject(ErrDuplicated)
		}
		return nil, e.markMalicious(sender, tx.Nonce, digest)

	case tx.Nonce > nonce:
		return nil, e.reject(fmt.Errorf("%w: expected %d, got %d", ErrNonceError, nonce, tx.Nonce))
	}

	if err := e.validateOp(tx, viaBridge); err != nil {
		return nil, e.reject(err)
	}

	entry := &types.QueueEntry{
		Sender:     sender,
		Tx:         tx.Copy(),
		AdmittedAt: e.clock.Now(),
	}
	e.queue.Push(entry)
	e.ledger.SetPending(sender, entry)

	e.router.Emit(events.NewTransactionSent(digest, &entry.Tx, entry.AdmittedAt))
	monitoring.IncreaseAdmittedTxCount()
	monitoring.SetDelayedQueueSize(e.queue.Len())
	logx.Info("ENGINE", fmt.Sprintf("Transaction admitted | sender=%s | nonce=%d | op=%s | chain=%d | seq=%d | hash=%s",
		sender.Short(), tx.Nonce, tx.Op, tx.ChainID, entry.Seq, digest.Hex()))

	c := newChanges()
	c.touchAccount(sender)
	c.queuePut = append(c.queuePut, entry)
	c.meta = true
	return entry, e.commit(c)
}

// validateOp runs the op-specific checks that must pass before a tx is queued.
func (e *Engine) validateOp(tx *types.OmniverseTx, viaBridge bool) error {
	if !tx.Op.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOp, uint8(tx.Op))
	}
	local := tx.ChainID == e.cfg.ChainID
	if !local && !e.isMember(tx.ChainID) {
		return fmt.Errorf("%w: %d", ErrUnknownChain, tx.ChainID)
	}

	switch tx.Op {
	case types.OpMint:
		if tx.From != e.cfg.Owner {
			return ErrNotOwner
		}
		return checkRecipient(tx)

	case types.OpTransfer:
		if err := checkRecipient(tx); err != nil {
			return err
		}
		return e.checkBalance(tx)

	case types.OpBurn, types.OpWithdraw:
		return e.checkBalance(tx)

	case types.OpDeposit:
		if tx.From != e.cfg.Committee {
			return ErrNotCommittee
		}
		if err := checkRecipient(tx); err != nil {
			return err
		}
		if local && !viaBridge {
			return ErrDepositNotAllowed
		}
	}
	return nil
}

func (e *Engine) checkBalance(tx *types.OmniverseTx) error {
	if !e.ledger.HasBalance(tx.From, tx.Amount) {
		return fmt.Errorf("%w: balance %s, amount %s", ErrExceedBalance, e.ledger.Balance(tx.From), tx.Amount)
	}
	return nil
}

func checkRecipient(tx *types.OmniverseTx) error {
	if len(tx.Data) != types.PublicKeyLength {
		return fmt.Errorf("%w: recipient must be %d bytes, got %d", ErrInvalidPayload, types.PublicKeyLength, len(tx.Data))
	}
	return nil
}

// markMalicious flags sender and drops its queued entry. It is the only admission path that mutates state.
func (e *Engine) markMalicious(sender types.PublicKey, nonce uint64, digest common.Hash) error {
	e.ledger.MarkMalicious(sender)

	c := newChanges()
	c.touchAccount(sender)
	if evicted, ok := e.queue.Remove(sender); ok {
		e.ledger.ClearPending(sender)
		c.queueDelete = append(c.queueDelete, evicted.Seq)
	}

	monitoring.IncreaseMaliciousCount()
	monitoring.RecordRejectedTx(monitoring.TxMaliciousDetected)
	monitoring.SetDelayedQueueSize(e.queue.Len())
	logx.Warn("ENGINE", fmt.Sprintf("Malicious sender detected | sender=%s | nonce=%d | conflicting_hash=%s",
		sender.Short(), nonce, digest.Hex()))

	if err := e.commit(c); err != nil {
		return errors.Join(ErrMaliciousDetected, err)
	}
	return ErrMaliciousDetected
}

func (e *Engine) reject(err error) error {
	monitoring.RecordRejectedTx(rejectReason(err))
	logx.Debug("ENGINE", fmt.Sprintf("Transaction rejected: %v", err))
	return err
}

func sameTx(known *types.OmniverseTx, digest common.Hash) (bool, error) {
	knownDigest, err := codec.Digest(known)
	if err != nil {
		return false, fmt.Errorf("digest stored transaction: %w", err)
	}
	return knownDigest == digest, nil
}

func rejectReason(err error) monitoring.TxRejectedReason {
	switch {
	case errors.Is(err, ErrVerifyFailed):
		return monitoring.TxVerifyFailed
	case errors.Is(err, ErrSignerNotSender):
		return monitoring.TxSignerNotSender
	case errors.Is(err, ErrWrongInitiator):
		return monitoring.TxWrongInitiator
	case errors.Is(err, ErrNonceError):
		return monitoring.TxInvalidNonce
	case errors.Is(err, ErrDuplicated):
		return monitoring.TxDuplicated
	case errors.Is(err, ErrTransactionCached):
		return monitoring.TxCached
	case errors.Is(err, ErrUserMalicious):
		return monitoring.TxUserMalicious
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotCommittee):
		return monitoring.TxNotOwner
	case errors.Is(err, ErrExceedBalance):
		return monitoring.TxExceedBalance
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrAmountOverflow), errors.Is(err, ErrUnknownOp):
		return monitoring.TxInvalidPayload
	case errors.Is(err, ErrUnknownChain):
		return monitoring.TxUnknownChain
	case errors.Is(err, ErrDepositNotAllowed):
		return monitoring.TxDepositNotAllowed
	default:
		return monitoring.TxRejectedUnknown
	}
}
