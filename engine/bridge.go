package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/bridge"
	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

// RequestDeposit moves amount out of caller's native balance into a pending deposit for receiver.
// caller must be the address bound to receiver.
func (e *Engine) RequestDeposit(receiver types.PublicKey, amount *uint256.Int, caller common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requestDeposit(receiver, amount, caller)
}

// RequestDepositSigned is RequestDeposit for callers that cannot be identified by their transport.
// signature must recover over codec.DepositRequestDigest at the next request index; the key it
// recovers to is the caller.
func (e *Engine) RequestDepositSigned(receiver types.PublicKey, amount *uint256.Int, signature []byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	digest, err := codec.DepositRequestDigest(receiver, amount, uint64(e.bridge.Len()))
	if err != nil {
		if errors.Is(err, codec.ErrAmountOverflow) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	recovered, err := e.verifier.Recover(digest, signature)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	return e.requestDeposit(receiver, amount, signer.AddressOf(recovered))
}

func (e *Engine) requestDeposit(receiver types.PublicKey, amount *uint256.Int, caller common.Address) (uint64, error) {
	if amount != nil && amount.BitLen() > codec.AmountSize*8 {
		return 0, ErrAmountOverflow
	}
	req, err := e.bridge.Request(receiver, amount, caller)
	if err != nil {
		logx.Debug("BRIDGE", fmt.Sprintf("Deposit request rejected | caller=%s | err=%v", caller.Hex(), err))
		return 0, err
	}

	monitoring.IncreaseDepositRequestCount()
	logx.Info("BRIDGE", fmt.Sprintf("Deposit requested | index=%d | receiver=%s | amount=%s",
		req.Index, receiver.Short(), req.Amount))

	c := newChanges()
	c.deposits = append(c.deposits, req)
	c.native = append(c.native, caller)
	return req.Index, e.commit(c)
}

// ApproveDeposit admits the committee-signed Deposit for the request at index and advances the dealing index.
// The deposit transaction is rebuilt from the request; nonce and signature come from the committee.
func (e *Engine) ApproveDeposit(index, nonce uint64, signature []byte, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.approveDeposit(index, nonce, signature, caller)
}

// ApproveDepositSigned is ApproveDeposit authenticated by the committee signature on the
// deposit transaction alone. A signature by any other key fails admission with ErrSignerNotSender.
func (e *Engine) ApproveDepositSigned(index, nonce uint64, signature []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.approveDeposit(index, nonce, signature, signer.AddressOf(e.cfg.Committee))
}

func (e *Engine) approveDeposit(index, nonce uint64, signature []byte, caller common.Address) error {
	if caller != signer.AddressOf(e.cfg.Committee) {
		return bridge.ErrNotCommittee
	}
	req, err := e.bridge.CheckApproval(index)
	if err != nil {
		return err
	}

	tx := &types.OmniverseTx{
		Nonce:     nonce,
		ChainID:   e.cfg.ChainID,
		Initiator: e.cfg.Address,
		From:      e.cfg.Committee,
		Op:        types.OpDeposit,
		Data:      req.Receiver.Bytes(),
		Amount:    req.Amount,
		Signature: signature,
	}
	if _, err := e.admit(tx, true); err != nil && !errors.Is(err, ErrPersist) {
		return err
	}

	approved, err := e.bridge.MarkApproved(index)
	if err != nil {
		return err
	}

	monitoring.IncreaseDepositApproveCount()
	logx.Info("BRIDGE", fmt.Sprintf("Deposit approved | index=%d | receiver=%s | amount=%s | committee_nonce=%d",
		index, approved.Receiver.Short(), approved.Amount, nonce))

	c := newChanges()
	c.deposits = append(c.deposits, approved)
	c.meta = true
	return e.commit(c)
}

func (e *Engine) GetDepositRequest(index uint64) (*types.DepositRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge.Get(index)
}

// DepositDealingIndex is the index of the next request the committee may approve.
func (e *Engine) DepositDealingIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge.DealingIndex()
}

// DepositRequestCount is the number of deposit requests ever made.
func (e *Engine) DepositRequestCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(e.bridge.Len())
}
