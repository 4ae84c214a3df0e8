package engine

import (
	"errors"

	"github.com/mezonai/omniverse/codec"
)

// Admission errors. Only ErrMaliciousDetected leaves a trace in state.
var (
	ErrVerifyFailed      = errors.New("verify failed")
	ErrSignerNotSender   = errors.New("signer not sender")
	ErrWrongInitiator    = errors.New("wrong initiator")
	ErrNonceError        = errors.New("nonce error")
	ErrDuplicated        = errors.New("duplicated")
	ErrTransactionCached = errors.New("transaction cached")
	ErrUserMalicious     = errors.New("user malicious")
	ErrNotOwner          = errors.New("not owner")
	ErrExceedBalance     = errors.New("exceed balance")

	ErrMaliciousDetected = errors.New("conflicting transaction, sender marked malicious")
	ErrUnknownChain      = errors.New("chain is neither local nor a member")
	ErrUnknownOp         = errors.New("unknown op")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrAmountOverflow    = codec.ErrAmountOverflow
	ErrNotCommittee      = errors.New("deposit sender is not the committee")
	ErrDepositNotAllowed = errors.New("local deposit must go through committee approval")
)

// Execution errors.
var (
	ErrNoDelayedTx   = errors.New("no delayed tx")
	ErrNotExecutable = errors.New("not executable")
)

// ErrPersist wraps a failed state commit. The in-memory state already reflects the call.
var ErrPersist = errors.New("failed to persist state")
