package errors

import (
	stderrors "errors"

	"github.com/mezonai/omniverse/bridge"
	"github.com/mezonai/omniverse/engine"
	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/ledger"
)

// NetworkErrorCode represents standardized error codes for network operations
type NetworkErrorCode string

const (
	// General errors
	ErrCodeInternal NetworkErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidRequest   NetworkErrorCode = "invalid_request"
	ErrCodeVerifyFailed     NetworkErrorCode = "verify_failed"
	ErrCodeSignerNotSender  NetworkErrorCode = "signer_not_sender"
	ErrCodeWrongInitiator   NetworkErrorCode = "wrong_initiator"
	ErrCodeInvalidNonce     NetworkErrorCode = "nonce_error"
	ErrCodeInvalidPayload   NetworkErrorCode = "invalid_payload"
	ErrCodeInvalidAmount    NetworkErrorCode = "invalid_amount"
	ErrCodeUnknownChain     NetworkErrorCode = "unknown_chain"
	ErrCodeUnknownOp        NetworkErrorCode = "unknown_op"
	ErrCodeNotOwner         NetworkErrorCode = "not_owner"
	ErrCodeNotCommittee     NetworkErrorCode = "not_committee"
	ErrCodeDepositForbidden NetworkErrorCode = "deposit_not_allowed"

	// Business logic errors
	ErrCodeDuplicated         NetworkErrorCode = "duplicated"
	ErrCodeTransactionCached  NetworkErrorCode = "transaction_cached"
	ErrCodeUserMalicious      NetworkErrorCode = "user_malicious"
	ErrCodeMaliciousDetected  NetworkErrorCode = "malicious_detected"
	ErrCodeExceedBalance      NetworkErrorCode = "exceed_balance"
	ErrCodeNoDelayedTx        NetworkErrorCode = "no_delayed_tx"
	ErrCodeNotExecutable      NetworkErrorCode = "not_executable"
	ErrCodeTransactionMissing NetworkErrorCode = "transaction_not_found"
	ErrCodeIndexError         NetworkErrorCode = "index_error"
	ErrCodeIndexOutOfBound    NetworkErrorCode = "index_out_of_bound"

	// System errors
	ErrCodePersist     NetworkErrorCode = "persist_failed"
	ErrCodeRateLimited NetworkErrorCode = "rate_limited"
)

// NetworkError represents a standardized network error
type NetworkError struct {
	Code    NetworkErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	err, _ := jsonx.Marshal(NetworkError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgInvalidRequest    = "Request format is invalid"
	ErrMsgInvalidAmount     = "Amount is invalid"
	ErrMsgInternal          = "Server error, please try again"
	ErrMsgRateLimited       = "Too many requests, please slow down"
	ErrMsgPersist           = "State was updated but could not be saved"
	ErrMsgRequestBodyLarge  = "Request body exceeds maximum allowed size (%d bytes)"
	ErrMsgTransactionAbsent = "Transaction could not be found"
)

// NewError creates a new NetworkError and returns it as error interface
func NewError(code NetworkErrorCode, message string) error {
	return &NetworkError{
		Code:    code,
		Message: message,
	}
}

var sentinelCodes = []struct {
	target error
	code   NetworkErrorCode
}{
	// malicious first: it may be joined with a persist failure
	{engine.ErrMaliciousDetected, ErrCodeMaliciousDetected},
	{engine.ErrVerifyFailed, ErrCodeVerifyFailed},
	{engine.ErrSignerNotSender, ErrCodeSignerNotSender},
	{bridge.ErrSignerNotSender, ErrCodeSignerNotSender},
	{engine.ErrWrongInitiator, ErrCodeWrongInitiator},
	{engine.ErrNonceError, ErrCodeInvalidNonce},
	{engine.ErrDuplicated, ErrCodeDuplicated},
	{engine.ErrTransactionCached, ErrCodeTransactionCached},
	{engine.ErrUserMalicious, ErrCodeUserMalicious},
	{engine.ErrNotOwner, ErrCodeNotOwner},
	{engine.ErrExceedBalance, ErrCodeExceedBalance},
	{bridge.ErrExceedBalance, ErrCodeExceedBalance},
	{engine.ErrUnknownChain, ErrCodeUnknownChain},
	{engine.ErrUnknownOp, ErrCodeUnknownOp},
	{engine.ErrAmountOverflow, ErrCodeInvalidAmount},
	{engine.ErrInvalidPayload, ErrCodeInvalidPayload},
	{engine.ErrNotCommittee, ErrCodeNotCommittee},
	{bridge.ErrNotCommittee, ErrCodeNotCommittee},
	{engine.ErrDepositNotAllowed, ErrCodeDepositForbidden},
	{engine.ErrNoDelayedTx, ErrCodeNoDelayedTx},
	{engine.ErrNotExecutable, ErrCodeNotExecutable},
	{ledger.ErrTxNotFound, ErrCodeTransactionMissing},
	{bridge.ErrIndexError, ErrCodeIndexError},
	{bridge.ErrIndexOutOfBound, ErrCodeIndexOutOfBound},
	{engine.ErrPersist, ErrCodePersist},
}

// CodeOf returns the stable code for an engine or bridge error.
func CodeOf(err error) NetworkErrorCode {
	for _, sc := range sentinelCodes {
		if stderrors.Is(err, sc.target) {
			return sc.code
		}
	}
	return ErrCodeInternal
}

// FromEngine converts an engine error into a NetworkError. nil stays nil.
func FromEngine(err error) error {
	if err == nil {
		return nil
	}
	var ne *NetworkError
	if stderrors.As(err, &ne) {
		return ne
	}
	code := CodeOf(err)
	msg := err.Error()
	if code == ErrCodeInternal {
		msg = ErrMsgInternal
	}
	return &NetworkError{Code: code, Message: msg}
}
