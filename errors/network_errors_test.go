package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/omniverse/bridge"
	"github.com/mezonai/omniverse/engine"
	"github.com/mezonai/omniverse/jsonx"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want NetworkErrorCode
	}{
		{engine.ErrVerifyFailed, ErrCodeVerifyFailed},
		{fmt.Errorf("wrapped: %w", engine.ErrNonceError), ErrCodeInvalidNonce},
		{bridge.ErrIndexOutOfBound, ErrCodeIndexOutOfBound},
		{bridge.ErrNotCommittee, ErrCodeNotCommittee},
		{engine.ErrAmountOverflow, ErrCodeInvalidAmount},
		{stderrors.Join(engine.ErrMaliciousDetected, engine.ErrPersist), ErrCodeMaliciousDetected},
		{fmt.Errorf("%w: disk full", engine.ErrPersist), ErrCodePersist},
		{stderrors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), tt.err.Error())
	}
}

func TestFromEngine(t *testing.T) {
	assert.NoError(t, FromEngine(nil))

	err := FromEngine(engine.ErrExceedBalance)
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, ErrCodeExceedBalance, ne.Code)
	assert.Equal(t, engine.ErrExceedBalance.Error(), ne.Message)

	err = FromEngine(stderrors.New("leveldb: closed"))
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, ErrCodeInternal, ne.Code)
	assert.Equal(t, ErrMsgInternal, ne.Message, "internal details stay server side")

	original := NewError(ErrCodeRateLimited, ErrMsgRateLimited)
	assert.Same(t, original, FromEngine(original))
}

func TestNetworkErrorIsJSON(t *testing.T) {
	err := NewError(ErrCodeRateLimited, ErrMsgRateLimited)

	var decoded NetworkError
	require.NoError(t, jsonx.Unmarshal([]byte(err.Error()), &decoded))
	assert.Equal(t, ErrCodeRateLimited, decoded.Code)
	assert.Equal(t, ErrMsgRateLimited, decoded.Message)
}
