package jsonrpc

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/omniverse/clock"
	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/engine"
	"github.com/mezonai/omniverse/errors"
	"github.com/mezonai/omniverse/jsonx"
	"github.com/mezonai/omniverse/ratelimit"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

const (
	localChain = uint32(7)
	cooldown   = uint64(5)
)

var contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type rpcErrorBody struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    errors.NetworkError `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type rpcHarness struct {
	t         *testing.T
	eng       *engine.Engine
	clk       *clock.ManualClock
	srv       *Server
	http      *httptest.Server
	owner     *ecdsa.PrivateKey
	committee *ecdsa.PrivateKey
	alice     *ecdsa.PrivateKey
	nextID    int
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := signer.GenerateKey()
	require.NoError(t, err)
	return key
}

func newRPCHarness(t *testing.T, limiter *ratelimit.CallerLimiter) *rpcHarness {
	t.Helper()
	h := &rpcHarness{
		t:         t,
		clk:       clock.NewManualClock(100),
		owner:     newKey(t),
		committee: newKey(t),
		alice:     newKey(t),
	}
	h.eng = engine.New(engine.Config{
		ChainID:   localChain,
		Address:   contractAddr,
		Owner:     signer.PublicKeyOf(h.owner),
		Committee: signer.PublicKeyOf(h.committee),
		Cooldown:  cooldown,
	}, nil, h.clk, nil, nil)
	h.srv = NewServer("127.0.0.1:0", h.eng, limiter)
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		h.srv.Shutdown(context.Background())
	})
	return h
}

func (h *rpcHarness) post(method string, params interface{}) (*http.Response, []byte) {
	h.t.Helper()
	h.nextID++
	req := map[string]interface{}{"jsonrpc": "2.0", "id": h.nextID, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := jsonx.Marshal(req)
	require.NoError(h.t, err)

	httpReq, err := http.NewRequest(http.MethodPost, h.http.URL, bytes.NewReader(body))
	require.NoError(h.t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Client().Do(httpReq)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(h.t, err)
	return resp, buf.Bytes()
}

// call invokes method and decodes its result into out, returning the JSON-RPC error if any.
func (h *rpcHarness) call(method string, params interface{}, out interface{}) *rpcErrorBody {
	h.t.Helper()
	resp, body := h.post(method, params)
	require.Equal(h.t, http.StatusOK, resp.StatusCode, string(body))

	var r rpcResponse
	require.NoError(h.t, jsonx.Unmarshal(body, &r), string(body))
	if r.Error != nil {
		return r.Error
	}
	if out != nil {
		require.NoError(h.t, jsonx.Unmarshal(r.Result, out), string(r.Result))
	}
	return nil
}

func (h *rpcHarness) mustCall(method string, params interface{}, out interface{}) {
	h.t.Helper()
	rpcErr := h.call(method, params, out)
	require.Nil(h.t, rpcErr, "%s: %+v", method, rpcErr)
}

func (h *rpcHarness) signed(key *ecdsa.PrivateKey, op types.Op, data []byte, amount uint64) *types.OmniverseTx {
	h.t.Helper()
	tx := &types.OmniverseTx{
		Nonce:     h.eng.GetTransactionCount(signer.PublicKeyOf(key)),
		ChainID:   localChain,
		Initiator: contractAddr,
		From:      signer.PublicKeyOf(key),
		Op:        op,
		Data:      data,
		Amount:    uint256.NewInt(amount),
	}
	require.NoError(h.t, signer.SignTx(tx, key))
	return tx
}

// execute sends tx over RPC and triggers it once cooled down.
func (h *rpcHarness) execute(tx *types.OmniverseTx) {
	h.t.Helper()
	h.mustCall(MethodSendTransaction, sendTransactionParams{Tx: *tx}, nil)
	h.clk.Advance(cooldown)
	h.mustCall(MethodTriggerExecution, nil, nil)
}

func TestHealthCheck(t *testing.T) {
	h := newRPCHarness(t, nil)
	var res healthResponse
	h.mustCall(MethodHealthCheck, nil, &res)
	assert.Equal(t, "ok", res.Status)
}

func TestSendTransactionAndTrigger(t *testing.T) {
	h := newRPCHarness(t, nil)
	alice := signer.PublicKeyOf(h.alice)
	owner := signer.PublicKeyOf(h.owner)
	mint := h.signed(h.owner, types.OpMint, alice.Bytes(), 7)
	digest, err := codec.Digest(mint)
	require.NoError(t, err)

	var sent sendTransactionResponse
	h.mustCall(MethodSendTransaction, sendTransactionParams{Tx: *mint}, &sent)
	assert.Equal(t, digest.Hex(), sent.TxHash)

	var count countResponse
	h.mustCall(MethodGetDelayedTxCount, nil, &count)
	assert.Equal(t, uint64(1), count.Count)

	var exec executableDelayedTxResponse
	h.mustCall(MethodGetExecutableDelayedTx, nil, &exec)
	assert.False(t, exec.Executable)

	rpcErr := h.call(MethodTriggerExecution, nil, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, int(codeRejected), rpcErr.Code)
	assert.Equal(t, errors.ErrCodeNotExecutable, rpcErr.Data.Code)

	h.clk.Advance(cooldown)
	h.mustCall(MethodGetExecutableDelayedTx, nil, &exec)
	require.True(t, exec.Executable)
	assert.Equal(t, owner, exec.Entry.Sender)

	var trig triggerExecutionResponse
	h.mustCall(MethodTriggerExecution, nil, &trig)
	assert.True(t, trig.Executed)

	var bal balanceResponse
	h.mustCall(MethodBalanceOf, pubKeyParams{PubKey: alice.Hex()}, &bal)
	assert.Equal(t, "7", bal.Balance)

	var txCount transactionCountResponse
	h.mustCall(MethodGetTransactionCount, pubKeyParams{PubKey: owner.Hex()}, &txCount)
	assert.Equal(t, uint64(1), txCount.Count)

	var data transactionDataResponse
	h.mustCall(MethodGetTransactionData, transactionDataParams{PubKey: owner.Hex(), Nonce: 0}, &data)
	assert.Equal(t, digest.Hex(), data.TxHash)
	require.NotNil(t, data.Tx)
	assert.Equal(t, types.OpMint, data.Tx.Op)
	assert.Equal(t, uint64(7), data.Tx.Amount.Uint64())

	var evs getEventsResponse
	h.mustCall(MethodGetEvents, getEventsParams{Since: 0}, &evs)
	require.Len(t, evs.Events, 2)
	assert.Equal(t, "TransactionSent", evs.Events[0].Type)
	assert.Equal(t, "mint", evs.Events[0].Op)
	assert.Equal(t, "OmniverseTokenTransfer", evs.Events[1].Type)
	assert.Equal(t, alice.Hex(), evs.Events[1].To)
	assert.Equal(t, "7", evs.Events[1].Amount)
	assert.Equal(t, uint64(1), evs.Events[1].Seq)
}

func TestRejectionsCarryCodes(t *testing.T) {
	h := newRPCHarness(t, nil)
	alice := signer.PublicKeyOf(h.alice)
	mint := h.signed(h.owner, types.OpMint, alice.Bytes(), 1)
	h.execute(mint)

	rpcErr := h.call(MethodSendTransaction, sendTransactionParams{Tx: *mint}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeDuplicated, rpcErr.Data.Code)

	notOwner := h.signed(h.alice, types.OpMint, alice.Bytes(), 1)
	rpcErr = h.call(MethodSendTransaction, sendTransactionParams{Tx: *notOwner}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeNotOwner, rpcErr.Data.Code)

	rpcErr = h.call(MethodBalanceOf, pubKeyParams{PubKey: "0x1234"}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, int(codeInvalidParams), rpcErr.Code)
	assert.Equal(t, errors.ErrCodeInvalidRequest, rpcErr.Data.Code)

	rpcErr = h.call(MethodGetTransactionData, transactionDataParams{PubKey: alice.Hex(), Nonce: 0}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeTransactionMissing, rpcErr.Data.Code)

	var mal isMaliciousResponse
	h.mustCall(MethodIsMalicious, pubKeyParams{PubKey: alice.Hex()}, &mal)
	assert.False(t, mal.Malicious)
}

func TestBridgeMethods(t *testing.T) {
	h := newRPCHarness(t, nil)
	alice := signer.PublicKeyOf(h.alice)
	aliceAddr := signer.AddressOf(alice)
	committee := signer.PublicKeyOf(h.committee)

	h.execute(h.signed(h.owner, types.OpMint, alice.Bytes(), 10))
	h.execute(h.signed(h.alice, types.OpWithdraw, nil, 3))

	var bal balanceResponse
	h.mustCall(MethodNativeBalanceOf, addressParams{Address: aliceAddr.Hex()}, &bal)
	assert.Equal(t, "3", bal.Balance)

	var req requestDepositResponse
	h.mustCall(MethodRequestDeposit, h.depositRequest(h.alice, alice, 2, 0), &req)
	assert.Equal(t, uint64(0), req.Index)

	var dealing dealingIndexResponse
	h.mustCall(MethodDealingIndex, nil, &dealing)
	assert.Equal(t, dealingIndexResponse{DealingIndex: 0, Count: 1}, dealing)

	deposit := &types.OmniverseTx{
		Nonce:     h.eng.GetTransactionCount(committee),
		ChainID:   localChain,
		Initiator: contractAddr,
		From:      committee,
		Op:        types.OpDeposit,
		Data:      alice.Bytes(),
		Amount:    uint256.NewInt(2),
	}
	require.NoError(t, signer.SignTx(deposit, h.committee))
	approve := approveDepositParams{
		Index:     0,
		Nonce:     deposit.Nonce,
		Signature: hexutil.Encode(deposit.Signature),
	}

	// the same deposit signed by alice does not come from the committee
	forged := *deposit
	require.NoError(t, signer.SignTx(&forged, h.alice))
	rpcErr := h.call(MethodApproveDeposit, approveDepositParams{Index: 0, Nonce: forged.Nonce, Signature: hexutil.Encode(forged.Signature)}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeSignerNotSender, rpcErr.Data.Code)

	approve.Index = 1
	rpcErr = h.call(MethodApproveDeposit, approve, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeIndexError, rpcErr.Data.Code)

	approve.Index = 0
	var approved approveDepositResponse
	h.mustCall(MethodApproveDeposit, approve, &approved)
	assert.True(t, approved.Approved)

	var stored types.DepositRequest
	h.mustCall(MethodGetDepositRequest, depositIndexParams{Index: 0}, &stored)
	assert.Equal(t, types.DepositApproved, stored.Status)
	assert.Equal(t, alice, stored.Receiver)

	rpcErr = h.call(MethodGetDepositRequest, depositIndexParams{Index: 5}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeIndexOutOfBound, rpcErr.Data.Code)

	// the approved deposit credits alice once it cools down
	h.clk.Advance(cooldown)
	h.mustCall(MethodTriggerExecution, nil, nil)
	h.mustCall(MethodBalanceOf, pubKeyParams{PubKey: alice.Hex()}, &bal)
	assert.Equal(t, "9", bal.Balance)
}

// depositRequest builds requestdeposit params for receiver signed by key at index.
func (h *rpcHarness) depositRequest(key *ecdsa.PrivateKey, receiver types.PublicKey, amount, index uint64) requestDepositParams {
	h.t.Helper()
	digest, err := codec.DepositRequestDigest(receiver, uint256.NewInt(amount), index)
	require.NoError(h.t, err)
	sig, err := signer.Sign(digest, key)
	require.NoError(h.t, err)
	return requestDepositParams{
		Receiver:  receiver.Hex(),
		Amount:    fmt.Sprintf("0x%x", amount),
		Signature: hexutil.Encode(sig),
	}
}

func TestRequestDepositNeedsReceiverSignature(t *testing.T) {
	h := newRPCHarness(t, nil)
	alice := signer.PublicKeyOf(h.alice)
	aliceAddr := signer.AddressOf(alice)

	h.execute(h.signed(h.owner, types.OpMint, alice.Bytes(), 10))
	h.execute(h.signed(h.alice, types.OpWithdraw, nil, 3))

	// a client without alice's key cannot move her native balance
	stranger := newKey(t)
	rpcErr := h.call(MethodRequestDeposit, h.depositRequest(stranger, alice, 3, 0), nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeSignerNotSender, rpcErr.Data.Code)

	// alice's signature for another index or amount does not recover to alice
	rpcErr = h.call(MethodRequestDeposit, h.depositRequest(h.alice, alice, 3, 1), nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeSignerNotSender, rpcErr.Data.Code)
	params := h.depositRequest(h.alice, alice, 3, 0)
	params.Amount = "2"
	rpcErr = h.call(MethodRequestDeposit, params, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeSignerNotSender, rpcErr.Data.Code)

	params.Signature = "0x1234"
	rpcErr = h.call(MethodRequestDeposit, params, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeVerifyFailed, rpcErr.Data.Code)

	var bal balanceResponse
	h.mustCall(MethodNativeBalanceOf, addressParams{Address: aliceAddr.Hex()}, &bal)
	assert.Equal(t, "3", bal.Balance)
	assert.Equal(t, uint64(0), h.eng.DepositRequestCount())

	// a signature is good for one request only
	signed := h.depositRequest(h.alice, alice, 1, 0)
	var req requestDepositResponse
	h.mustCall(MethodRequestDeposit, signed, &req)
	assert.Equal(t, uint64(0), req.Index)
	rpcErr = h.call(MethodRequestDeposit, signed, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, errors.ErrCodeSignerNotSender, rpcErr.Data.Code)

	h.mustCall(MethodNativeBalanceOf, addressParams{Address: aliceAddr.Hex()}, &bal)
	assert.Equal(t, "2", bal.Balance)
}

func TestCallerRateLimit(t *testing.T) {
	h := newRPCHarness(t, nil)
	h.srv.limiter = ratelimit.NewCallerLimiter(1)
	alice := signer.PublicKeyOf(h.alice)

	// first call passes the limiter and fails in the engine
	_, err := h.srv.rpcRequestDeposit(h.depositRequest(h.alice, alice, 1, 0))
	require.Error(t, err)
	var rle *ratelimit.RateLimitError
	assert.False(t, stderrors.As(err, &rle))

	_, err = h.srv.rpcRequestDeposit(h.depositRequest(h.alice, alice, 1, 0))
	require.True(t, stderrors.As(err, &rle), "%v", err)
	assert.Equal(t, "caller", rle.Type)
}

func TestIPRateLimit(t *testing.T) {
	h := newRPCHarness(t, ratelimit.NewCallerLimiter(1))

	h.mustCall(MethodHealthCheck, nil, nil)
	resp, body := h.post(MethodHealthCheck, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), string(errors.ErrCodeRateLimited))
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CORS_MAX_AGE", "60")
	cfg, ok := CORSFromEnv()
	require.True(t, ok)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)

	h := newRPCHarness(t, nil)
	h.srv.SetCORSConfig(cfg)

	req, err := http.NewRequest(http.MethodOptions, h.http.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://b.example")
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://b.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "60", resp.Header.Get("Access-Control-Max-Age"))
}

func TestCORSFromEnvUnset(t *testing.T) {
	for _, k := range []string{"CORS_ALLOWED_ORIGINS", "CORS_ALLOWED_METHODS", "CORS_ALLOWED_HEADERS", "CORS_MAX_AGE"} {
		t.Setenv(k, "")
	}
	_, ok := CORSFromEnv()
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]uint64{"15": 15, "0xf": 15, " 3 ": 3} {
		got, err := parseAmount("amount", in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Uint64(), in)
	}
	for _, in := range []string{"", "-1", "abc", fmt.Sprintf("0x1%064d", 0)} {
		_, err := parseAmount("amount", in)
		assert.Error(t, err, in)
	}
}
