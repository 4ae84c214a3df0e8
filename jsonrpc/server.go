package jsonrpc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/codec"
	"github.com/mezonai/omniverse/errors"
	"github.com/mezonai/omniverse/events"
	"github.com/mezonai/omniverse/exception"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/ratelimit"
	"github.com/mezonai/omniverse/signer"
	"github.com/mezonai/omniverse/types"
)

const maxRequestBodyBytes = 1 << 20

// jrpc2 error codes for NetworkError codes
const (
	codeInvalidParams jrpc2.Code = -32602
	codeInternal      jrpc2.Code = -32603
	codeRejected      jrpc2.Code = -32000
	codeRateLimited   jrpc2.Code = -32005
)

// Backend is the omniverse state machine the server exposes. *engine.Engine implements it.
type Backend interface {
	Submit(tx *types.OmniverseTx) error
	TriggerExecution() error
	GetTransactionCount(pk types.PublicKey) uint64
	GetTransactionData(pk types.PublicKey, nonce uint64) (*types.OmniverseTx, error)
	GetDelayedTxCount() uint64
	GetExecutableDelayedTx() (*types.QueueEntry, bool)
	IsMalicious(pk types.PublicKey) bool
	OmniverseBalanceOf(pk types.PublicKey) *uint256.Int
	NativeBalanceOf(addr common.Address) *uint256.Int
	RequestDepositSigned(receiver types.PublicKey, amount *uint256.Int, signature []byte) (uint64, error)
	ApproveDepositSigned(index, nonce uint64, signature []byte) error
	GetDepositRequest(index uint64) (*types.DepositRequest, error)
	DepositDealingIndex() uint64
	DepositRequestCount() uint64
	EventsSince(seq uint64) []events.OmniverseEvent
}

func toJRPC2Error(err error) error {
	if err == nil {
		return nil
	}
	var rle *ratelimit.RateLimitError
	if stderrors.As(err, &rle) {
		err = errors.NewError(errors.ErrCodeRateLimited, errors.ErrMsgRateLimited)
	}
	var ne *errors.NetworkError
	if !stderrors.As(errors.FromEngine(err), &ne) {
		return jrpc2.Errorf(codeInternal, "%s", err.Error())
	}
	return jrpc2.Errorf(jrpcCode(ne.Code), "%s", ne.Message).WithData(ne)
}

func jrpcCode(code errors.NetworkErrorCode) jrpc2.Code {
	switch code {
	case errors.ErrCodeInvalidRequest:
		return codeInvalidParams
	case errors.ErrCodeRateLimited:
		return codeRateLimited
	case errors.ErrCodeInternal, errors.ErrCodePersist:
		return codeInternal
	default:
		return codeRejected
	}
}

// --- Params/Results ---

type sendTransactionParams struct {
	Tx types.OmniverseTx `json:"tx"`
}

type sendTransactionResponse struct {
	TxHash string `json:"tx_hash"`
}

type pubKeyParams struct {
	PubKey string `json:"pubkey"`
}

type transactionCountResponse struct {
	PubKey string `json:"pubkey"`
	Count  uint64 `json:"count"`
}

type transactionDataParams struct {
	PubKey string `json:"pubkey"`
	Nonce  uint64 `json:"nonce"`
}

type transactionDataResponse struct {
	TxHash string             `json:"tx_hash"`
	Tx     *types.OmniverseTx `json:"tx"`
}

type countResponse struct {
	Count uint64 `json:"count"`
}

type executableDelayedTxResponse struct {
	Executable bool              `json:"executable"`
	Entry      *types.QueueEntry `json:"entry,omitempty"`
}

type triggerExecutionResponse struct {
	Executed bool `json:"executed"`
}

type isMaliciousResponse struct {
	PubKey    string `json:"pubkey"`
	Malicious bool   `json:"malicious"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type addressParams struct {
	Address string `json:"address"`
}

type getEventsParams struct {
	Since uint64 `json:"since"`
}

type eventInfo struct {
	Seq       uint64 `json:"seq"`
	Type      string `json:"type"`
	TxHash    string `json:"tx_hash"`
	Timestamp uint64 `json:"timestamp"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Nonce     uint64 `json:"nonce,omitempty"`
	Op        string `json:"op,omitempty"`
	Amount    string `json:"amount,omitempty"`
	ChainID   uint32 `json:"chain_id"`
	Native    string `json:"native_address,omitempty"`
	Credited  bool   `json:"credited,omitempty"`
}

type getEventsResponse struct {
	Events []eventInfo `json:"events"`
}

// requestDepositParams carries the receiver's signature over
// codec.DepositRequestDigest(receiver, amount, index of the next request).
type requestDepositParams struct {
	Receiver  string `json:"receiver"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

type requestDepositResponse struct {
	Index uint64 `json:"index"`
}

type approveDepositParams struct {
	Index     uint64 `json:"index"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

type approveDepositResponse struct {
	Approved bool   `json:"approved"`
	Index    uint64 `json:"index"`
}

type depositIndexParams struct {
	Index uint64 `json:"index"`
}

type dealingIndexResponse struct {
	DealingIndex uint64 `json:"dealing_index"`
	Count        uint64 `json:"count"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// --- Server ---

type Server struct {
	addr       string
	backend    Backend
	limiter    *ratelimit.CallerLimiter
	corsConfig CORSConfig
	httpServer *http.Server
	bridge     bridgeHandler
}

type bridgeHandler interface {
	http.Handler
	Close() error
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// NewServer builds a server for backend. limiter may be nil.
func NewServer(addr string, backend Backend, limiter *ratelimit.CallerLimiter) *Server {
	return &Server{
		addr:    addr,
		backend: backend,
		limiter: limiter,
	}
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// Handler returns the HTTP handler serving the JSON-RPC bridge.
func (s *Server) Handler() http.Handler {
	if s.bridge == nil {
		s.bridge = jhttp.NewBridge(s.buildMethodMap(), &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})
	}
	jh := s.bridge

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := s.limiter.AllowIP(extractClientIPFromRequest(r)); err != nil {
			logx.Warn("RPC", err.Error())
			http.Error(w, errors.NewError(errors.ErrCodeRateLimited, errors.ErrMsgRateLimited).Error(), http.StatusTooManyRequests)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		jh.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logx.Info("RPC", fmt.Sprintf("JSON-RPC server listening | addr=%s", ln.Addr()))
	srv := s.httpServer
	exception.SafeGo("JSONRPCServer", func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logx.Error("RPC", fmt.Sprintf("JSON-RPC server stopped: %v", err))
		}
	})
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.bridge != nil {
		if cerr := s.bridge.Close(); cerr != nil {
			logx.Warn("RPC", fmt.Sprintf("Closing JSON-RPC bridge: %v", cerr))
		}
	}
	s.limiter.Stop()
	return err
}

// observe records the call outcome and converts err for the wire.
func observe(method string, err error) error {
	if err == nil {
		monitoring.RecordRPCRequest(method, "ok")
		return nil
	}
	monitoring.RecordRPCRequest(method, string(errors.CodeOf(err)))
	logx.Debug("RPC", fmt.Sprintf("%s failed: %v", method, err))
	return toJRPC2Error(err)
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodSendTransaction: handler.New(func(ctx context.Context, p sendTransactionParams) (*sendTransactionResponse, error) {
			res, err := s.rpcSendTransaction(p)
			return res, observe(MethodSendTransaction, err)
		}),
		MethodGetTransactionCount: handler.New(func(ctx context.Context, p pubKeyParams) (*transactionCountResponse, error) {
			res, err := s.rpcGetTransactionCount(p)
			return res, observe(MethodGetTransactionCount, err)
		}),
		MethodGetTransactionData: handler.New(func(ctx context.Context, p transactionDataParams) (*transactionDataResponse, error) {
			res, err := s.rpcGetTransactionData(p)
			return res, observe(MethodGetTransactionData, err)
		}),
		MethodGetDelayedTxCount: handler.New(func(ctx context.Context) (*countResponse, error) {
			return &countResponse{Count: s.backend.GetDelayedTxCount()}, observe(MethodGetDelayedTxCount, nil)
		}),
		MethodGetExecutableDelayedTx: handler.New(func(ctx context.Context) (*executableDelayedTxResponse, error) {
			entry, ok := s.backend.GetExecutableDelayedTx()
			return &executableDelayedTxResponse{Executable: ok, Entry: entry}, observe(MethodGetExecutableDelayedTx, nil)
		}),
		MethodTriggerExecution: handler.New(func(ctx context.Context) (*triggerExecutionResponse, error) {
			res, err := s.rpcTriggerExecution()
			return res, observe(MethodTriggerExecution, err)
		}),
		MethodIsMalicious: handler.New(func(ctx context.Context, p pubKeyParams) (*isMaliciousResponse, error) {
			res, err := s.rpcIsMalicious(p)
			return res, observe(MethodIsMalicious, err)
		}),
		MethodBalanceOf: handler.New(func(ctx context.Context, p pubKeyParams) (*balanceResponse, error) {
			res, err := s.rpcBalanceOf(p)
			return res, observe(MethodBalanceOf, err)
		}),
		MethodNativeBalanceOf: handler.New(func(ctx context.Context, p addressParams) (*balanceResponse, error) {
			res, err := s.rpcNativeBalanceOf(p)
			return res, observe(MethodNativeBalanceOf, err)
		}),
		MethodGetEvents: handler.New(func(ctx context.Context, p getEventsParams) (*getEventsResponse, error) {
			return s.rpcGetEvents(p), observe(MethodGetEvents, nil)
		}),
		MethodRequestDeposit: handler.New(func(ctx context.Context, p requestDepositParams) (*requestDepositResponse, error) {
			res, err := s.rpcRequestDeposit(p)
			return res, observe(MethodRequestDeposit, err)
		}),
		MethodApproveDeposit: handler.New(func(ctx context.Context, p approveDepositParams) (*approveDepositResponse, error) {
			res, err := s.rpcApproveDeposit(p)
			return res, observe(MethodApproveDeposit, err)
		}),
		MethodGetDepositRequest: handler.New(func(ctx context.Context, p depositIndexParams) (*types.DepositRequest, error) {
			res, err := s.backend.GetDepositRequest(p.Index)
			return res, observe(MethodGetDepositRequest, err)
		}),
		MethodDealingIndex: handler.New(func(ctx context.Context) (*dealingIndexResponse, error) {
			return &dealingIndexResponse{
				DealingIndex: s.backend.DepositDealingIndex(),
				Count:        s.backend.DepositRequestCount(),
			}, observe(MethodDealingIndex, nil)
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthResponse, error) {
			return &healthResponse{Status: "ok"}, nil
		}),
	}
}

// --- Implementations ---

func (s *Server) rpcSendTransaction(p sendTransactionParams) (*sendTransactionResponse, error) {
	tx := &p.Tx
	if tx.Amount == nil {
		return nil, invalidParam("tx.amount", fmt.Errorf("missing"))
	}
	if err := s.limiter.AllowCaller(signer.AddressOf(tx.From).Hex()); err != nil {
		return nil, err
	}
	if err := s.backend.Submit(tx); err != nil {
		return nil, err
	}
	digest, err := codec.Digest(tx)
	if err != nil {
		return nil, err
	}
	return &sendTransactionResponse{TxHash: digest.Hex()}, nil
}

func (s *Server) rpcGetTransactionCount(p pubKeyParams) (*transactionCountResponse, error) {
	pk, err := parsePublicKey("pubkey", p.PubKey)
	if err != nil {
		return nil, err
	}
	return &transactionCountResponse{PubKey: pk.Hex(), Count: s.backend.GetTransactionCount(pk)}, nil
}

func (s *Server) rpcGetTransactionData(p transactionDataParams) (*transactionDataResponse, error) {
	pk, err := parsePublicKey("pubkey", p.PubKey)
	if err != nil {
		return nil, err
	}
	tx, err := s.backend.GetTransactionData(pk, p.Nonce)
	if err != nil {
		return nil, err
	}
	digest, err := codec.Digest(tx)
	if err != nil {
		return nil, err
	}
	return &transactionDataResponse{TxHash: digest.Hex(), Tx: tx}, nil
}

func (s *Server) rpcTriggerExecution() (*triggerExecutionResponse, error) {
	if err := s.backend.TriggerExecution(); err != nil {
		return nil, err
	}
	return &triggerExecutionResponse{Executed: true}, nil
}

func (s *Server) rpcIsMalicious(p pubKeyParams) (*isMaliciousResponse, error) {
	pk, err := parsePublicKey("pubkey", p.PubKey)
	if err != nil {
		return nil, err
	}
	return &isMaliciousResponse{PubKey: pk.Hex(), Malicious: s.backend.IsMalicious(pk)}, nil
}

func (s *Server) rpcBalanceOf(p pubKeyParams) (*balanceResponse, error) {
	pk, err := parsePublicKey("pubkey", p.PubKey)
	if err != nil {
		return nil, err
	}
	return &balanceResponse{Balance: s.backend.OmniverseBalanceOf(pk).Dec()}, nil
}

func (s *Server) rpcNativeBalanceOf(p addressParams) (*balanceResponse, error) {
	addr, err := parseAddress("address", p.Address)
	if err != nil {
		return nil, err
	}
	return &balanceResponse{Balance: s.backend.NativeBalanceOf(addr).Dec()}, nil
}

func (s *Server) rpcGetEvents(p getEventsParams) *getEventsResponse {
	evs := s.backend.EventsSince(p.Since)
	out := make([]eventInfo, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toEventInfo(ev))
	}
	return &getEventsResponse{Events: out}
}

func toEventInfo(ev events.OmniverseEvent) eventInfo {
	info := eventInfo{
		Seq:       ev.Seq(),
		Type:      string(ev.Type()),
		TxHash:    ev.TxHash().Hex(),
		Timestamp: ev.Timestamp(),
	}
	switch e := ev.(type) {
	case *events.TransactionSent:
		info.From = e.Sender().Hex()
		info.Nonce = e.Nonce()
		info.Op = e.Op().String()
		info.ChainID = e.ChainID()
	case *events.OmniverseTokenTransfer:
		info.From = e.From().Hex()
		info.To = e.To().Hex()
		info.Amount = e.Amount().Dec()
	case *events.OmniverseTokenWithdraw:
		info.From = e.From().Hex()
		info.Amount = e.Amount().Dec()
		info.ChainID = e.ChainID()
		info.Native = e.NativeAddress().Hex()
		info.Credited = e.Credited()
	case *events.OmniverseTokenDeposit:
		info.From = e.From().Hex()
		info.To = e.To().Hex()
		info.Amount = e.Amount().Dec()
		info.ChainID = e.ChainID()
	}
	return info
}

func (s *Server) rpcRequestDeposit(p requestDepositParams) (*requestDepositResponse, error) {
	receiver, err := parsePublicKey("receiver", p.Receiver)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature("signature", p.Signature)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.AllowCaller(signer.AddressOf(receiver).Hex()); err != nil {
		return nil, err
	}
	index, err := s.backend.RequestDepositSigned(receiver, amount, sig)
	if err != nil {
		return nil, err
	}
	return &requestDepositResponse{Index: index}, nil
}

func (s *Server) rpcApproveDeposit(p approveDepositParams) (*approveDepositResponse, error) {
	sig, err := parseSignature("signature", p.Signature)
	if err != nil {
		return nil, err
	}
	// only the committee can approve, so every approval shares one bucket
	if err := s.limiter.AllowCaller(MethodApproveDeposit); err != nil {
		return nil, err
	}
	if err := s.backend.ApproveDepositSigned(p.Index, p.Nonce, sig); err != nil {
		return nil, err
	}
	return &approveDepositResponse{Approved: true, Index: p.Index}, nil
}

// --- Helpers ---

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}

	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(s.corsConfig.AllowedMethods, ", "))
	}
	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(s.corsConfig.AllowedHeaders, ", "))
	}
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	var maxAge int
	if v, err := strconv.Atoi(os.Getenv("CORS_MAX_AGE")); err == nil {
		maxAge = v
	}

	cfg := CORSConfig{
		AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowedMethods: splitAndTrim(os.Getenv("CORS_ALLOWED_METHODS")),
		AllowedHeaders: splitAndTrim(os.Getenv("CORS_ALLOWED_HEADERS")),
		MaxAge:         maxAge,
	}
	provided := len(cfg.AllowedOrigins) > 0 || len(cfg.AllowedMethods) > 0 || len(cfg.AllowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}
	return cfg, true
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
