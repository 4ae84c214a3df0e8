package jsonrpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/mezonai/omniverse/errors"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/types"
)

// JSON-RPC Method name constants
const (
	// Omniverse ledger methods
	MethodSendTransaction        = "omniverse.sendtransaction"
	MethodGetTransactionCount    = "omniverse.gettransactioncount"
	MethodGetTransactionData     = "omniverse.gettransactiondata"
	MethodGetDelayedTxCount      = "omniverse.getdelayedtxcount"
	MethodGetExecutableDelayedTx = "omniverse.getexecutabledelayedtx"
	MethodTriggerExecution       = "omniverse.triggerexecution"
	MethodIsMalicious            = "omniverse.ismalicious"
	MethodBalanceOf              = "omniverse.balanceof"
	MethodNativeBalanceOf        = "omniverse.nativebalanceof"
	MethodGetEvents              = "omniverse.getevents"

	// Bridge methods
	MethodRequestDeposit    = "bridge.requestdeposit"
	MethodApproveDeposit    = "bridge.approvedeposit"
	MethodGetDepositRequest = "bridge.getdepositrequest"
	MethodDealingIndex      = "bridge.dealingindex"

	// Health methods
	MethodHealthCheck = "health.check"
)

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("RPC", "X-Forwarded-For:", xff)
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}

func invalidParam(field string, err error) error {
	return errors.NewError(errors.ErrCodeInvalidRequest, fmt.Sprintf("invalid %s: %v", field, err))
}

func parsePublicKey(field, s string) (types.PublicKey, error) {
	pk, err := types.HexToPublicKey(s)
	if err != nil {
		return types.PublicKey{}, invalidParam(field, err)
	}
	return pk, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, invalidParam(field, fmt.Errorf("%q is not an address", s))
	}
	return common.HexToAddress(s), nil
}

// parseAmount accepts a decimal or 0x-prefixed hex string.
func parseAmount(field, s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidParam(field, fmt.Errorf("empty amount"))
	}
	var (
		amount *uint256.Int
		err    error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		amount, err = uint256.FromHex(s)
	} else {
		amount, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, invalidParam(field, err)
	}
	return amount, nil
}

func parseSignature(field, s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, invalidParam(field, err)
	}
	return sig, nil
}
