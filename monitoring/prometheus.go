package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mezonai/omniverse/logx"
)

type TxRejectedReason string

var (
	TxVerifyFailed      TxRejectedReason = "verify_failed"
	TxSignerNotSender   TxRejectedReason = "signer_not_sender"
	TxWrongInitiator    TxRejectedReason = "wrong_initiator"
	TxInvalidNonce      TxRejectedReason = "invalid_nonce"
	TxDuplicated        TxRejectedReason = "duplicated"
	TxCached            TxRejectedReason = "transaction_cached"
	TxUserMalicious     TxRejectedReason = "user_malicious"
	TxMaliciousDetected TxRejectedReason = "malicious_detected"
	TxNotOwner          TxRejectedReason = "not_owner"
	TxExceedBalance     TxRejectedReason = "exceed_balance"
	TxInvalidPayload    TxRejectedReason = "invalid_payload"
	TxUnknownChain      TxRejectedReason = "unknown_chain"
	TxDepositNotAllowed TxRejectedReason = "deposit_not_allowed"
	TxRejectedUnknown   TxRejectedReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds   prometheus.Gauge
	delayedQueueSize    prometheus.Gauge
	admittedTxCount     prometheus.Counter
	rejectedTxCount     *prometheus.CounterVec
	executedTxCount     *prometheus.CounterVec
	maliciousCount      prometheus.Counter
	depositRequestCount prometheus.Counter
	depositApproveCount prometheus.Counter
	rpcRequestCount     *prometheus.CounterVec
	panicCount          prometheus.Counter
	eventSubscribers    prometheus.Gauge
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "omniverse_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		delayedQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "omniverse_delayed_queue_size",
				Help: "Number of admitted transactions waiting for their cooldown",
			},
		),
		admittedTxCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "omniverse_admitted_tx_count",
				Help: "The total number of transactions admitted into the delayed queue",
			},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omniverse_rejected_tx_count",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		executedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omniverse_executed_tx_count",
				Help: "The total number of executed transactions",
			},
			[]string{"op"},
		),
		maliciousCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "omniverse_malicious_detected_count",
				Help: "The total number of accounts marked malicious",
			},
		),
		depositRequestCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "omniverse_deposit_request_count",
				Help: "The total number of deposit requests",
			},
		),
		depositApproveCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "omniverse_deposit_approved_count",
				Help: "The total number of deposit requests approved by the committee",
			},
		),
		rpcRequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omniverse_rpc_request_count",
				Help: "The total number of JSON-RPC requests",
			},
			[]string{"method", "status"},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "omniverse_panic_count",
				Help: "The total number of recovered goroutine panics",
			},
		),
		eventSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "omniverse_event_subscribers",
				Help: "Number of live event bus subscriptions",
			},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	initOnce    sync.Once
)

// InitMetrics registers the node metrics once. Recording helpers are no-ops until it is called.
func InitMetrics() {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
		nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetDelayedQueueSize(size int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.delayedQueueSize.Set(float64(size))
}

func IncreaseAdmittedTxCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.admittedTxCount.Inc()
}

func RecordRejectedTx(reason TxRejectedReason) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.rejectedTxCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func RecordExecutedTx(op string) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.executedTxCount.With(prometheus.Labels{
		"op": op,
	}).Inc()
}

func IncreaseMaliciousCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.maliciousCount.Inc()
}

func IncreaseDepositRequestCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.depositRequestCount.Inc()
}

func IncreaseDepositApproveCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.depositApproveCount.Inc()
}

func RecordRPCRequest(method, status string) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.rpcRequestCount.With(prometheus.Labels{
		"method": method,
		"status": status,
	}).Inc()
}

func IncreasePanicCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.panicCount.Inc()
}

func SetEventSubscriberCount(count int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.eventSubscribers.Set(float64(count))
}
