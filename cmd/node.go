package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mezonai/omniverse/clock"
	"github.com/mezonai/omniverse/config"
	"github.com/mezonai/omniverse/engine"
	"github.com/mezonai/omniverse/events"
	"github.com/mezonai/omniverse/exception"
	"github.com/mezonai/omniverse/jsonrpc"
	"github.com/mezonai/omniverse/logx"
	"github.com/mezonai/omniverse/monitoring"
	"github.com/mezonai/omniverse/ratelimit"
	"github.com/mezonai/omniverse/store"
)

const shutdownTimeout = 10 * time.Second

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the omniverse token node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runNode(ctx, runConfigPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "config/node.yml", "Path to the node configuration file")
}

func runNode(ctx context.Context, configPath string) error {
	cfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	monitoring.InitMetrics()

	st, err := store.CreateStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Type, err)
	}
	defer st.MustClose()

	bus := events.NewEventBus()
	eng := engine.New(engineCfg, nil, clock.SystemClock{}, st, bus)
	if err := eng.Restore(); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	startEventLogger(ctx, eng)

	limiter := ratelimit.NewCallerLimiter(cfg.RPC.RateLimitPerMinute)
	rpcServer := jsonrpc.NewServer(cfg.RPC.ListenAddr, eng, limiter)
	if cors, ok := jsonrpc.CORSFromEnv(); ok {
		rpcServer.SetCORSConfig(cors)
	}
	if err := rpcServer.Start(); err != nil {
		return err
	}

	metricsServer := startMetricsServer(cfg.Metrics.ListenAddr)

	triggerDone := startTriggerLoop(ctx, eng, cfg.Trigger.Interval)

	logx.Info("CMD", fmt.Sprintf("Node started | chain_id=%d | contract=%s | rpc=%s | metrics=%s",
		engineCfg.ChainID, engineCfg.Address.Hex(), cfg.RPC.ListenAddr, cfg.Metrics.ListenAddr))

	<-ctx.Done()
	logx.Info("CMD", "Shutting down node")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logx.Warn("CMD", fmt.Sprintf("RPC shutdown: %v", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logx.Warn("CMD", fmt.Sprintf("Metrics shutdown: %v", err))
	}
	// the store is closed on return; no execution may still be committing
	<-triggerDone
	return nil
}

// startTriggerLoop runs the trigger loop until ctx is done. The returned
// channel is closed once the loop has returned.
func startTriggerLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	// a panic while executing leaves state half applied, so it takes the node down
	exception.SafeGoWithPanic("TriggerLoop", func() {
		defer close(done)
		if err := eng.RunTrigger(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			logx.Error("CMD", fmt.Sprintf("Trigger loop exited: %v", err))
		}
	})
	return done
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	exception.SafeGo("MetricsServer", func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error("CMD", fmt.Sprintf("Metrics server stopped: %v", err))
		}
	})
	return srv
}

// startEventLogger writes every engine event to the log until ctx is done.
func startEventLogger(ctx context.Context, eng *engine.Engine) {
	id, ch, err := eng.Subscribe()
	if err != nil {
		logx.Warn("CMD", fmt.Sprintf("Event logger disabled: %v", err))
		return
	}
	exception.SafeGo("EventLogger", func() {
		defer eng.Unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				logx.Info("EVENT", describeEvent(ev))
			}
		}
	})
}

func describeEvent(ev events.OmniverseEvent) string {
	base := fmt.Sprintf("seq=%d | type=%s | tx=%s", ev.Seq(), ev.Type(), ev.TxHash().Hex())
	switch e := ev.(type) {
	case *events.TransactionSent:
		return fmt.Sprintf("%s | from=%s | nonce=%d | op=%s | chain_id=%d", base, e.Sender().Short(), e.Nonce(), e.Op(), e.ChainID())
	case *events.OmniverseTokenTransfer:
		return fmt.Sprintf("%s | from=%s | to=%s | amount=%s", base, e.From().Short(), e.To().Short(), e.Amount().Dec())
	case *events.OmniverseTokenWithdraw:
		return fmt.Sprintf("%s | from=%s | amount=%s | chain_id=%d | credited=%t", base, e.From().Short(), e.Amount().Dec(), e.ChainID(), e.Credited())
	case *events.OmniverseTokenDeposit:
		return fmt.Sprintf("%s | to=%s | amount=%s | chain_id=%d", base, e.To().Short(), e.Amount().Dec(), e.ChainID())
	}
	return base
}
