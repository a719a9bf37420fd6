// Command scand runs the scan cycle unattended: poll open buys, convert fills
// at a fixed markup, poll open sells, repeat. Repricing follows a flag instead
// of an operator prompt. Exposes Prometheus metrics, reloads its config file on
// change, and reports liveness to systemd when run under it.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cycle-trader-go/config"
	"cycle-trader-go/gateway"
	"cycle-trader-go/infrastructure/logger"
	"cycle-trader-go/internal/engine"
	"cycle-trader-go/ledger"
	"cycle-trader-go/monitor"
	"cycle-trader-go/order"
	"cycle-trader-go/report"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics listen address, empty to disable")
	autoReprice := flag.Bool("autoReprice", false, "cancel and reprice every unfilled order each cycle")
	markup := flag.Float64("markup", 0, "sell markup percent for filled buys, 0 leaves fills to the operator")
	restRate := flag.Float64("restRate", 5, "REST rate limit: tokens per second")
	restBurst := flag.Int("restBurst", 10, "REST rate limit: max burst")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Close()

	var current atomic.Pointer[config.AppConfig]
	current.Store(&cfg)

	mon := monitor.New(monitor.DefaultConfig())
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, mon, zl)
	}

	client := &gateway.RESTClient{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		HTTPClient: &http.Client{
			Timeout: time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond,
		},
		Limiter: gateway.NewTokenBucketLimiter(*restRate, *restBurst),
	}
	store := order.NewStore(cfg.Files.Orders)
	history := ledger.New(cfg.Files.History)
	eng, err := engine.New(client, store, history, zl, mon, engine.Config{
		RepriceStepPct: cfg.Trading.RepriceStepDec(),
	})
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(*cfgPath, 2*time.Second, func(next config.AppConfig) {
		current.Store(&next)
		zl.Info("config reloaded", zap.Int("scanIntervalSec", next.Trading.ScanIntervalSec))
	}, func(err error) {
		zl.Warn("config reload failed", zap.Error(err))
	})
	if err != nil {
		zl.Warn("config hot reload disabled", zap.Error(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	confirm := func(order.Order) bool { return *autoReprice }
	var markupFn engine.MarkupFunc
	if *markup > 0 {
		pct := decimal.NewFromFloat(*markup)
		markupFn = func(order.Order) (decimal.Decimal, bool) { return pct, true }
	}

	daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdogLoop(ctx, interval)
	}

	zl.Info("scand started",
		zap.String("config", *cfgPath),
		zap.Bool("autoReprice", *autoReprice),
		zap.Float64("markup", *markup))

	runCycle(eng, history, mon, zl, confirm, markupFn)
	for {
		interval := time.Duration(current.Load().Trading.ScanIntervalSec) * time.Second
		select {
		case <-ctx.Done():
			daemon.SdNotify(false, daemon.SdNotifyStopping)
			zl.Info("scand stopping")
			return
		case <-time.After(interval):
			runCycle(eng, history, mon, zl, confirm, markupFn)
		}
	}
}

// runCycle performs one full pass: buys, conversions, sells, then refreshes the
// realized profit gauge from the history file.
func runCycle(eng *engine.Engine, history *ledger.Ledger, mon *monitor.Monitor, zl *logger.Logger, confirm engine.ConfirmFunc, markupFn engine.MarkupFunc) {
	if err := eng.ScanBuys(confirm); err != nil {
		zl.Error("buy scan aborted", zap.Error(err))
		mon.RecordScanError()
		return
	}
	if markupFn != nil {
		if err := eng.ConvertFills(markupFn); err != nil {
			zl.Error("convert pass aborted", zap.Error(err))
			mon.RecordScanError()
		}
	}
	if err := eng.ScanSells(confirm); err != nil {
		zl.Error("sell scan aborted", zap.Error(err))
		mon.RecordScanError()
		return
	}
	if events, err := history.ReadAll(); err == nil {
		summary := report.Aggregate(events)
		mon.UpdateRealizedProfit(summary.TotalProfit.InexactFloat64())
	}
}

func serveMetrics(addr string, mon *monitor.Monitor, zl *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	zl.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		zl.Error("metrics server exited", zap.Error(err))
	}
}

func watchdogLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
