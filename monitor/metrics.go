// Package monitor collects Prometheus metrics for the trading cycle.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns a private registry so tests can run several instances side by side.
type Monitor struct {
	registry *prometheus.Registry

	scans          *prometheus.CounterVec
	ordersPlaced   *prometheus.CounterVec
	ordersFilled   *prometheus.CounterVec
	ordersRepriced *prometheus.CounterVec
	scanErrors     prometheus.Counter

	gatewayRequests *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec

	openOrders     prometheus.Gauge
	realizedProfit prometheus.Gauge
}

// Config sets the metric namespace.
type Config struct {
	Namespace string
}

// DefaultConfig returns the namespace used by the shipped dashboards.
func DefaultConfig() Config {
	return Config{Namespace: "ct"}
}

// New builds a Monitor with all metrics registered.
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "scan_cycles_total",
			Help:      "Completed scan cycles by pass (buy, sell, convert).",
		}, []string{"pass"}),
		ordersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "orders_placed_total",
			Help:      "Orders placed on the exchange by side.",
		}, []string{"side"}),
		ordersFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "orders_filled_total",
			Help:      "Fills confirmed by the exchange by side.",
		}, []string{"side"}),
		ordersRepriced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "orders_repriced_total",
			Help:      "Cancel-and-replace operations by side.",
		}, []string{"side"}),
		scanErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "scan_errors_total",
			Help:      "Per-order failures skipped during scan cycles.",
		}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "gateway_requests_total",
			Help:      "Exchange REST calls by action.",
		}, []string{"action"}),
		gatewayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "gateway_errors_total",
			Help:      "Failed exchange REST calls by action.",
		}, []string{"action"}),
		openOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "open_orders",
			Help:      "Orders currently tracked in the order store.",
		}),
		realizedProfit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "realized_profit",
			Help:      "Total profit across complete lineages per the latest report.",
		}),
	}
}

func (m *Monitor) RecordScan(pass string) {
	m.scans.WithLabelValues(pass).Inc()
}

func (m *Monitor) RecordOrderPlaced(side string) {
	m.ordersPlaced.WithLabelValues(side).Inc()
}

func (m *Monitor) RecordOrderFilled(side string) {
	m.ordersFilled.WithLabelValues(side).Inc()
}

func (m *Monitor) RecordOrderRepriced(side string) {
	m.ordersRepriced.WithLabelValues(side).Inc()
}

func (m *Monitor) RecordScanError() {
	m.scanErrors.Inc()
}

func (m *Monitor) RecordGatewayRequest(action string) {
	m.gatewayRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordGatewayError(action string) {
	m.gatewayErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) UpdateOpenOrders(n int) {
	m.openOrders.Set(float64(n))
}

func (m *Monitor) UpdateRealizedProfit(v float64) {
	m.realizedProfit.Set(v)
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
