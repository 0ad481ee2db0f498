// internal/metrics/collector.go
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/types"
)

const namespace = "reflex"

// Transfer statuses used as label values.
const (
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// TokenSource is the read side of the token that the gauges sample.
type TokenSource interface {
	CurrentCoeff() *uint256.Int
	TotalBurned() *uint256.Int
	TotalExcluded() *uint256.Int
	Circulation() *uint256.Int
	MaxBalance() *uint256.Int
	TreasuryPending() *uint256.Int
}

// Collector owns a private registry with the token metrics. Nothing is
// registered globally, so several collectors can live in one process.
type Collector struct {
	registry *prometheus.Registry

	transfers   *prometheus.CounterVec
	taxPercent  prometheus.Histogram
	amounts     *prometheus.CounterVec
	adminEvents *prometheus.CounterVec

	watchOnce sync.Once
}

// NewCollector creates a collector with the Go and process collectors attached.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Transfers processed, by outcome and rejecting stage",
			},
			[]string{"status", "stage"},
		),
		taxPercent: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_tax_percent",
				Help:      "Tax percentage applied to committed transfers",
				Buckets:   []float64{0, 5, 10, 15, 20, 25, 30, 35, 40, 45},
			},
		),
		amounts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_tokens_total",
				Help:      "Whole tokens moved by committed transfers, by component",
			},
			[]string{"component"},
		),
		adminEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_events_total",
				Help:      "Owner actions, approvals and deliveries",
			},
			[]string{"type"},
		),
	}

	c.registry.MustRegister(
		c.transfers,
		c.taxPercent,
		c.amounts,
		c.adminEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WatchToken registers gauges that read src on every scrape. Only the
// first call has an effect.
func (c *Collector) WatchToken(src TokenSource) {
	c.watchOnce.Do(func() {
		gauge := func(name, help string, read func() *uint256.Int) prometheus.Collector {
			return prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
				func() float64 { return Tokens(read()) },
			)
		}
		c.registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "reflection_coefficient",
					Help:      "Reflected units behind one base unit held by an included account",
				},
				func() float64 { return raw(src.CurrentCoeff()) },
			),
			gauge("burned_tokens", "Tokens burned so far", src.TotalBurned),
			gauge("excluded_tokens", "Tokens held by accounts excluded from reflections", src.TotalExcluded),
			gauge("circulating_tokens", "Supply outside the DEX reserve and the burn", src.Circulation),
			gauge("max_balance_tokens", "Current per-account balance cap", src.MaxBalance),
			gauge("treasury_pending_tokens", "Treasury share waiting for the next payout", src.TreasuryPending),
		)
	})
}

// RecordTransfer counts one transfer outcome.
func (c *Collector) RecordTransfer(r *types.Receipt, stage string) {
	if r == nil {
		c.transfers.WithLabelValues(StatusRejected, stage).Inc()
		return
	}
	c.transfers.WithLabelValues(StatusCompleted, "").Inc()
	c.taxPercent.Observe(float64(r.TaxPercent))
	for component, amount := range map[string]*uint256.Int{
		"amount":     r.Amount,
		"net":        r.Net,
		"tax":        r.Tax,
		"burned":     r.Burned,
		"treasury":   r.Treasury,
		"reflection": r.Reflection,
	} {
		c.amounts.WithLabelValues(component).Add(Tokens(amount))
	}
}

// Handle implements events.Handler.
func (c *Collector) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TransferCompletedEvent:
		c.RecordTransfer(&e.Receipt, "")
	case events.TransferRejectedEvent:
		c.RecordTransfer(nil, e.Stage)
	default:
		c.adminEvents.WithLabelValues(string(event.Type())).Inc()
	}
	return nil
}

// Subscribe attaches the collector to every token event type.
func (c *Collector) Subscribe(bus *events.Bus) []events.Subscription {
	return bus.SubscribeAll(c,
		events.TransferCompleted,
		events.TransferRejected,
		events.ApprovalChanged,
		events.Delivered,
		events.OwnershipTransferred,
		events.ParameterChanged,
		events.TradingOpened,
		events.TokenRecovered,
	)
}

// Tokens converts base units to whole tokens. Precision beyond float64 is lost.
func Tokens(x *uint256.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(x.ToBig(), -types.Decimals).Float64()
	return f
}

func raw(x *uint256.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(x.ToBig(), 0).Float64()
	return f
}
