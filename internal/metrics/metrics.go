// Package metrics exposes the matcher's operational counters over
// Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// Collector holds every matcher metric, labelled by trading pair.
type Collector struct {
	registry *prometheus.Registry

	EventsJournaled *prometheus.CounterVec
	TradesTotal     *prometheus.CounterVec
	TradeVolume     *prometheus.CounterVec
	CancelsTotal    *prometheus.CounterVec
	TxRejections    *prometheus.CounterVec
	SnapshotsSaved  *prometheus.CounterVec
	RestingOrders   *prometheus.GaugeVec
	BestBid         *prometheus.GaugeVec
	BestAsk         *prometheus.GaugeVec
	PlaceLatency    *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		EventsJournaled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_events_journaled_total",
			Help: "Domain events appended to the journal.",
		}, []string{"pair", "type"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_trades_total",
			Help: "Executed fills.",
		}, []string{"pair"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_trade_volume_total",
			Help: "Summed amount over executed fills.",
		}, []string{"pair"}),
		CancelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_cancels_total",
			Help: "Cancelled orders, split by who decided.",
		}, []string{"pair", "unmatchable"}),
		TxRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_tx_rejections_total",
			Help: "Exchange transactions rejected downstream.",
		}, []string{"pair", "kind"}),
		SnapshotsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hati_snapshots_saved_total",
			Help: "Book snapshots written.",
		}, []string{"pair"}),
		RestingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hati_resting_orders",
			Help: "Orders currently resting in the book.",
		}, []string{"pair", "side"}),
		BestBid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hati_best_bid",
			Help: "Best bid price, 0 when the side is empty.",
		}, []string{"pair"}),
		BestAsk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hati_best_ask",
			Help: "Best ask price, 0 when the side is empty.",
		}, []string{"pair"}),
		PlaceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hati_place_seconds",
			Help:    "Wall time of a Place command including its match loop.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"pair"}),
	}
	reg.MustRegister(
		c.EventsJournaled, c.TradesTotal, c.TradeVolume, c.CancelsTotal,
		c.TxRejections, c.SnapshotsSaved, c.RestingOrders,
		c.BestBid, c.BestAsk, c.PlaceLatency,
	)
	return c
}

// Serve runs the /metrics endpoint under the tomb until it dies.
func (c *Collector) Serve(t *tomb.Tomb, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	t.Go(func() error {
		log.Info().Str("addr", addr).Msg("metrics endpoint running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics endpoint failed")
		}
		return nil
	})
	t.Go(func() error {
		<-t.Dying()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
