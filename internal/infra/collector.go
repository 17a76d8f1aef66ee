package infra

import (
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(MetricsSnapshot) float64
}

// Collector exports Metrics to Prometheus. Values are read from a fresh
// Snapshot on every scrape.
type Collector struct {
	m     *Metrics
	descs []metricDesc
}

// NewCollector builds a collector whose metric names carry the exchange
// as a constant label.
func NewCollector(m *Metrics, exchange string) *Collector {
	labels := prometheus.Labels{"exchange": exchange}
	counter := func(name, help string, v func(MetricsSnapshot) float64) metricDesc {
		return metricDesc{
			desc:  prometheus.NewDesc("feed_"+name, help, nil, labels),
			kind:  prometheus.CounterValue,
			value: v,
		}
	}
	gauge := func(name, help string, v func(MetricsSnapshot) float64) metricDesc {
		d := counter(name, help, v)
		d.kind = prometheus.GaugeValue
		return d
	}

	return &Collector{m: m, descs: []metricDesc{
		counter("udp_packets_total", "Datagrams read from the network.", func(s MetricsSnapshot) float64 { return float64(s.UDPPackets) }),
		counter("filtered_packets_total", "Datagrams dropped by the source filter.", func(s MetricsSnapshot) float64 { return float64(s.FilteredPackets) }),
		counter("failovers_total", "Switches between primary and secondary feeds.", func(s MetricsSnapshot) float64 { return float64(s.Failovers) }),
		counter("mbp_messages_total", "Market by price messages decoded.", func(s MetricsSnapshot) float64 { return float64(s.MBPPackets) }),
		counter("other_messages_total", "Messages that are not market by price.", func(s MetricsSnapshot) float64 { return float64(s.OtherPackets) }),
		counter("decode_errors_total", "Messages dropped as undecodable.", func(s MetricsSnapshot) float64 { return float64(s.DecodeErrors) }),
		counter("coalesced_total", "Packets displaced by a newer one for the same key.", func(s MetricsSnapshot) float64 { return float64(s.Coalesced) }),
		counter("stale_drops_total", "Updates dropped by sequence fencing.", func(s MetricsSnapshot) float64 { return float64(s.StaleDrops) }),
		counter("requeues_total", "Work items handed back for fairness.", func(s MetricsSnapshot) float64 { return float64(s.Requeues) }),
		counter("work_executed_total", "Work items executed.", func(s MetricsSnapshot) float64 { return float64(s.WorkExecuted) }),
		counter("panics_total", "Recovered processing panics.", func(s MetricsSnapshot) float64 { return float64(s.Panics) }),
		counter("records_out_total", "Records written to output.", func(s MetricsSnapshot) float64 { return float64(s.RecordsOut) }),
		counter("sink_errors_total", "Failed sink writes.", func(s MetricsSnapshot) float64 { return float64(s.SinkErrors) }),
		gauge("work_latency_avg_seconds", "Mean work item latency.", func(s MetricsSnapshot) float64 { return float64(s.AvgLatencyNs) / 1e9 }),
		gauge("ws_clients", "Connected websocket clients.", func(s MetricsSnapshot) float64 { return float64(s.WSClients) }),
	}}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(s))
	}
}

// MetricsHandler serves /metrics from a dedicated registry plus the pprof
// endpoints under /debug/pprof/.
func MetricsHandler(m *Metrics, exchange string) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(m, exchange)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux, nil
}
