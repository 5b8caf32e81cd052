package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "udpmux"

// Exporter publishes a Collector's counters to Prometheus.  Values are
// read at scrape time, so the hot path keeps using plain atomics.
type Exporter struct {
	c *Collector

	sessionsActive *prometheus.Desc
	sessionsTotal  *prometheus.Desc
	datagrams      *prometheus.Desc
	bytes          *prometheus.Desc
	dropped        *prometheus.Desc
	sendFailures   *prometheus.Desc
	decodeErrors   *prometheus.Desc
	errorsTotal    *prometheus.Desc
}

// NewExporter wraps c.  A nil c exports zeros.
func NewExporter(c *Collector) *Exporter {
	return &Exporter{
		c: c,
		sessionsActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_active"),
			"Number of registered peer sessions", nil, nil),
		sessionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Total number of peer sessions created", nil, nil),
		datagrams: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "datagrams_total"),
			"Datagrams by direction", []string{"direction"}, nil),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_total"),
			"Datagram payload bytes by direction", []string{"direction"}, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "datagrams_dropped_total"),
			"Inbound datagrams that were never queued", nil, nil),
		sendFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "send_failures_total"),
			"Datagrams that could not be fully sent", nil, nil),
		decodeErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "decode_errors_total"),
			"Datagrams rejected by the packet codec", nil, nil),
		errorsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"All recorded errors", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.sessionsActive
	ch <- e.sessionsTotal
	ch <- e.datagrams
	ch <- e.bytes
	ch <- e.dropped
	ch <- e.sendFailures
	ch <- e.decodeErrors
	ch <- e.errorsTotal
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()

	ch <- prometheus.MustNewConstMetric(e.sessionsActive, prometheus.GaugeValue, float64(s.SessionsActive))
	ch <- prometheus.MustNewConstMetric(e.sessionsTotal, prometheus.CounterValue, float64(s.SessionsTotal))
	ch <- prometheus.MustNewConstMetric(e.datagrams, prometheus.CounterValue, float64(s.DatagramsIn), "in")
	ch <- prometheus.MustNewConstMetric(e.datagrams, prometheus.CounterValue, float64(s.DatagramsOut), "out")
	ch <- prometheus.MustNewConstMetric(e.bytes, prometheus.CounterValue, float64(s.BytesIn), "in")
	ch <- prometheus.MustNewConstMetric(e.bytes, prometheus.CounterValue, float64(s.BytesOut), "out")
	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(e.sendFailures, prometheus.CounterValue, float64(s.SendFailures))
	ch <- prometheus.MustNewConstMetric(e.decodeErrors, prometheus.CounterValue, float64(s.DecodeErrors))
	ch <- prometheus.MustNewConstMetric(e.errorsTotal, prometheus.CounterValue, float64(s.ErrorsTotal))
}

// Handler registers an Exporter for c on a fresh registry and returns
// the HTTP handler serving it.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewExporter(c)); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
