// Package metrics exports xenconsole stream activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/borzel/xenconsole"
)

// Fault kinds used as the "kind" label.
const (
	KindFraming   = "framing"
	KindDecode    = "decode"
	KindTransport = "transport"
)

// Collector implements xenconsole.Observer with Prometheus counters.
type Collector struct {
	messages    prometheus.Counter
	bytes       prometheus.Counter
	disconnects prometheus.Counter
	faults      *prometheus.CounterVec
}

var _ xenconsole.Observer = (*Collector)(nil)

// NewCollector creates unregistered counters.
func NewCollector() *Collector {
	return &Collector{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xenconsole",
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Messages dispatched to subscribers.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xenconsole",
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Bytes of dispatched messages.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xenconsole",
			Subsystem: "stream",
			Name:      "disconnects_total",
			Help:      "Clean disconnects reported by the peer.",
		}),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xenconsole",
				Subsystem: "stream",
				Name:      "faults_total",
				Help:      "Read chains stopped by a fault.",
			},
			[]string{"kind"},
		),
	}
}

// Register adds the counters to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.messages, c.bytes, c.disconnects, c.faults} {
		if err := reg.Register(collector); err != nil {
			return errors.Wrap(err, "register stream metrics")
		}
	}
	return nil
}

// MessageReceived counts one message of n bytes.
func (c *Collector) MessageReceived(n int) {
	c.messages.Inc()
	c.bytes.Add(float64(n))
}

// Disconnected counts a clean disconnect.
func (c *Collector) Disconnected() {
	c.disconnects.Inc()
}

// Fault counts a fault under its Kind.
func (c *Collector) Fault(err error) {
	c.faults.WithLabelValues(Kind(err)).Inc()
}

// Kind classifies a read chain fault.
func Kind(err error) string {
	var (
		framingErr *xenconsole.FramingError
		decodeErr  *xenconsole.DecodeError
	)
	switch {
	case errors.As(err, &framingErr):
		return KindFraming
	case errors.As(err, &decodeErr):
		return KindDecode
	default:
		return KindTransport
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
