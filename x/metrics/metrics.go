/*
Package metrics provides a decorator that exposes transaction processing
statistics to Prometheus.
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors updated by the Decorator.
type Metrics struct {
	Processed *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

// New creates and registers all transaction metrics. If reg is nil, the
// default Prometheus registerer is used.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drugchain_tx_processed_total",
			Help: "Total number of processed transactions, by message path, phase and ABCI result code",
		}, []string{"path", "phase", "code"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drugchain_tx_duration_seconds",
			Help:    "Duration of transaction processing, by message path and phase",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"path", "phase"}),
	}
}

// observe records a single transaction result. It is safe to call on a nil
// receiver.
func (m *Metrics) observe(path, phase string, start time.Time, err error) {
	if m == nil {
		return
	}
	code, _ := errors.ABCIInfo(err, false)
	m.Processed.WithLabelValues(path, phase, strconv.FormatUint(uint64(code), 10)).Inc()
	m.Duration.WithLabelValues(path, phase).Observe(time.Since(start).Seconds())
}

// Decorator counts and times every transaction that passes through.
type Decorator struct {
	metrics *Metrics
}

var _ weave.Decorator = Decorator{}

// NewDecorator returns a decorator that reports to given metrics.
func NewDecorator(m *Metrics) Decorator {
	return Decorator{metrics: m}
}

func (d Decorator) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	start := time.Now()
	res, err := next.Check(ctx, store, tx)
	d.metrics.observe(msgPath(tx), "check", start, err)
	return res, err
}

func (d Decorator) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	start := time.Now()
	res, err := next.Deliver(ctx, store, tx)
	d.metrics.observe(msgPath(tx), "deliver", start, err)
	return res, err
}

// msgPath returns the path of the transaction message, or "unknown" if the
// message cannot be decoded.
func msgPath(tx weave.Tx) string {
	msg, err := tx.GetMsg()
	if err != nil || msg == nil {
		return "unknown"
	}
	return msg.Path()
}
