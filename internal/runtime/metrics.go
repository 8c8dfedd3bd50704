package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks polling-loop statistics. All record methods are nil-safe so
// a queue without metrics configured pays nothing.
type Metrics struct {
	iterations prometheus.Counter
	batches    prometheus.Counter
	messages   *prometheus.CounterVec
	loopErrors prometheus.Counter
	sends      prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

func newConsumerCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "queueflow",
		Subsystem: "consumer",
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates a metrics collector. A nil registerer falls back to
// prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		iterations: newConsumerCounter("iterations_total", "Total number of polling loop iterations"),
		batches:    newConsumerCounter("batches_total", "Total number of non-empty batches received"),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queueflow",
			Subsystem: "consumer",
			Name:      "messages_total",
			Help:      "Total number of dispatched messages by outcome",
		}, []string{"outcome"}),
		loopErrors: newConsumerCounter("loop_errors_total", "Total number of loop-level errors that triggered the backoff sleep"),
		sends:      newConsumerCounter("sends_total", "Total number of envelopes sent"),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.iterations,
		m.batches,
		m.messages,
		m.loopErrors,
		m.sends,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordIteration() {
	if m == nil {
		return
	}
	m.iterations.Inc()
}

func (m *Metrics) recordBatch(size int) {
	if m == nil || size == 0 {
		return
	}
	m.batches.Inc()
}

func (m *Metrics) recordMessage(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordLoopError() {
	if m == nil {
		return
	}
	m.loopErrors.Inc()
}

func (m *Metrics) recordSend() {
	if m == nil {
		return
	}
	m.sends.Inc()
}
