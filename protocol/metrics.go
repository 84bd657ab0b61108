package protocol

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the protocol client. A nil *Metrics is
// safe to use everywhere; callers that do not supply a registerer get no
// metrics.
type Metrics struct {
	commandsSent     prometheus.Counter
	responsesMatched prometheus.Counter
	timeouts         prometheus.Counter
	notifications    prometheus.Counter
	schemaFailures   prometheus.Counter
	protocolErrors   prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}

	m := &Metrics{
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "commands_sent_total",
			Help:      "Total commands sent to the device under test",
		}),
		responsesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "responses_matched_total",
			Help:      "Total command responses matched to an outstanding handle",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "timeouts_total",
			Help:      "Total commands that elapsed their response timeout",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "notifications_total",
			Help:      "Total property-changed notifications received",
		}),
		schemaFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "schema_failures_total",
			Help:      "Total inbound messages rejected by schema validation",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nccheck",
			Subsystem: "protocol",
			Name:      "protocol_errors_total",
			Help:      "Total protocol-level failures (error messages, bad envelopes)",
		}),
	}

	registerer.MustRegister(m.commandsSent, m.responsesMatched, m.timeouts,
		m.notifications, m.schemaFailures, m.protocolErrors)
	return m
}

func (m *Metrics) incCommandsSent() {
	if m != nil {
		m.commandsSent.Inc()
	}
}

func (m *Metrics) incResponsesMatched() {
	if m != nil {
		m.responsesMatched.Inc()
	}
}

func (m *Metrics) incTimeouts() {
	if m != nil {
		m.timeouts.Inc()
	}
}

func (m *Metrics) incNotifications(n int) {
	if m != nil {
		m.notifications.Add(float64(n))
	}
}

func (m *Metrics) incSchemaFailures() {
	if m != nil {
		m.schemaFailures.Inc()
	}
}

func (m *Metrics) incProtocolErrors() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}
