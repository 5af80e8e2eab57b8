package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Command Metrics
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_commands_total",
		Help: "Total commands executed by tool, command and outcome",
	}, []string{"tool", "command", "outcome"})

	// Authentication Metrics
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_auth_attempts_total",
		Help: "Total authentication attempts",
	}, []string{"result", "protocol"})

	// Connection Metrics
	Connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_connections_total",
		Help: "Total connections opened by protocol and mode",
	}, []string{"protocol", "mode"})

	// SMTP Metrics
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailbridge_messages_sent_total",
		Help: "Total number of messages sent successfully",
	})

	Recipients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailbridge_recipients_total",
		Help: "Total number of envelope recipients of sent messages",
	})

	SentEchoes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_sent_echo_total",
		Help: "Sent-folder echo attempts by result",
	}, []string{"result"})

	// IMAP Metrics
	MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailbridge_messages_fetched_total",
		Help: "Total number of messages fetched and normalized",
	})

	// Error Metrics
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailbridge_errors_total",
		Help: "Total errors by component",
	}, []string{"component", "type"})
)

// Outcome labels for Commands.
const (
	OutcomeSuccess = "success"
	OutcomeSandbox = "sandbox"
	OutcomeError   = "error"
)

// RecordCommand records one command invocation
func RecordCommand(tool, command, outcome string) {
	Commands.WithLabelValues(tool, command, outcome).Inc()
}

// RecordAuth records an authentication attempt
func RecordAuth(success bool, protocol string) {
	result := "success"
	if !success {
		result = "failure"
	}
	AuthAttempts.WithLabelValues(result, protocol).Inc()
}

// RecordConnection records a new connection. Mode is "explicit" or "auto".
func RecordConnection(protocol, mode string) {
	Connections.WithLabelValues(protocol, mode).Inc()
}

// RecordSend records a transmitted message and its envelope size
func RecordSend(recipients int) {
	MessagesSent.Inc()
	Recipients.Add(float64(recipients))
}

// RecordEcho records the result of a sent-folder echo: "appended",
// "skipped" or "failed".
func RecordEcho(result string) {
	SentEchoes.WithLabelValues(result).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	Errors.WithLabelValues(component, errorType).Inc()
}

// WriteTextfile writes every registered metric to path in the node exporter
// textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
