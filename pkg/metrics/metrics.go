package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_connections_total",
			Help: "Total number of connections accepted",
		},
		[]string{"server"},
	)

	ConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiri_connections_current",
			Help: "Current number of live sessions",
		},
		[]string{"server"},
	)

	AuthenticatedConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiri_authenticated_connections_current",
			Help: "Current number of authenticated sessions",
		},
		[]string{"server"},
	)

	ConnectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiri_connection_duration_seconds",
			Help:    "Duration of connections in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	// ConnectionsClosed counts teardowns by reason: "quit", "peer_closed",
	// "read_error", "write_error", "protocol_violation", "shutdown".
	ConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_connections_closed_total",
			Help: "Total number of sessions torn down, by reason",
		},
		[]string{"server", "reason"},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_connections_rejected_total",
			Help: "Total number of connections refused by the connection limiter",
		},
		[]string{"server", "reason"},
	)
)

// Authentication metrics
var (
	AuthenticationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_authentication_attempts_total",
			Help: "Total number of password checks",
		},
		[]string{"server", "result"},
	)

	LoginFormatErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_login_format_errors_total",
			Help: "Total number of malformed login lines",
		},
		[]string{"server"},
	)
)

// Command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_commands_total",
			Help: "Total number of commands executed",
		},
		[]string{"server", "command", "result"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiri_command_duration_seconds",
			Help:    "Time spent executing a command",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
		[]string{"server", "command"},
	)

	BytesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_bytes_received_total",
			Help: "Total bytes read from clients",
		},
		[]string{"server"},
	)

	BytesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiri_bytes_sent_total",
			Help: "Total bytes written to clients",
		},
		[]string{"server"},
	)
)

// Credentials metrics
var (
	CredentialsUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiri_credentials_users",
			Help: "Number of users in the loaded credentials file",
		},
	)
)
