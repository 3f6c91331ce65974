package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboundJobCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_job_count",
			Help: "Total number of outbound jobs processed, by outcome",
		},
		[]string{"outcome"}, // outcome: delivered, retried, discarded, abandoned
	)

	DeliveryAttemptCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempt_count",
			Help: "Total number of SMTP delivery attempts per exchanger, by result",
		},
		[]string{"result"}, // result: sent, verify_failed, send_failed, dial_failed
	)

	MXCacheLookupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mx_cache_lookup_count",
			Help: "MX cache lookups, by result",
		},
		[]string{"result"}, // result: hit, miss
	)

	ScanLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_latency_ms",
			Help:    "Content scanner call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"scanner", "status"}, // scanner: rspamd, clamav
	)

	SMTPSendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smtp_send_latency_ms",
			Help:    "SMTP send latency per exchanger attempt in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"status"},
	)

	InboundEmailCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_email_count",
			Help: "Inbound emails persisted, by save mode",
		},
		[]string{"mode"}, // mode: full, fallback, rejected, failed
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)
)

func IncrementOutboundJob(outcome string) {
	OutboundJobCount.WithLabelValues(outcome).Inc()
}

func IncrementDeliveryAttempt(result string) {
	DeliveryAttemptCount.WithLabelValues(result).Inc()
}

func IncrementMXCacheLookup(result string) {
	MXCacheLookupCount.WithLabelValues(result).Inc()
}

func RecordScanLatency(scanner, status string, duration time.Duration) {
	ScanLatency.WithLabelValues(scanner, status).Observe(float64(duration.Milliseconds()))
}

func RecordSMTPSendLatency(status string, duration time.Duration) {
	SMTPSendLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncrementInboundEmail(mode string) {
	InboundEmailCount.WithLabelValues(mode).Inc()
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
