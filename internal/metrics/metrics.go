package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var GuardDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "palaver_guard_denials_total",
	Help: "Number of operations refused by a permission guard",
}, []string{"guard", "kind"})

var ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "palaver_moderation_actions_total",
	Help: "Number of committed control-plane changes",
}, []string{"action"})

var AuditWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "palaver_audit_write_failures_total",
	Help: "Number of audit entries that could not be persisted or published",
}, []string{"stage"})

var Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "palaver_access_code_redemptions_total",
	Help: "Access code redemption attempts by outcome",
}, []string{"outcome"})

var ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "palaver_anomaly_scan_duration_sec",
	Help:    "Duration of anomaly detector scans",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var Findings = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "palaver_anomaly_findings_total",
	Help: "Anomaly findings produced by scans",
}, []string{"type", "severity"})
