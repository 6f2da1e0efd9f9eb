package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Loop metrics
	LoopPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_loop_polls_total",
			Help: "Total inbox polls",
		},
	)

	LoopFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_loop_faults_total",
			Help: "Total recovered loop faults",
		},
	)

	LoopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wecom_sync_loop_state",
			Help: "Current loop state (1 for the active state)",
		},
		[]string{"state"},
	)

	InboxDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_sync_inbox_decisions_total",
			Help: "Rooms opened from the inbox",
		},
		[]string{"reason"}, // "badge", "tip", "nosync"
	)

	ComplianceHalts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_compliance_halts_total",
			Help: "Total scans skipped by the compliance guard",
		},
	)

	// Reader metrics
	RoomReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_sync_room_reads_total",
			Help: "Total room reads",
		},
		[]string{"result"}, // "reported", "unchanged", "empty", "failed"
	)

	ReadMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_read_mismatches_total",
			Help: "Dual-read passes that disagreed",
		},
	)

	GroupJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_sync_group_joins_total",
			Help: "Group invite handling outcomes",
		},
		[]string{"outcome"},
	)

	// Reporter metrics
	Reports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_sync_reports_total",
			Help: "Total outbound reports",
		},
		[]string{"type", "status"},
	)

	ReportedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_reported_messages_total",
			Help: "Total messages delivered to the controller",
		},
	)

	ReportLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wecom_sync_report_latency_seconds",
			Help:    "Outbound report latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Host metrics
	HostRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wecom_sync_host_requests_total",
			Help: "Total host bridge requests",
		},
		[]string{"endpoint", "status"},
	)

	// Maintenance metrics
	PurgedKeys = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wecom_sync_purged_keys_total",
			Help: "Total dedup keys removed by retention cleanup",
		},
	)
)
