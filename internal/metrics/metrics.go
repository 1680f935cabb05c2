// Package metrics declares the Prometheus collectors exported by the core,
// in the teacher's promauto + Namespace/Subsystem/Name/Help shape
// (internal/infra/observability/observability.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Memory model (C4) ──────────────────────────────────────────────────────

// InconsistencyTotal counts §7 Inconsistency events by kind (clamped and
// continued, never fatal).
var InconsistencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "memory",
	Name:      "inconsistency_total",
	Help:      "Total invariant-violation events detected and clamped on read or update.",
}, []string{"kind"})

// EnergyDelta observes the signed per-review energy delta.
var EnergyDelta = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "iqrah",
	Subsystem: "memory",
	Name:      "energy_delta",
	Help:      "Per-review energy delta before clamping.",
	Buckets:   []float64{-0.12, -0.08, -0.04, 0, 0.02, 0.04, 0.06, 0.08, 0.10},
})

// ─── Propagation engine (C5) ────────────────────────────────────────────────

// PropagationTargetsTotal counts energy-propagation targets updated.
var PropagationTargetsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "propagation",
	Name:      "targets_total",
	Help:      "Total propagation targets updated across all reviews.",
})

// PropagationPartialTotal counts aborted (partial) propagation walks.
var PropagationPartialTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "propagation",
	Name:      "partial_total",
	Help:      "Total propagation walks that aborted partway through.",
})

// ─── Session generator (C7) ─────────────────────────────────────────────────

// SessionSize observes the final size of generated sessions.
var SessionSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "iqrah",
	Subsystem: "scheduler",
	Name:      "session_size",
	Help:      "Final number of items in a generated session.",
	Buckets:   prometheus.LinearBuckets(0, 5, 10),
})

// CategoryFillCount counts how many items each category contributed.
var CategoryFillCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "scheduler",
	Name:      "category_fill_count",
	Help:      "Items contributed to sessions, by category.",
}, []string{"category"})

// PrereqGateRejections counts candidates dropped by the prerequisite gate.
var PrereqGateRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "scheduler",
	Name:      "prereq_gate_rejections_total",
	Help:      "Total candidates dropped by the prerequisite gate.",
})

// ─── Introduction policy (C8) ───────────────────────────────────────────────

// IntroductionAllowance observes the final new-item allowance per session.
var IntroductionAllowance = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "iqrah",
	Subsystem: "introduction",
	Name:      "allowance",
	Help:      "Final new-item allowance after all four clamp stages.",
	Buckets:   prometheus.LinearBuckets(0, 2, 10),
})

// ExpandMode tracks the current hysteresis gate state per call (0 or 1);
// exported as a gauge so a scrape reflects the last decision.
var ExpandMode = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "iqrah",
	Subsystem: "introduction",
	Name:      "expand_mode",
	Help:      "Current introduction hysteresis gate state (1=expand, 0=closed).",
})

// ─── Bandit profile selector (C9) ───────────────────────────────────────────

// BanditReward observes the per-session-end reward fed back into the arm.
var BanditReward = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "iqrah",
	Subsystem: "bandit",
	Name:      "reward",
	Help:      "Observed reward fed back into a bandit arm at session end.",
	Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
}, []string{"profile"})

// ArmSelected counts Thompson-sample selections per named profile.
var ArmSelected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "bandit",
	Name:      "arm_selected_total",
	Help:      "Total Thompson-sample selections, by profile name.",
}, []string{"profile"})

// ─── Review orchestrator (C10) ──────────────────────────────────────────────

// ReviewsProcessed counts completed process_review calls by grade.
var ReviewsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "review",
	Name:      "processed_total",
	Help:      "Total process_review calls completed, by grade.",
}, []string{"grade"})

// ReviewStoreFailures counts StoreFailure surfaces from the atomic write.
var ReviewStoreFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "iqrah",
	Subsystem: "review",
	Name:      "store_failures_total",
	Help:      "Total StoreFailure errors surfaced from the atomic review write.",
})
