// Package introduction implements C8: the four-stage clamp deciding how
// many new (never-reviewed) items a session may introduce (spec.md §4.5).
package introduction

import (
	"math"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
)

// Decision records the allowance after every clamp stage, so tests can
// address the intermediate values directly rather than re-deriving them.
type Decision struct {
	RawAllowance          int
	AfterCapacityThrottle int
	AfterHardStop         int
	ExpandMode            bool
	FinalAllowance        int
	IntroFloorEffective   int
}

// ClusterEnergy computes the mean energy of the currently active (already
// introduced, review_count>0) candidates — the signal the hysteresis gate
// in stage 4 watches (§4.5 stage 4). A working set with no active items yet
// reports 0, which sits below any realistic threshold: a closed gate stays
// closed, and an open gate closes once threshold minus hysteresis is >= 0.
func ClusterEnergy(candidates []domain.Candidate) float64 {
	var sum float64
	var n int
	for _, c := range candidates {
		if c.ReviewCount == 0 {
			continue
		}
		sum += c.Energy
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Decide runs the §4.5 pipeline: raw allowance -> capacity throttle -> hard
// working-set stop -> hysteresis gate -> floor. clusterEnergy is the mean
// energy of the user's active working set (the signal the hysteresis gate
// watches); priorExpandMode is the expand_mode this user carried into the
// call, persisted across sessions via UserStateRepository (§6.2 stats).
//
// expand_mode only flips at the ClusterStabilityThreshold +/- Hysteresis
// boundary (§4.5 stage 4) — a cluster_energy that merely crosses the
// threshold itself, without clearing the hysteresis band, leaves the prior
// mode untouched. This is what prevents a session-to-session flap when
// cluster_energy oscillates around the threshold.
func Decide(cfg domain.IntroductionConfig, diag scheduler.Diagnostics, clusterEnergy float64, priorExpandMode bool) Decision {
	// intro_floor_effective is zeroed when the backlog is severe (§4.4.6,
	// §4.5 stage 5).
	introFloorEffective := cfg.IntroMinPerDay
	if diag.BacklogSevere {
		introFloorEffective = 0
	}

	// Stage 1: raw.
	raw := cfg.ClusterExpansionBatchSize

	// Stage 2: capacity throttle, two explicit thresholds (§4.5 stage 2).
	throttled := raw
	switch {
	case diag.CapacityUsed >= 1.1:
		throttled = introFloorEffective
	case diag.CapacityUsed >= 0.9:
		throttled = int(math.Max(float64(raw)/2, float64(introFloorEffective)))
	}

	// Stage 3: hard working-set clamp. No override once the active set has
	// reached its ceiling (§4.5 stage 3).
	var hardStopped int
	if diag.ActiveCount >= cfg.MaxWorkingSet {
		hardStopped = 0
	} else {
		headroom := cfg.MaxWorkingSet - diag.ActiveCount
		hardStopped = throttled
		if hardStopped > headroom {
			hardStopped = headroom
		}
	}

	// Stage 4: hysteresis gate on cluster_energy.
	expandMode := priorExpandMode
	switch {
	case !priorExpandMode && clusterEnergy >= cfg.ClusterStabilityThreshold+cfg.ClusterGateHysteresis:
		expandMode = true
	case priorExpandMode && clusterEnergy <= cfg.ClusterStabilityThreshold-cfg.ClusterGateHysteresis:
		expandMode = false
	}
	gated := hardStopped
	if !expandMode {
		gated = 0
	}

	// Stage 5: floor. Raised only above zero, and never past the stage-3
	// hard-stop ceiling (§4.5 stage 5 "floor cannot beat the hard
	// working-set stop").
	final := gated
	if hardStopped > 0 && final < introFloorEffective {
		final = introFloorEffective
	}
	if final > hardStopped {
		final = hardStopped
	}
	if final < 0 {
		final = 0
	}

	metrics.IntroductionAllowance.Observe(float64(final))
	if expandMode {
		metrics.ExpandMode.Set(1)
	} else {
		metrics.ExpandMode.Set(0)
	}

	return Decision{
		RawAllowance:          raw,
		AfterCapacityThrottle: throttled,
		AfterHardStop:         hardStopped,
		ExpandMode:            expandMode,
		FinalAllowance:        final,
		IntroFloorEffective:   introFloorEffective,
	}
}
