package introduction

import (
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/scheduler"
)

func baseConfig() domain.IntroductionConfig {
	return domain.IntroductionConfig{
		ClusterExpansionBatchSize: 10,
		ClusterStabilityThreshold: 0.5,
		ClusterGateHysteresis:     0.05,
		MaxWorkingSet:             100,
		IntroMinPerDay:            2,
	}
}

func TestDecide_RawAllowanceUnthrottled(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	d := Decide(cfg, diag, 0.6, true)
	if d.RawAllowance != cfg.ClusterExpansionBatchSize {
		t.Errorf("RawAllowance = %d, want %d", d.RawAllowance, cfg.ClusterExpansionBatchSize)
	}
	if d.AfterCapacityThrottle != cfg.ClusterExpansionBatchSize {
		t.Errorf("AfterCapacityThrottle = %d, want untouched %d", d.AfterCapacityThrottle, cfg.ClusterExpansionBatchSize)
	}
}

func TestDecide_CapacityThrottleHalvesNearCeiling(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.95, ActiveCount: 50}
	d := Decide(cfg, diag, 0.6, true)
	want := cfg.ClusterExpansionBatchSize / 2
	if d.AfterCapacityThrottle != want {
		t.Errorf("AfterCapacityThrottle = %d, want %d", d.AfterCapacityThrottle, want)
	}
}

func TestDecide_CapacityThrottleFloorsAtIntroMin(t *testing.T) {
	cfg := baseConfig()
	cfg.ClusterExpansionBatchSize = 1 // half of 1 is 0, below IntroMinPerDay
	diag := scheduler.Diagnostics{CapacityUsed: 0.95, ActiveCount: 50}
	d := Decide(cfg, diag, 0.6, true)
	if d.AfterCapacityThrottle != cfg.IntroMinPerDay {
		t.Errorf("AfterCapacityThrottle = %d, want IntroMinPerDay %d", d.AfterCapacityThrottle, cfg.IntroMinPerDay)
	}
}

func TestDecide_CapacityThrottleDropsToFloorAboveHardCeiling(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 1.2, ActiveCount: 100}
	d := Decide(cfg, diag, 0.6, true)
	if d.AfterCapacityThrottle != cfg.IntroMinPerDay {
		t.Errorf("AfterCapacityThrottle = %d, want intro_floor_effective %d", d.AfterCapacityThrottle, cfg.IntroMinPerDay)
	}
}

func TestDecide_CapacityThrottleZeroWhenBacklogSevere(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 1.2, ActiveCount: 100, BacklogSevere: true}
	d := Decide(cfg, diag, 0.6, true)
	if d.AfterCapacityThrottle != 0 {
		t.Errorf("AfterCapacityThrottle = %d, want 0: intro floor zeroed when backlog is severe", d.AfterCapacityThrottle)
	}
}

func TestDecide_HardStopAtWorkingSetCeiling(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.5, ActiveCount: cfg.MaxWorkingSet}
	d := Decide(cfg, diag, 0.6, true)
	if d.AfterHardStop != 0 {
		t.Errorf("AfterHardStop = %d, want 0 at working-set ceiling", d.AfterHardStop)
	}
}

func TestDecide_HardStopClampsToHeadroom(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxWorkingSet = 15
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10} // headroom = 5, raw = 10
	d := Decide(cfg, diag, 0.6, true)
	if d.AfterHardStop != 5 {
		t.Errorf("AfterHardStop = %d, want 5 (headroom)", d.AfterHardStop)
	}
}

func TestDecide_HysteresisGate_EntersExpandModeAboveUpperBand(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold+cfg.ClusterGateHysteresis, false)
	if !d.ExpandMode {
		t.Error("ExpandMode = false, want true once cluster_energy clears the upper hysteresis band")
	}
	if d.FinalAllowance == 0 {
		t.Error("FinalAllowance = 0, want nonzero once expand_mode is on")
	}
}

func TestDecide_HysteresisGate_StaysClosedInsideBand(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	// cluster_energy is above the threshold but inside the hysteresis band,
	// not clearing it, so a previously-closed gate stays closed.
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold+cfg.ClusterGateHysteresis/2, false)
	if d.ExpandMode {
		t.Error("ExpandMode = true, want false: cluster_energy did not clear the hysteresis band")
	}
	// The stage-5 floor still applies even with the gate closed, as long as
	// the hard working-set stop leaves room for it.
	if d.FinalAllowance != cfg.IntroMinPerDay {
		t.Errorf("FinalAllowance = %d, want intro floor %d while expand_mode is off", d.FinalAllowance, cfg.IntroMinPerDay)
	}
}

func TestDecide_HysteresisGate_ExitsExpandModeBelowLowerBand(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold-cfg.ClusterGateHysteresis, true)
	if d.ExpandMode {
		t.Error("ExpandMode = true, want false once cluster_energy drops through the lower hysteresis band")
	}
}

func TestDecide_HysteresisGate_StaysOpenInsideBandOnceOpen(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	// Already expanding; cluster_energy dips toward the threshold but does
	// not clear the lower band, so expand_mode does not flap shut.
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold-cfg.ClusterGateHysteresis/2, true)
	if !d.ExpandMode {
		t.Error("ExpandMode = false, want true: cluster_energy stayed inside the hysteresis band")
	}
}

func TestDecide_FloorNeverExceedsHardStop(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxWorkingSet = 11
	cfg.IntroMinPerDay = 8
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10} // headroom = 1
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold+cfg.ClusterGateHysteresis, false)
	if d.FinalAllowance > d.AfterHardStop {
		t.Errorf("FinalAllowance = %d, want <= AfterHardStop %d", d.FinalAllowance, d.AfterHardStop)
	}
	if d.FinalAllowance != 1 {
		t.Errorf("FinalAllowance = %d, want 1 (floor cannot beat the hard working-set stop)", d.FinalAllowance)
	}
}

func TestDecide_FinalAllowanceAtLeastFloorWhenExpandModeOn(t *testing.T) {
	cfg := baseConfig()
	diag := scheduler.Diagnostics{CapacityUsed: 0.1, ActiveCount: 10}
	d := Decide(cfg, diag, cfg.ClusterStabilityThreshold+cfg.ClusterGateHysteresis, false)
	if d.FinalAllowance < cfg.IntroMinPerDay {
		t.Errorf("FinalAllowance = %d, want >= IntroMinPerDay %d", d.FinalAllowance, cfg.IntroMinPerDay)
	}
}

func TestClusterEnergy(t *testing.T) {
	tests := []struct {
		name string
		cs   []domain.Candidate
		want float64
	}{
		{"empty", nil, 0},
		{"all unseen", []domain.Candidate{{ReviewCount: 0, Energy: 0.9}}, 0},
		{"mixed", []domain.Candidate{
			{ReviewCount: 1, Energy: 0.4},
			{ReviewCount: 1, Energy: 0.6},
			{ReviewCount: 0, Energy: 0.99}, // excluded: never reviewed
		}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClusterEnergy(tt.cs); got != tt.want {
				t.Errorf("ClusterEnergy() = %v, want %v", got, tt.want)
			}
		})
	}
}
