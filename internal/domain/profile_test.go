package domain

import (
	"errors"
	"testing"
)

func TestSessionMixConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mix     SessionMixConfig
		wantErr bool
	}{
		{"sums to one", DefaultSessionMixConfig(), false},
		{"sums to one exactly", SessionMixConfig{FracNew: 0.5, FracDue: 0.5}, false},
		{"within epsilon", SessionMixConfig{FracNew: 0.5, FracDue: 0.5005}, false},
		{"too low", SessionMixConfig{FracNew: 0.5, FracDue: 0.3}, true},
		{"too high", SessionMixConfig{FracNew: 0.8, FracDue: 0.8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mix.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidSessionMix) {
				t.Fatalf("Validate() = %v, want ErrInvalidSessionMix", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSessionMixConfig_Frac(t *testing.T) {
	mix := DefaultSessionMixConfig()
	tests := []struct {
		cat  Category
		want float64
	}{
		{CategoryNew, mix.FracNew},
		{CategoryDue, mix.FracDue},
		{CategoryReallyStruggling, mix.FracReallyStruggling},
		{CategoryStruggling, mix.FracStruggling},
		{CategoryAlmostThere, mix.FracAlmostThere},
		{CategoryAlmostMastered, mix.FracAlmostMastered},
		{CategoryMastered, 0}, // never a fill target
	}
	for _, tt := range tests {
		if got := mix.Frac(tt.cat); got != tt.want {
			t.Errorf("Frac(%v) = %v, want %v", tt.cat, got, tt.want)
		}
	}
}

func TestUserProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p UserProfile) UserProfile
		wantErr bool
	}{
		{"default is valid", func(p UserProfile) UserProfile { return p }, false},
		{"negative prereq threshold", func(p UserProfile) UserProfile { p.PrereqThreshold = -0.1; return p }, true},
		{"prereq threshold above one", func(p UserProfile) UserProfile { p.PrereqThreshold = 1.1; return p }, true},
		{"bad session mix", func(p UserProfile) UserProfile { p.SessionMix.FracNew = 2; return p }, true},
		{"negative max working set", func(p UserProfile) UserProfile { p.Introduction.MaxWorkingSet = -1; return p }, true},
		{"negative cluster expansion batch", func(p UserProfile) UserProfile { p.Introduction.ClusterExpansionBatchSize = -1; return p }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.mutate(DefaultUserProfile())
			err := p.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidProfile) {
				t.Fatalf("Validate() = %v, want ErrInvalidProfile", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestNamedProfiles_AllValid(t *testing.T) {
	for name, p := range NamedProfiles() {
		if err := p.Validate(); err != nil {
			t.Errorf("named profile %q failed validation: %v", name, err)
		}
		if p.Name != name {
			t.Errorf("profile keyed %q has Name %q", name, p.Name)
		}
	}
}

func TestHighYieldWeights(t *testing.T) {
	w := HighYieldWeights()
	if w.WYield != 10.0 {
		t.Errorf("WYield = %v, want 10.0", w.WYield)
	}
	if w.WDue != DefaultWeights().WDue || w.WNeed != DefaultWeights().WNeed {
		t.Errorf("HighYieldWeights() should only change WYield, got %+v", w)
	}
}
