package domain

import "testing"

func TestCategorize(t *testing.T) {
	const now = int64(1_000_000)
	tests := []struct {
		name string
		c    Candidate
		want Category
	}{
		{"never reviewed is new", Candidate{ReviewCount: 0, Energy: 0.9, NextDueTS: now - 10}, CategoryNew},
		{"due overrides energy tier", Candidate{ReviewCount: 1, Energy: 0.95, NextDueTS: now - 1}, CategoryDue},
		{"due at exactly now counts as due", Candidate{ReviewCount: 1, Energy: 0.95, NextDueTS: now}, CategoryDue},
		{"not due, low energy", Candidate{ReviewCount: 1, Energy: 0.1, NextDueTS: now + 100}, CategoryReallyStruggling},
		{"not due, struggling band", Candidate{ReviewCount: 1, Energy: 0.3, NextDueTS: now + 100}, CategoryStruggling},
		{"not due, almost there band", Candidate{ReviewCount: 1, Energy: 0.5, NextDueTS: now + 100}, CategoryAlmostThere},
		{"not due, almost mastered band", Candidate{ReviewCount: 1, Energy: 0.7, NextDueTS: now + 100}, CategoryAlmostMastered},
		{"not due, mastered band", Candidate{ReviewCount: 1, Energy: 0.9, NextDueTS: now + 100}, CategoryMastered},
		{"boundary 0.2 is struggling not really-struggling", Candidate{ReviewCount: 1, Energy: 0.2, NextDueTS: now + 100}, CategoryStruggling},
		{"boundary 0.85 is mastered not almost-mastered", Candidate{ReviewCount: 1, Energy: 0.85, NextDueTS: now + 100}, CategoryMastered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.c, now); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategory_String(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{CategoryNew, "new"},
		{CategoryDue, "due"},
		{CategoryReallyStruggling, "really_struggling"},
		{CategoryMastered, "mastered"},
		{Category(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
