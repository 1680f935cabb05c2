package memory

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// fakeFSRS is a scripted ports.FSRSPrimitive, the same shape as the
// teacher's handler tests stub out an external collaborator with a
// function field instead of a full fake implementation.
type fakeFSRS struct {
	next func(prior *ports.FSRSPrior, elapsedDays uint32, targetRetention float32) (ports.FSRSNextStates, error)
}

func (f fakeFSRS) NextStates(prior *ports.FSRSPrior, elapsedDays uint32, targetRetention float32) (ports.FSRSNextStates, error) {
	return f.next(prior, elapsedDays, targetRetention)
}

func constantStates(s ports.FSRSState) ports.FSRSNextStates {
	return ports.FSRSNextStates{Again: s, Hard: s, Good: s, Easy: s}
}

func TestModel_ApplyGrade_UnseenNode(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{next: func(prior *ports.FSRSPrior, elapsedDays uint32, tr float32) (ports.FSRSNextStates, error) {
		if prior != nil {
			t.Errorf("expected nil prior for unseen node, got %+v", prior)
		}
		if elapsedDays != 0 {
			t.Errorf("expected 0 elapsed days for unseen node, got %d", elapsedDays)
		}
		return constantStates(ports.FSRSState{Stability: 2, Difficulty: 5, IntervalDays: 1}), nil
	}}

	m := New(fsrs, func() time.Time { return now }, nil)
	update, err := m.ApplyGrade(nil, "u1", 42, domain.Good, now, domain.DefaultWeights(), 0.5)
	if err != nil {
		t.Fatalf("ApplyGrade() error = %v", err)
	}
	if update.NewState.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", update.NewState.ReviewCount)
	}
	if update.NewState.Energy <= 0 {
		t.Errorf("Energy = %v, want > 0 after a Good grade from zero", update.NewState.Energy)
	}
	wantDue := now.Add(24 * time.Hour)
	if !update.NewState.DueAt.Equal(wantDue) {
		t.Errorf("DueAt = %v, want %v", update.NewState.DueAt, wantDue)
	}
}

func TestModel_ApplyGrade_AgainReducesEnergy(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{next: func(prior *ports.FSRSPrior, elapsedDays uint32, tr float32) (ports.FSRSNextStates, error) {
		return constantStates(ports.FSRSState{Stability: 1, Difficulty: 6, IntervalDays: 1}), nil
	}}
	m := New(fsrs, func() time.Time { return now }, nil)

	prior := &domain.MemoryState{Energy: 0.5, ReviewCount: 3, LastReviewed: now.Add(-48 * time.Hour)}
	update, err := m.ApplyGrade(prior, "u1", 1, domain.Again, now, domain.DefaultWeights(), 0)
	if err != nil {
		t.Fatalf("ApplyGrade() error = %v", err)
	}
	if update.NewState.Energy >= prior.Energy {
		t.Errorf("Energy = %v, want < prior %v after Again", update.NewState.Energy, prior.Energy)
	}
	if update.NewState.ReviewCount != 4 {
		t.Errorf("ReviewCount = %d, want 4", update.NewState.ReviewCount)
	}
}

func TestModel_ApplyGrade_NegativeElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{next: func(prior *ports.FSRSPrior, elapsedDays uint32, tr float32) (ports.FSRSNextStates, error) {
		t.Fatal("FSRS should not be consulted when elapsed is negative")
		return ports.FSRSNextStates{}, nil
	}}
	m := New(fsrs, func() time.Time { return now }, nil)

	prior := &domain.MemoryState{ReviewCount: 1, LastReviewed: now.Add(24 * time.Hour)}
	_, err := m.ApplyGrade(prior, "u1", 1, domain.Good, now, domain.DefaultWeights(), 0)
	if !errors.Is(err, domain.ErrNegativeElapsed) {
		t.Fatalf("ApplyGrade() err = %v, want ErrNegativeElapsed", err)
	}
}

func TestModel_ApplyGrade_UnknownGrade(t *testing.T) {
	m := New(fakeFSRS{next: func(*ports.FSRSPrior, uint32, float32) (ports.FSRSNextStates, error) {
		t.Fatal("FSRS should not be consulted for a bad grade")
		return ports.FSRSNextStates{}, nil
	}}, nil, nil)

	_, err := m.ApplyGrade(nil, "u1", 1, domain.Grade(99), time.Now(), domain.DefaultWeights(), 0)
	if !errors.Is(err, domain.ErrUnknownGrade) {
		t.Fatalf("ApplyGrade() err = %v, want ErrUnknownGrade", err)
	}
}

func TestModel_ApplyGrade_NaNFromFSRS(t *testing.T) {
	fsrs := fakeFSRS{next: func(*ports.FSRSPrior, uint32, float32) (ports.FSRSNextStates, error) {
		return constantStates(ports.FSRSState{Stability: math.NaN(), Difficulty: 5, IntervalDays: 1}), nil
	}}
	m := New(fsrs, nil, nil)

	_, err := m.ApplyGrade(nil, "u1", 1, domain.Good, time.Now(), domain.DefaultWeights(), 0)
	if !errors.Is(err, domain.ErrFSRSNaN) {
		t.Fatalf("ApplyGrade() err = %v, want ErrFSRSNaN", err)
	}
}

func TestPriority(t *testing.T) {
	w := domain.DefaultWeights()
	tests := []struct {
		name        string
		daysOverdue float64
		energy      float64
		foundational float64
		want        float64
	}{
		{"fresh, full energy, no foundation", 0, 1, 0, 0},
		{"overdue term", 2, 1, 0, w.WDue * 2},
		{"need term", 0, 0.5, 0, w.WNeed * 0.5},
		{"foundation term", 0, 1, 0.8, w.WYield * 0.8},
		{"negative overdue clamped to zero", -5, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Priority(w, tt.daysOverdue, tt.energy, tt.foundational)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Priority() = %v, want %v", got, tt.want)
			}
		})
	}
}
