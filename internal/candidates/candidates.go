// Package candidates implements C6: assembling the eligible item set for a
// (user, goal, now) triple (spec.md §4.3).
package candidates

import (
	"context"
	"fmt"
	"log"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
)

// ContentSource is the narrow read surface this package needs from the
// content repository (§6.1): a single round trip that joins goal
// membership with the user's memory state.
type ContentSource interface {
	GetSchedulerCandidates(ctx context.Context, goalID, userID string, nowTS int64) ([]domain.Candidate, error)
	GetGoal(ctx context.Context, goalID string) (domain.Goal, error)
}

// Builder is C6. It holds no state; every call is a single store round
// trip plus O(|goal|) local bookkeeping.
type Builder struct {
	Content ContentSource

	// Logger mirrors memory.Model's package-level *log.Logger convention.
	Logger *log.Logger
}

// New constructs a candidate Builder.
func New(content ContentSource) *Builder {
	return &Builder{Content: content, Logger: log.Default()}
}

// Build returns one Candidate per goal-member node, regardless of whether
// it has user state — unseen nodes appear with energy=0, next_due_ts=0,
// review_count=0 (§4.3). It never filters by due-ness; that is the
// scheduler's job, so recently introduced items FSRS has pushed days out
// are not lost.
//
// almostDueWindowDays is accepted for configuration compatibility (§6.6)
// but intentionally unused — the builder must not filter by due window.
func (b *Builder) Build(ctx context.Context, userID, goalID string, nowTS int64, almostDueWindowDays int) ([]domain.Candidate, error) {
	goal, err := b.Content.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("%w: get_goal(%s): %v", domain.ErrGoalNotFound, goalID, err)
	}
	if len(goal.Members) == 0 {
		// B4: goal with 0 members returns empty candidates without error.
		return nil, nil
	}

	planPriority := make(map[domain.NodeID]int, len(goal.Members))
	for _, m := range goal.Members {
		planPriority[m.NodeID] = m.Priority
	}

	raw, err := b.Content.GetSchedulerCandidates(ctx, goalID, userID, nowTS)
	if err != nil {
		return nil, fmt.Errorf("%w: get_scheduler_candidates: %v", domain.ErrStoreFailure, err)
	}

	out := make([]domain.Candidate, 0, len(raw))
	for _, c := range raw {
		clamped := domain.ClampEnergy(c.Energy)
		if clamped != c.Energy {
			// §7 Inconsistency: an out-of-range energy read is a storage-
			// layer invariant violation, not a candidate-builder bug.
			if b.Logger != nil {
				b.Logger.Printf("candidates: energy out of range for node=%s: %v, clamped to %v", c.ID, c.Energy, clamped)
			}
			metrics.InconsistencyTotal.WithLabelValues("energy_out_of_range").Inc()
		}
		c.Energy = clamped
		if c.ReviewCount == 0 {
			// §3 invariant: unseen nodes must have energy exactly 0.0.
			c.Energy = 0
			c.NextDueTS = 0
		}
		if p, ok := planPriority[c.ID]; ok {
			c.PlanPriority = p
		}
		out = append(out, c)
	}
	return out, nil
}
