// Package review implements C10: process_review, the orchestrator that
// turns one graded review into a durable state change (spec.md §4.8).
package review

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/ports"
	"github.com/iqrahapp/iqrah-core/internal/propagation"
)

// ContentSource is the narrow read surface this package needs from the
// content repository.
type ContentSource interface {
	GetNodeMeta(ctx context.Context, nodeID domain.NodeID) (domain.NodeMeta, error)
}

// Orchestrator is C10. It wires the memory model (C4) and propagation
// engine (C5) together under one atomic store write.
type Orchestrator struct {
	Memory      *memory.Model
	Propagation *propagation.Engine
	Content     ContentSource
	State       ports.UserStateRepository
	Now         ports.Clock

	// Logger mirrors memory.Model's package-level *log.Logger convention.
	Logger *log.Logger
}

// New constructs an Orchestrator.
func New(mem *memory.Model, prop *propagation.Engine, content ContentSource, state ports.UserStateRepository, now ports.Clock) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{Memory: mem, Propagation: prop, Content: content, State: state, Now: now, Logger: log.Default()}
}

// Outcome is the result of a completed review, returned so callers (the
// session loop, the bandit feedback step) can react to it.
type Outcome struct {
	NewState         domain.MemoryState
	Priority         float64
	PropagationCount int
	DailyStats       domain.DailyStats
}

// ProcessReview runs the full §4.8 pipeline for one (user, node, grade):
//  1. load prior state and node metadata
//  2. apply the grade through the memory model (C4)
//  3. propagate the resulting energy delta to knowledge neighbors (C5)
//  4. persist the new state, propagation updates, and an audit log atomically
//  5. remove the node from the session cursor, if present
//  6. roll the daily-stats/streak counter forward
//
// Steps 1-3 are pure reads and computation. Step 4 is the review's single
// atomic transaction (§4.8 step 4, §7 StoreFailure); steps 5-6 are separate
// writes made after it commits, and their errors are ignored.
func (o *Orchestrator) ProcessReview(ctx context.Context, userID string, nodeID domain.NodeID, grade domain.Grade, weights domain.Weights) (Outcome, error) {
	now := o.Now()

	prior, err := o.State.GetMemoryState(ctx, userID, nodeID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: get_memory_state: %v", domain.ErrStoreFailure, err)
	}
	meta, err := o.Content.GetNodeMeta(ctx, nodeID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: get_node_meta(%s): %v", domain.ErrNodeNotFound, nodeID, err)
	}

	update, err := o.Memory.ApplyGrade(prior, userID, nodeID, grade, now, weights, meta.FoundationalScore)
	if err != nil {
		return Outcome{}, err
	}
	metrics.EnergyDelta.Observe(update.EnergyDelta)

	var propUpdates []propagation.Update
	if o.Propagation != nil {
		propUpdates, err = o.Propagation.Propagate(ctx, userID, nodeID, update.EnergyDelta)
		if err != nil {
			// PropagationPartial is non-fatal (§7): the partial updates are
			// dropped and the review write continues.
			o.logPartialPropagation(userID, nodeID, err)
			propUpdates = nil
		}
	}

	energyUpdates := make([]ports.EnergyUpdate, 0, len(propUpdates))
	for _, u := range propUpdates {
		energyUpdates = append(energyUpdates, ports.EnergyUpdate{NodeID: u.Target, NewEnergy: u.NewEnergy})
	}

	var logEntry *domain.PropagationLogEntry
	if len(propUpdates) > 0 {
		entry := domain.PropagationLogEntry{
			Timestamp: now,
			Source:    nodeID,
			Updates:   make([]domain.PropagationUpdate, 0, len(propUpdates)),
		}
		for _, u := range propUpdates {
			entry.Updates = append(entry.Updates, domain.PropagationUpdate{
				Target: u.Target,
				Delta:  u.Delta,
				Path:   u.Path,
				Reason: "knowledge_edge_propagation",
			})
		}
		logEntry = &entry
	}

	if err := o.State.SaveReviewAtomic(ctx, userID, update.NewState, energyUpdates, logEntry); err != nil {
		metrics.ReviewStoreFailures.Inc()
		return Outcome{}, fmt.Errorf("%w: save_review_atomic: %v", domain.ErrStoreFailure, err)
	}

	cursor, err := o.State.GetSessionState(ctx, userID)
	if err == nil {
		cursor.Remove(nodeID)
		_ = o.State.SaveSessionState(ctx, cursor)
	}

	stats := o.advanceDailyStats(ctx, userID, now)

	metrics.ReviewsProcessed.WithLabelValues(grade.String()).Inc()

	return Outcome{
		NewState:         update.NewState,
		Priority:         update.Priority,
		PropagationCount: len(propUpdates),
		DailyStats:       stats,
	}, nil
}

func (o *Orchestrator) logPartialPropagation(userID string, nodeID domain.NodeID, err error) {
	// metrics.PropagationPartialTotal is incremented inside the engine
	// itself; this is the distinct §7 "logged" requirement for the event.
	if o.Logger != nil {
		o.Logger.Printf("review: propagation partial for user=%s node=%s: %v", userID, nodeID, err)
	}
}

// advanceDailyStats rolls the per-user review counter and streak forward
// (§4.8 step 6). A gap of more than one calendar day resets the streak; the
// same calendar day only increments reviews_today.
func (o *Orchestrator) advanceDailyStats(ctx context.Context, userID string, now time.Time) domain.DailyStats {
	today := now.Format("2006-01-02")

	raw, found, err := o.State.GetStat(ctx, userID, "daily_stats_last_date")
	stats := domain.DailyStats{UserID: userID, LastReviewDate: today, ReviewsToday: 1, Streak: 1}
	if err == nil && found {
		prevDate := raw
		prevReviews, _, _ := o.State.GetStat(ctx, userID, "daily_stats_reviews_today")
		prevStreak, _, _ := o.State.GetStat(ctx, userID, "daily_stats_streak")

		switch prevDate {
		case today:
			stats.ReviewsToday = atoiOrOne(prevReviews) + 1
			stats.Streak = atoiOrOne(prevStreak)
		default:
			yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
			if prevDate == yesterday {
				stats.Streak = atoiOrOne(prevStreak) + 1
			} else {
				stats.Streak = 1
			}
			stats.ReviewsToday = 1
		}
	}

	_ = o.State.SetStat(ctx, userID, "daily_stats_last_date", stats.LastReviewDate)
	_ = o.State.SetStat(ctx, userID, "daily_stats_reviews_today", strconv.Itoa(stats.ReviewsToday))
	_ = o.State.SetStat(ctx, userID, "daily_stats_streak", strconv.Itoa(stats.Streak))

	return stats
}

func atoiOrOne(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 1
	}
	return n
}
