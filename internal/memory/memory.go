// Package memory implements C4: the per-item FSRS-plus-energy state
// lifecycle and the grade -> state update (spec.md §4.1).
package memory

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

const day = 24 * time.Hour

// TargetRetention is the FSRS target retention passed on every call (§4.1 step 2).
const TargetRetention = 0.8

// Model owns the grade -> state update and priority recomputation. It holds
// no per-user state of its own — every call is pure given its inputs, per
// §5 ("Pure computations ... never yield").
type Model struct {
	FSRS ports.FSRSPrimitive
	Now  ports.Clock

	// logger mirrors the teacher's package-level *log.Logger convention
	// (internal/app/executor.go uses the stdlib "log" package directly).
	Logger *log.Logger
}

// New constructs a Model with the given FSRS primitive and clock.
func New(fsrsPrimitive ports.FSRSPrimitive, now ports.Clock, logger *log.Logger) *Model {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Model{FSRS: fsrsPrimitive, Now: now, Logger: logger}
}

// Update is the result of applying one grade to one prior state (§4.1 step 6).
type Update struct {
	NewState    domain.MemoryState
	EnergyDelta float64
	Priority    float64
}

// ApplyGrade computes the new MemoryState, energy delta, and recomputed
// priority for a single review, per §4.1 steps 1-5.
//
// prior may be nil for an unseen node. weights come from the active
// profile (§4.7). foundationalScore is the node's static metadata value
// used by the w_yield term.
func (m *Model) ApplyGrade(prior *domain.MemoryState, userID string, nodeID domain.NodeID, grade domain.Grade, now time.Time, weights domain.Weights, foundationalScore float64) (Update, error) {
	if grade < domain.Again || grade > domain.Easy {
		return Update{}, domain.ErrUnknownGrade
	}

	var elapsedDays uint32
	var currentEnergy float64
	var fsrsPrior *ports.FSRSPrior

	if prior != nil && prior.ReviewCount > 0 {
		elapsed := now.Sub(prior.LastReviewed)
		if elapsed < 0 {
			// Clock skew: never a negative elapsed count, per BadInput (§7).
			return Update{}, fmt.Errorf("%w: now precedes last_reviewed", domain.ErrNegativeElapsed)
		}
		elapsedDays = uint32(math.Floor(elapsed.Hours() / 24))
		fsrsPrior = &ports.FSRSPrior{Stability: prior.Stability, Difficulty: prior.Difficulty}
		currentEnergy = prior.Energy
	}

	candidates, err := m.FSRS.NextStates(fsrsPrior, elapsedDays, TargetRetention)
	if err != nil {
		return Update{}, fmt.Errorf("%w: fsrs primitive: %v", domain.ErrStoreFailure, err)
	}
	chosen := candidates.Pick(grade)

	if math.IsNaN(chosen.Stability) || math.IsNaN(chosen.Difficulty) {
		// A NaN from the FSRS primitive is a bug in the primitive: assert,
		// log, and leave prior state unchanged (§4.1 "Failure semantics").
		m.Logger.Printf("memory: FSRS primitive returned NaN for user=%s node=%s grade=%s", userID, nodeID, grade)
		metrics.InconsistencyTotal.WithLabelValues("fsrs_nan").Inc()
		return Update{}, domain.ErrFSRSNaN
	}

	dueAt := now.Add(time.Duration(chosen.IntervalDays) * day)

	base := domain.EnergyDeltaBase[grade]
	energyDelta := base * (1 - currentEnergy)
	newEnergy := domain.ClampEnergy(currentEnergy + energyDelta)

	reviewCount := uint32(1)
	if prior != nil {
		reviewCount = prior.ReviewCount + 1
	}

	newState := domain.MemoryState{
		UserID:       userID,
		NodeID:       nodeID,
		Stability:    chosen.Stability,
		Difficulty:   chosen.Difficulty,
		Energy:       newEnergy,
		LastReviewed: now,
		DueAt:        dueAt,
		ReviewCount:  reviewCount,
	}

	priority := Priority(weights, daysSinceDue(dueAt, now, newState.ReviewCount), newEnergy, foundationalScore)

	return Update{NewState: newState, EnergyDelta: energyDelta, Priority: priority}, nil
}

// Priority computes the §4.1 step 5 / §4.4.2 priority formula:
//
//	priority = w_due*max(0, days_since_due) + w_need*max(0, 1-energy) + w_yield*foundational
func Priority(w domain.Weights, daysSinceDueVal float64, energy float64, foundational float64) float64 {
	overdue := daysSinceDueVal
	if overdue < 0 {
		overdue = 0
	}
	need := 1 - energy
	if need < 0 {
		need = 0
	}
	return w.WDue*overdue + w.WNeed*need + w.WYield*foundational
}

// daysSinceDue is 0 immediately after a fresh review (due_at is in the
// future), included here for symmetry with the scheduler's own
// overdue_days computation over candidates already in the store.
func daysSinceDue(dueAt, now time.Time, reviewCount uint32) float64 {
	if reviewCount == 0 {
		return 0
	}
	d := now.Sub(dueAt).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}
