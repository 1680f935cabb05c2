// Package ports defines the capability-set interfaces the core depends on.
// Any backend — local file-based, in-memory, remote RPC — that satisfies
// these contracts is valid (§6, §9 "Dynamic dispatch / polymorphism").
package ports

import (
	"context"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
)

// ContentRepository is the read-only content-graph collaborator (C1, §6.1).
type ContentRepository interface {
	GetSchedulerCandidates(ctx context.Context, goalID, userID string, nowTS int64) ([]domain.Candidate, error)
	GetPrerequisiteParents(ctx context.Context, nodeIDs []domain.NodeID) (map[domain.NodeID][]domain.NodeID, error)
	GetEdgesFrom(ctx context.Context, nodeID domain.NodeID, edgeType domain.EdgeType) ([]domain.Edge, error)
	GetGoal(ctx context.Context, goalID string) (domain.Goal, error)
	GetNodesForGoal(ctx context.Context, goalID string) ([]domain.NodeID, error)
	GetNodeMeta(ctx context.Context, nodeID domain.NodeID) (domain.NodeMeta, error)
	GetVersesForChapter(ctx context.Context, chapterID int64) ([]VerseRef, error)
	GetWordsForVerse(ctx context.Context, verseKey domain.NodeKey) ([]domain.NodeID, error)
	NodeExists(ctx context.Context, nodeID domain.NodeID) (bool, error)
}

// VerseRef is the minimal verse descriptor returned for initial placement.
type VerseRef struct {
	NodeID domain.NodeID
	Key    domain.NodeKey
}

// UserStateRepository is the read/write per-user collaborator (C2, §6.2).
type UserStateRepository interface {
	GetMemoryState(ctx context.Context, userID string, nodeID domain.NodeID) (*domain.MemoryState, error)
	SaveMemoryState(ctx context.Context, state domain.MemoryState) error
	SaveMemoryStatesBatch(ctx context.Context, states []domain.MemoryState) error
	GetMemoryBasics(ctx context.Context, userID string, nodeIDs []domain.NodeID) (map[domain.NodeID]MemoryBasics, error)

	// SaveReviewAtomic persists the new state for node, the energy updates
	// for every propagation target, and an optional log record, as a
	// single all-or-nothing transaction (§4.8 step 4).
	SaveReviewAtomic(ctx context.Context, userID string, newState domain.MemoryState, energyUpdates []EnergyUpdate, log *domain.PropagationLogEntry) error

	GetDueStates(ctx context.Context, userID string, beforeTS int64, limit int) ([]domain.MemoryState, error)

	GetBanditArms(ctx context.Context, userID, goalGroup string) ([]domain.BanditArm, error)
	UpdateBanditArm(ctx context.Context, arm domain.BanditArm) error

	GetSessionState(ctx context.Context, userID string) (domain.SessionCursor, error)
	SaveSessionState(ctx context.Context, cursor domain.SessionCursor) error
	ClearSessionState(ctx context.Context, userID string) error

	GetStat(ctx context.Context, userID, key string) (string, bool, error)
	SetStat(ctx context.Context, userID, key, value string) error

	// ListUserNodeIDs enumerates every node id this user has memory state
	// for, independent of whether those ids still resolve in any content
	// snapshot. Used by the §6.5 update-verification preflight.
	ListUserNodeIDs(ctx context.Context, userID string) ([]domain.NodeID, error)
}

// MemoryBasics is the minimal energy/due-time projection used by C6.
type MemoryBasics struct {
	Energy    float64
	NextDueTS int64
}

// EnergyUpdate is one propagation target's new clamped energy, as passed to
// SaveReviewAtomic.
type EnergyUpdate struct {
	NodeID    domain.NodeID
	NewEnergy float64
}

// FSRSNextStates is the four candidate next-states returned by the FSRS
// primitive, one per grade (§6.3).
type FSRSNextStates struct {
	Again FSRSState
	Hard  FSRSState
	Good  FSRSState
	Easy  FSRSState
}

// FSRSState is one {S, D, interval_days} triple.
type FSRSState struct {
	Stability    float64
	Difficulty   float64
	IntervalDays uint32
}

// Pick returns the branch matching grade.
func (n FSRSNextStates) Pick(g domain.Grade) FSRSState {
	switch g {
	case domain.Again:
		return n.Again
	case domain.Hard:
		return n.Hard
	case domain.Easy:
		return n.Easy
	default:
		return n.Good
	}
}

// FSRSPrimitive is the pure callable FSRS next-state function (C3, §6.3).
// The core treats FSRS as an external collaborator: it specifies only the
// inputs, the grade mapping, and how the output integrates with energy and
// scheduling — it never recomputes FSRS's own algorithm.
type FSRSPrimitive interface {
	NextStates(prior *FSRSPrior, elapsedDays uint32, targetRetention float32) (FSRSNextStates, error)
}

// FSRSPrior is the optional prior (stability, difficulty) pair.
type FSRSPrior struct {
	Stability  float64
	Difficulty float64
}

// Clock is an injectable time source, threaded through every stateful
// component so tests can pin "now" (the teacher's `now func() time.Time`
// convention, e.g. reputation.Tracker, mlscheduler, autoscale).
type Clock func() time.Time

// RNG is the seed for the bandit sampler and the optional edge-distribution
// sampler — both explicit parameters per §9 ("Global state").
type RNG interface {
	Float64() float64
}
