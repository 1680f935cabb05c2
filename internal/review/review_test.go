package review

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/ports"
	"github.com/iqrahapp/iqrah-core/internal/propagation"
	"github.com/iqrahapp/iqrah-core/internal/store/memstore"
)

type fakeFSRS struct {
	state ports.FSRSState
	err   error
}

func (f fakeFSRS) NextStates(prior *ports.FSRSPrior, elapsedDays uint32, targetRetention float32) (ports.FSRSNextStates, error) {
	if f.err != nil {
		return ports.FSRSNextStates{}, f.err
	}
	return ports.FSRSNextStates{Again: f.state, Hard: f.state, Good: f.state, Easy: f.state}, nil
}

func newTestOrchestrator(store *memstore.Store, fsrs ports.FSRSPrimitive, now time.Time) *Orchestrator {
	mem := memory.New(fsrs, func() time.Time { return now }, nil)
	prop := propagation.New(store, store)
	return New(mem, prop, store, store, func() time.Time { return now })
}

func TestOrchestrator_ProcessReview_UnseenNode(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1, FoundationalScore: 0.5})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 2, Difficulty: 5, IntervalDays: 3}}
	o := newTestOrchestrator(store, fsrs, now)

	outcome, err := o.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if outcome.NewState.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", outcome.NewState.ReviewCount)
	}
	if outcome.DailyStats.ReviewsToday != 1 || outcome.DailyStats.Streak != 1 {
		t.Errorf("DailyStats = %+v, want first-day ReviewsToday=1 Streak=1", outcome.DailyStats)
	}

	saved, err := store.GetMemoryState(context.Background(), "u1", 1)
	if err != nil || saved == nil {
		t.Fatalf("GetMemoryState() = %v, %v, want a persisted state", saved, err)
	}
	if saved.Stability != 2 {
		t.Errorf("persisted Stability = %v, want 2", saved.Stability)
	}
}

func TestOrchestrator_ProcessReview_NodeNotFound(t *testing.T) {
	store := memstore.New()
	now := time.Now()
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o := newTestOrchestrator(store, fsrs, now)

	_, err := o.ProcessReview(context.Background(), "u1", 99, domain.Good, domain.DefaultWeights())
	if !errors.Is(err, domain.ErrNodeNotFound) {
		t.Fatalf("ProcessReview() err = %v, want ErrNodeNotFound", err)
	}
}

func TestOrchestrator_ProcessReview_PropagatesEnergyToNeighbor(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	store.AddNode(domain.Node{ID: 2}, domain.NodeMeta{NodeID: 2})
	store.AddEdge(domain.Edge{Source: 1, Target: 2, EdgeType: domain.EdgeKnowledge, DistributionType: domain.DistConst, P1: 1.0})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 2, Difficulty: 5, IntervalDays: 1}}
	o := newTestOrchestrator(store, fsrs, now)

	outcome, err := o.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if outcome.PropagationCount != 1 {
		t.Errorf("PropagationCount = %d, want 1", outcome.PropagationCount)
	}
	neighbor, err := store.GetMemoryState(context.Background(), "u1", 2)
	if err != nil || neighbor == nil {
		t.Fatalf("GetMemoryState(neighbor) = %v, %v, want a persisted energy update", neighbor, err)
	}
	if neighbor.Energy <= 0 {
		t.Errorf("neighbor Energy = %v, want > 0 after propagation", neighbor.Energy)
	}
}

func TestOrchestrator_ProcessReview_RemovesNodeFromSessionCursor(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	_ = store.SaveSessionState(context.Background(), domain.SessionCursor{UserID: "u1", NodeIDs: []domain.NodeID{1, 2, 3}})
	now := time.Now()
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o := newTestOrchestrator(store, fsrs, now)

	if _, err := o.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights()); err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	cursor, err := store.GetSessionState(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetSessionState() error = %v", err)
	}
	for _, id := range cursor.NodeIDs {
		if id == 1 {
			t.Fatalf("cursor still contains reviewed node: %v", cursor.NodeIDs)
		}
	}
}

func TestOrchestrator_ProcessReview_DailyStatsSameDayIncrements(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o := newTestOrchestrator(store, fsrs, now)

	first, err := o.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("first ProcessReview() error = %v", err)
	}
	if first.DailyStats.ReviewsToday != 1 {
		t.Fatalf("first ReviewsToday = %d, want 1", first.DailyStats.ReviewsToday)
	}

	later := now.Add(2 * time.Hour)
	o2 := newTestOrchestrator(store, fsrs, later)
	second, err := o2.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("second ProcessReview() error = %v", err)
	}
	if second.DailyStats.ReviewsToday != 2 {
		t.Errorf("second ReviewsToday = %d, want 2 (same calendar day)", second.DailyStats.ReviewsToday)
	}
	if second.DailyStats.Streak != 1 {
		t.Errorf("second Streak = %d, want 1 (same day does not bump streak)", second.DailyStats.Streak)
	}
}

func TestOrchestrator_ProcessReview_DailyStatsNextDayExtendsStreak(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	day1 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o1 := newTestOrchestrator(store, fsrs, day1)
	if _, err := o1.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights()); err != nil {
		t.Fatalf("day1 ProcessReview() error = %v", err)
	}

	day2 := day1.AddDate(0, 0, 1)
	o2 := newTestOrchestrator(store, fsrs, day2)
	outcome, err := o2.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("day2 ProcessReview() error = %v", err)
	}
	if outcome.DailyStats.Streak != 2 {
		t.Errorf("Streak = %d, want 2 after a consecutive-day review", outcome.DailyStats.Streak)
	}
	if outcome.DailyStats.ReviewsToday != 1 {
		t.Errorf("ReviewsToday = %d, want 1 on a new day", outcome.DailyStats.ReviewsToday)
	}
}

func TestOrchestrator_ProcessReview_DailyStatsGapResetsStreak(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	day1 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o1 := newTestOrchestrator(store, fsrs, day1)
	if _, err := o1.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights()); err != nil {
		t.Fatalf("day1 ProcessReview() error = %v", err)
	}

	dayAfterGap := day1.AddDate(0, 0, 3)
	o2 := newTestOrchestrator(store, fsrs, dayAfterGap)
	outcome, err := o2.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights())
	if err != nil {
		t.Fatalf("ProcessReview() error = %v", err)
	}
	if outcome.DailyStats.Streak != 1 {
		t.Errorf("Streak = %d, want reset to 1 after a multi-day gap", outcome.DailyStats.Streak)
	}
}

func TestOrchestrator_ProcessReview_UnknownNodeFailsBeforeWrite(t *testing.T) {
	store := memstore.New()
	// No node registered: GetNodeMeta fails before any write is attempted.
	now := time.Now()
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	o := newTestOrchestrator(store, fsrs, now)
	_, err := o.ProcessReview(context.Background(), "u1", 42, domain.Good, domain.DefaultWeights())
	if err == nil {
		t.Fatal("ProcessReview() error = nil, want an error for an unknown node")
	}
}

type erroringEdges struct{}

func (erroringEdges) GetEdgesFrom(ctx context.Context, nodeID domain.NodeID, edgeType domain.EdgeType) ([]domain.Edge, error) {
	return nil, errors.New("boom")
}

func TestOrchestrator_ProcessReview_LogsPartialPropagation(t *testing.T) {
	store := memstore.New()
	store.AddNode(domain.Node{ID: 1}, domain.NodeMeta{NodeID: 1})
	now := time.Now()
	fsrs := fakeFSRS{state: ports.FSRSState{Stability: 1, Difficulty: 1, IntervalDays: 1}}
	mem := memory.New(fsrs, func() time.Time { return now }, nil)
	prop := propagation.New(erroringEdges{}, store)

	var buf bytes.Buffer
	o := New(mem, prop, store, store, func() time.Time { return now })
	o.Logger = log.New(&buf, "", 0)

	if _, err := o.ProcessReview(context.Background(), "u1", 1, domain.Good, domain.DefaultWeights()); err != nil {
		t.Fatalf("ProcessReview() error = %v, want nil: propagation failure is non-fatal", err)
	}
	if !strings.Contains(buf.String(), "propagation partial") {
		t.Errorf("Logger output = %q, want it to mention the partial propagation", buf.String())
	}
}
