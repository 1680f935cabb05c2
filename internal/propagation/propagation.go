// Package propagation implements C5: spreading a review's energy delta from
// the reviewed node to related nodes via typed knowledge edges (spec.md §4.2).
package propagation

import (
	"context"
	"fmt"
	"math"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// TriggerThreshold is the minimum |Δenergy_source| that triggers a walk;
// smaller deltas are logged as self-only (§4.2 "Triggering").
const TriggerThreshold = 1e-4

// DropThreshold is the minimum |Δt| a target update must clear to survive.
const DropThreshold = 1e-4

// MaxDepth bounds the breadth-limited traversal so it always terminates,
// independent of graph size (§4.2 "Walk", §9 "Cyclic graphs").
const MaxDepth = 4

// EdgeSource reads outgoing knowledge edges. Narrower than the full
// ContentRepository so the engine's dependency surface is obvious.
type EdgeSource interface {
	GetEdgesFrom(ctx context.Context, nodeID domain.NodeID, edgeType domain.EdgeType) ([]domain.Edge, error)
}

// EnergySource reads the current energy for a batch of nodes. The walk
// itself only needs edges; this is consulted once, after the walk finds its
// candidate targets, to clamp each raw delta against the target's present
// energy (§4.2 "Clamping").
type EnergySource interface {
	GetMemoryBasics(ctx context.Context, userID string, nodeIDs []domain.NodeID) (map[domain.NodeID]ports.MemoryBasics, error)
}

// Update is one (target, Δenergy) result of a propagation walk. NewEnergy is
// the already-clamped resulting energy, so callers can persist it directly
// without re-reading the target's prior value.
type Update struct {
	Target    domain.NodeID
	Delta     float64
	NewEnergy float64
	Path      []domain.NodeID
}

// Decay is a monotonically non-increasing function of BFS depth with
// decay(1) = 1 (§4.2 "Walk"). The concrete form is an implementation
// parameter (§9 open question); this implementation uses geometric decay,
// halving the contribution at each additional hop.
func Decay(depth int) float64 {
	if depth <= 1 {
		return 1
	}
	return math.Pow(0.5, float64(depth-1))
}

// Engine is C5. It holds no per-user state; every Propagate call is pure
// given its EdgeSource and EnergySource.
type Engine struct {
	Edges  EdgeSource
	Energy EnergySource
}

// New constructs a propagation Engine.
func New(edges EdgeSource, energy EnergySource) *Engine {
	return &Engine{Edges: edges, Energy: energy}
}

// Propagate walks outgoing knowledge edges from source and returns the
// clamped energy updates for every affected neighbor. A node's own
// propagated delta is never fed back into the same walk (§4.2 "Ordering
// guarantee").
//
// If the edge store errors mid-walk, Propagate returns the updates computed
// so far together with the error (§4.2 "Failure semantics", §7
// PropagationPartial); the caller treats this as non-fatal. Those partial
// updates carry Target, raw Delta and Path only: they are not clamped and
// NewEnergy is left at zero.
func (e *Engine) Propagate(ctx context.Context, userID string, source domain.NodeID, deltaSource float64) ([]Update, error) {
	if math.Abs(deltaSource) <= TriggerThreshold {
		return nil, nil
	}

	type frontierItem struct {
		node  domain.NodeID
		path  []domain.NodeID
		delta float64
	}

	visited := map[domain.NodeID]bool{source: true}
	best := map[domain.NodeID]Update{}

	frontier := []frontierItem{{node: source, path: []domain.NodeID{source}, delta: deltaSource}}

	for depth := 1; depth <= MaxDepth && len(frontier) > 0; depth++ {
		var next []frontierItem
		newlyDiscovered := map[domain.NodeID]frontierItem{}

		for _, cur := range frontier {
			edges, err := e.Edges.GetEdgesFrom(ctx, cur.node, domain.EdgeKnowledge)
			if err != nil {
				metrics.PropagationPartialTotal.Inc()
				return collectUpdates(best), fmt.Errorf("%w: %v", domain.ErrPropagationPartial, err)
			}

			for _, edge := range edges {
				target := edge.Target
				if visited[target] {
					continue
				}

				delta := cur.delta * edge.Weight() * Decay(depth)

				path := make([]domain.NodeID, len(cur.path)+1)
				copy(path, cur.path)
				path[len(cur.path)] = target

				if existing, ok := best[target]; !ok || math.Abs(delta) > math.Abs(existing.Delta) {
					best[target] = Update{Target: target, Delta: delta, Path: path}
				}

				// Multiple edges may reach `target` within this same
				// level (from different frontier nodes); keep the one
				// with the largest-magnitude delta for the next level's
				// expansion too, mirroring the max-magnitude rule.
				if existing, ok := newlyDiscovered[target]; !ok || math.Abs(delta) > math.Abs(existing.delta) {
					newlyDiscovered[target] = frontierItem{node: target, path: path, delta: delta}
				}
			}
		}

		for id, item := range newlyDiscovered {
			visited[id] = true
			next = append(next, item)
		}
		frontier = next
	}

	updates := collectUpdates(best)
	if len(updates) == 0 {
		return nil, nil
	}

	targets := make([]domain.NodeID, len(updates))
	for i, u := range updates {
		targets[i] = u.Target
	}
	snapshot, err := e.Energy.GetMemoryBasics(ctx, userID, targets)
	if err != nil {
		metrics.PropagationPartialTotal.Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrPropagationPartial, err)
	}

	final := make([]Update, 0, len(updates))
	for _, u := range updates {
		priorEnergy := snapshot[u.Target].Energy
		newEnergy := domain.ClampEnergy(priorEnergy + u.Delta)
		clampedDelta := newEnergy - priorEnergy
		if math.Abs(clampedDelta) < DropThreshold {
			continue
		}
		final = append(final, Update{Target: u.Target, Delta: clampedDelta, NewEnergy: newEnergy, Path: u.Path})
	}

	metrics.PropagationTargetsTotal.Add(float64(len(final)))
	return final, nil
}

func collectUpdates(best map[domain.NodeID]Update) []Update {
	out := make([]Update, 0, len(best))
	for _, u := range best {
		out = append(out, u)
	}
	return out
}
