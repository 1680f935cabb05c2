// Package scheduler implements C7: turning a candidate set into an ordered,
// capacity-bounded review session (spec.md §4.4).
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/metrics"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

const day = 24 * time.Hour

// BacklogSevereP90Days is the p90 overdue-age threshold (in days) past which
// the backlog is considered severe (§4.4.6). Left unspecified by the spec
// text; this implementation resolves it the way propagation.Decay resolves
// its own open question — a documented constant, not a config knob, because
// no scenario in §8 exercises a different value.
const BacklogSevereP90Days = 14.0

// PrereqSource reads dependency-edge parents for the §4.4.4 gate.
type PrereqSource interface {
	GetPrerequisiteParents(ctx context.Context, nodeIDs []domain.NodeID) (map[domain.NodeID][]domain.NodeID, error)
}

// EnergySource reads energy/due basics for nodes outside the candidate set
// (a New candidate's prerequisite parent is frequently a node the goal
// itself never enumerates).
type EnergySource interface {
	GetMemoryBasics(ctx context.Context, userID string, nodeIDs []domain.NodeID) (map[domain.NodeID]ports.MemoryBasics, error)
}

// Scheduler is C7.
type Scheduler struct {
	Prereqs PrereqSource
	Energy  EnergySource
}

// New constructs a Scheduler.
func New(prereqs PrereqSource, energy EnergySource) *Scheduler {
	return &Scheduler{Prereqs: prereqs, Energy: energy}
}

// Diagnostics are the §4.4.5/§4.4.6 session-level signals computed once per
// call, shared with C8 (introduction policy runs before C7 but needs the
// same numbers) and used internally for backlog rebalancing.
type Diagnostics struct {
	ActiveCount   int     // introduced (review_count>0), non-mastered candidates
	CapacityUsed  float64 // active_count / max_working_set
	P90DueAgeDays float64 // 90th-percentile overdue age among Due candidates
	BacklogSevere bool
}

// ComputeDiagnostics derives the working-set and backlog signals from a
// candidate set, independent of session generation (§4.4.5, §4.4.6).
func ComputeDiagnostics(candidates []domain.Candidate, nowTS int64, maxWorkingSet int) Diagnostics {
	active := 0
	var overdueDays []float64
	for _, c := range candidates {
		cat := domain.Categorize(c, nowTS)
		if c.ReviewCount > 0 && cat != domain.CategoryMastered {
			active++
		}
		if cat == domain.CategoryDue {
			overdueDays = append(overdueDays, daysSinceDue(c.NextDueTS, nowTS))
		}
	}

	capacityUsed := 0.0
	if maxWorkingSet > 0 {
		capacityUsed = float64(active) / float64(maxWorkingSet)
	}

	p90 := percentile90(overdueDays)

	return Diagnostics{
		ActiveCount:   active,
		CapacityUsed:  capacityUsed,
		P90DueAgeDays: p90,
		BacklogSevere: p90 >= BacklogSevereP90Days,
	}
}

func percentile90(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.9*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func daysSinceDue(dueTS, nowTS int64) float64 {
	d := float64(nowTS-dueTS) / 86400.0
	if d < 0 {
		return 0
	}
	return d
}

// Result is a generated session (§4.4.7, §4.4.8).
type Result struct {
	Items       []domain.NodeID
	Diagnostics Diagnostics
}

// Generate builds an ordered session from candidates for one user. newAllowance
// is the already-decided C8 output bounding how many CategoryNew items may
// appear; callers compute it from the same Diagnostics this function would
// otherwise recompute, so ComputeDiagnostics is exposed separately and
// Generate accepts it rather than deriving its own copy.
func (s *Scheduler) Generate(ctx context.Context, userID string, candidates []domain.Candidate, profile domain.UserProfile, now time.Time, sessionSize int, newAllowance int, diag Diagnostics) (Result, error) {
	if sessionSize <= 0 {
		return Result{Diagnostics: diag}, nil
	}
	nowTS := now.Unix()

	byCategory := make(map[domain.Category][]scored, 8)
	for _, c := range candidates {
		cat := domain.Categorize(c, nowTS)
		if cat == domain.CategoryMastered {
			continue // §4.4.3: never a fill target
		}
		score := memory.Priority(profile.Weights, daysSinceDue(c.NextDueTS, nowTS), c.Energy, c.Foundational)
		byCategory[cat] = append(byCategory[cat], scored{candidate: c, score: score})
	}

	budgets := allocateBudgets(profile.SessionMix, sessionSize, diag.BacklogSevere)
	if v, ok := budgets[domain.CategoryNew]; ok && v > newAllowance {
		budgets[domain.CategoryNew] = newAllowance
	}

	selected := make(map[domain.NodeID]bool, sessionSize)
	var order []pick
	leftover := make(map[domain.Category][]scored, 8)

	for _, cat := range domain.SessionOrder {
		pool := rankPool(byCategory[cat])
		budget := budgets[cat]

		taken, rest, err := s.fillFromPool(ctx, userID, cat, pool, budget, profile.PrereqThreshold, selected)
		if err != nil {
			return Result{}, err
		}
		for _, t := range taken {
			order = append(order, pick{category: cat, node: t})
		}
		leftover[cat] = rest
		metrics.CategoryFillCount.WithLabelValues(cat.String()).Add(float64(len(taken)))
	}

	// §4.4.3 spillover: Due, then New, then the remaining non-New category
	// with the highest mean energy among its leftovers. Never Mastered —
	// Mastered was excluded from byCategory entirely, so it can't appear here.
	if len(order) < sessionSize {
		spillOrder := spilloverOrder(leftover)
		for _, cat := range spillOrder {
			if len(order) >= sessionSize {
				break
			}
			need := sessionSize - len(order)
			if cat == domain.CategoryNew {
				newTaken := 0
				for _, p := range order {
					if p.category == domain.CategoryNew {
						newTaken++
					}
				}
				if room := newAllowance - newTaken; room < need {
					need = room
				}
				if need <= 0 {
					continue
				}
			}
			taken, rest, err := s.fillFromPool(ctx, userID, cat, leftover[cat], need, profile.PrereqThreshold, selected)
			if err != nil {
				return Result{}, err
			}
			for _, t := range taken {
				order = append(order, pick{category: cat, node: t})
			}
			leftover[cat] = rest
			metrics.CategoryFillCount.WithLabelValues(cat.String()).Add(float64(len(taken)))
		}
	}

	items := finalOrder(order)
	metrics.SessionSize.Observe(float64(len(items)))

	return Result{Items: items, Diagnostics: diag}, nil
}

type scored struct {
	candidate domain.Candidate
	score     float64
}

type pick struct {
	category domain.Category
	node     domain.NodeID
}

// rankPool sorts a candidate pool into descending-score, ascending-quran-order
// via the same comparator the heap uses, so the first pass (full pool,
// unordered) and the spillover pass (already a plain slice) share one
// fill routine.
func rankPool(items []scored) []scored {
	h := newRankedHeap(len(items))
	for _, it := range items {
		h.Push(it.candidate, it.score)
	}
	return h.drainScored()
}

// fillFromPool draws up to `budget` prerequisite-eligible items from a
// ranked pool, skipping (and permanently dropping) any candidate that fails
// the gate. It returns the chosen node IDs in ranked order and the undrawn
// remainder for spillover use.
func (s *Scheduler) fillFromPool(ctx context.Context, userID string, cat domain.Category, ranked []scored, budget int, prereqThreshold float64, selected map[domain.NodeID]bool) ([]domain.NodeID, []scored, error) {
	var taken []domain.NodeID
	var rest []scored

	i := 0
	for ; i < len(ranked) && len(taken) < budget; i++ {
		c := ranked[i].candidate
		if selected[c.ID] {
			continue
		}
		ok, err := s.passesPrereqGate(ctx, userID, c, prereqThreshold)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			metrics.PrereqGateRejections.Inc()
			continue
		}
		selected[c.ID] = true
		taken = append(taken, c.ID)
	}
	for ; i < len(ranked); i++ {
		if !selected[ranked[i].candidate.ID] {
			rest = append(rest, ranked[i])
		}
	}
	return taken, rest, nil
}

// passesPrereqGate applies §4.4.4: every candidate picked into the session,
// regardless of category, must have each of its dependency parents at or
// above the prerequisite energy threshold.
func (s *Scheduler) passesPrereqGate(ctx context.Context, userID string, c domain.Candidate, threshold float64) (bool, error) {
	if s.Prereqs == nil {
		return true, nil
	}
	parents, err := s.Prereqs.GetPrerequisiteParents(ctx, []domain.NodeID{c.ID})
	if err != nil {
		return false, fmt.Errorf("%w: get_prerequisite_parents: %v", domain.ErrStoreFailure, err)
	}
	parentIDs := parents[c.ID]
	if len(parentIDs) == 0 {
		return true, nil
	}
	basics, err := s.Energy.GetMemoryBasics(ctx, userID, parentIDs)
	if err != nil {
		return false, fmt.Errorf("%w: get_memory_basics: %v", domain.ErrStoreFailure, err)
	}
	for _, p := range parentIDs {
		if basics[p].Energy < threshold {
			return false, nil
		}
	}
	return true, nil
}

// allocateBudgets computes the per-category item count from the mix
// fractions (§4.4.3): floor each fraction, distribute the rounding
// remainder to Due first then New (the declared deterministic tie-break),
// then apply the backlog-severe reassignment from Due's companion rule:
// when the queue is severely backlogged, half of New's slots move to Due.
func allocateBudgets(mix domain.SessionMixConfig, sessionSize int, backlogSevere bool) map[domain.Category]int {
	budgets := make(map[domain.Category]int, 6)
	used := 0
	for _, cat := range domain.SessionOrder {
		b := int(math.Floor(mix.Frac(cat) * float64(sessionSize)))
		budgets[cat] = b
		used += b
	}
	remainder := sessionSize - used
	for _, cat := range []domain.Category{domain.CategoryDue, domain.CategoryNew} {
		if remainder <= 0 {
			break
		}
		budgets[cat]++
		remainder--
	}
	for _, cat := range domain.SessionOrder {
		if remainder <= 0 {
			break
		}
		budgets[cat]++
		remainder--
	}

	if backlogSevere {
		shift := budgets[domain.CategoryNew] / 2
		budgets[domain.CategoryNew] -= shift
		budgets[domain.CategoryDue] += shift
	}
	return budgets
}

// spilloverOrder returns the category draw order for filling a short
// session: Due, New, then the remaining non-New categories sorted by
// descending mean leftover energy (§4.4.3 "next-highest-energy non-new
// category").
func spilloverOrder(leftover map[domain.Category][]scored) []domain.Category {
	order := []domain.Category{domain.CategoryDue, domain.CategoryNew}

	type avg struct {
		cat    domain.Category
		energy float64
	}
	var rest []avg
	for _, cat := range domain.SessionOrder {
		if cat == domain.CategoryDue || cat == domain.CategoryNew {
			continue
		}
		items := leftover[cat]
		if len(items) == 0 {
			continue
		}
		sum := 0.0
		for _, it := range items {
			sum += it.candidate.Energy
		}
		rest = append(rest, avg{cat: cat, energy: sum / float64(len(items))})
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].energy > rest[j].energy })
	for _, a := range rest {
		order = append(order, a.cat)
	}
	return order
}

// finalOrder flattens picks into the §4.4.7 category-interleaved item list:
// grouped by the declared SessionOrder, preserving each category's
// within-pass ranked order.
func finalOrder(picks []pick) []domain.NodeID {
	byCategory := make(map[domain.Category][]domain.NodeID, 8)
	for _, p := range picks {
		byCategory[p.category] = append(byCategory[p.category], p.node)
	}
	var out []domain.NodeID
	for _, cat := range domain.SessionOrder {
		out = append(out, byCategory[cat]...)
	}
	return out
}
