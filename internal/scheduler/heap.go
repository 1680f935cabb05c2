package scheduler

import "github.com/iqrahapp/iqrah-core/internal/domain"

// scoredItem pairs a candidate with its §4.4.2 priority score. Adapted from
// the teacher's starvation-aware task priority queue
// (internal/infra/dsa/heap.go): same binary-heap sift-up/sift-down shape,
// but "priority" here means the scheduler's score (higher score dequeues
// first) rather than task urgency, and there is no age-based boost — the
// spec's tie-break on quran_order is explicit and deterministic, so the
// starvation mechanism the teacher needed is neither present nor wanted.

// rankedHeap is a binary max-heap ordering candidates by descending score,
// tie-broken by ascending QuranOrder (§4.4.2, §9 "Tie-breaks").
type rankedHeap struct {
	items []domain.Candidate
	score []float64
}

func newRankedHeap(capacity int) *rankedHeap {
	return &rankedHeap{
		items: make([]domain.Candidate, 0, capacity),
		score: make([]float64, 0, capacity),
	}
}

func (h *rankedHeap) Len() int { return len(h.items) }

func (h *rankedHeap) Push(c domain.Candidate, score float64) {
	h.items = append(h.items, c)
	h.score = append(h.score, score)
	h.siftUp(len(h.items) - 1)
}

// Pop removes and returns the highest-ranked candidate. O(log n).
func (h *rankedHeap) Pop() (domain.Candidate, bool) {
	n := len(h.items)
	if n == 0 {
		return domain.Candidate{}, false
	}
	top := h.items[0]
	last := n - 1
	h.items[0], h.items[last] = h.items[last], h.items[0]
	h.score[0], h.score[last] = h.score[last], h.score[0]
	h.items = h.items[:last]
	h.score = h.score[:last]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return top, true
}

// better reports whether item i should be dequeued before item j:
// higher score wins; ties broken by ascending quran_order.
func (h *rankedHeap) better(i, j int) bool {
	if h.score[i] != h.score[j] {
		return h.score[i] > h.score[j]
	}
	return h.items[i].QuranOrder < h.items[j].QuranOrder
}

func (h *rankedHeap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if h.better(idx, parent) {
			h.swap(idx, parent)
			idx = parent
		} else {
			break
		}
	}
}

func (h *rankedHeap) siftDown(idx int) {
	n := len(h.items)
	for {
		best := idx
		left, right := 2*idx+1, 2*idx+2
		if left < n && h.better(left, best) {
			best = left
		}
		if right < n && h.better(right, best) {
			best = right
		}
		if best == idx {
			break
		}
		h.swap(idx, best)
		idx = best
	}
}

func (h *rankedHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.score[i], h.score[j] = h.score[j], h.score[i]
}

// drainScored pops every item in ranked order, candidate paired with score.
func (h *rankedHeap) drainScored() []scored {
	out := make([]scored, 0, h.Len())
	for h.Len() > 0 {
		idx := 0 // top is always index 0 before Pop mutates
		sc := h.score[idx]
		c, ok := h.Pop()
		if !ok {
			break
		}
		out = append(out, scored{candidate: c, score: sc})
	}
	return out
}
