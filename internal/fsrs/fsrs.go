// Package fsrs provides a callable FSRS next-state primitive.
//
// This is a practical, simplified rendition of the Free Spaced Repetition
// Scheduler algorithm — the spec treats FSRS as an external collaborator
// (spec.md §6.3) and specifies only the inputs, the grade mapping, and how
// the output integrates with energy and scheduling. This package exists so
// the core has something concrete to call; swapping in the reference FSRS
// implementation means satisfying ports.FSRSPrimitive, nothing more.
package fsrs

import (
	"math"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// Weights are the FSRS difficulty/stability update coefficients. These are
// the widely-published FSRS-4.5 defaults.
type Weights [17]float64

// DefaultWeights returns the FSRS-4.5 reference weight vector.
func DefaultWeights() Weights {
	return Weights{
		0.4072, 1.1829, 3.1262, 15.4722, 7.2102, 0.5316, 1.0651, 0.0234,
		1.616, 0.1544, 1.0824, 1.9813, 0.0953, 0.2975, 2.2042, 0.2407, 2.9466,
	}
}

const (
	minDifficulty = 1.0
	maxDifficulty = 10.0
	minStability  = 0.01
)

// Primitive implements ports.FSRSPrimitive.
type Primitive struct {
	W Weights
}

// New returns a Primitive using the FSRS-4.5 default weights.
func New() *Primitive {
	return &Primitive{W: DefaultWeights()}
}

// NextStates computes the four candidate next-states, one per grade, given
// the prior (stability, difficulty) or none, the elapsed days since the
// last review, and the target retention.
func (p *Primitive) NextStates(prior *ports.FSRSPrior, elapsedDays uint32, targetRetention float32) (ports.FSRSNextStates, error) {
	if prior == nil {
		return ports.FSRSNextStates{
			Again: p.firstReview(domain.Again, targetRetention),
			Hard:  p.firstReview(domain.Hard, targetRetention),
			Good:  p.firstReview(domain.Good, targetRetention),
			Easy:  p.firstReview(domain.Easy, targetRetention),
		}, nil
	}

	retrievability := p.retrievability(prior.Stability, float64(elapsedDays))

	return ports.FSRSNextStates{
		Again: p.reviewed(*prior, retrievability, domain.Again, targetRetention),
		Hard:  p.reviewed(*prior, retrievability, domain.Hard, targetRetention),
		Good:  p.reviewed(*prior, retrievability, domain.Good, targetRetention),
		Easy:  p.reviewed(*prior, retrievability, domain.Easy, targetRetention),
	}, nil
}

// firstReview computes the initial stability/difficulty for a node with no
// prior state, per the grade's initial weight.
func (p *Primitive) firstReview(g domain.Grade, targetRetention float32) ports.FSRSState {
	w := p.W
	gradeIdx := float64(g) // Again=0 .. Easy=3

	stability := math.Max(w[g], minStability)
	difficulty := clampDifficulty(w[4] - w[5]*(gradeIdx-3))

	interval := p.intervalFromStability(stability, targetRetention)
	return ports.FSRSState{Stability: stability, Difficulty: difficulty, IntervalDays: interval}
}

// reviewed computes the post-review stability/difficulty from a prior state.
func (p *Primitive) reviewed(prior ports.FSRSPrior, retrievability float64, g domain.Grade, targetRetention float32) ports.FSRSState {
	w := p.W
	gradeIdx := float64(g)

	nextDifficulty := clampDifficulty(prior.Difficulty - w[6]*(gradeIdx-3))

	var nextStability float64
	if g == domain.Again {
		nextStability = p.stabilityAfterLapse(prior.Stability, prior.Difficulty, retrievability)
	} else {
		nextStability = p.stabilityAfterRecall(prior.Stability, prior.Difficulty, retrievability, g)
	}
	nextStability = math.Max(nextStability, minStability)

	interval := p.intervalFromStability(nextStability, targetRetention)
	return ports.FSRSState{Stability: nextStability, Difficulty: nextDifficulty, IntervalDays: interval}
}

// stabilityAfterRecall is the FSRS "successful recall" stability update.
func (p *Primitive) stabilityAfterRecall(stability, difficulty, retrievability float64, g domain.Grade) float64 {
	w := p.W
	hardPenalty := 1.0
	if g == domain.Hard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if g == domain.Easy {
		easyBonus = w[16]
	}

	factor := math.Exp(w[8]) *
		(11 - difficulty) *
		math.Pow(stability, -w[9]) *
		(math.Exp(w[10]*(1-retrievability)) - 1) *
		hardPenalty * easyBonus

	return stability * (1 + factor)
}

// stabilityAfterLapse is the FSRS "forgotten" stability update.
func (p *Primitive) stabilityAfterLapse(stability, difficulty, retrievability float64) float64 {
	w := p.W
	return w[11] * math.Pow(difficulty, -w[12]) * (math.Pow(stability+1, w[13]) - 1) * math.Exp(w[14]*(1-retrievability))
}

// retrievability estimates recall probability given elapsed days, per the
// FSRS forgetting curve R(t) = (1 + t/(9*S))^-1.
func (p *Primitive) retrievability(stability, elapsedDays float64) float64 {
	if stability <= 0 {
		return 0
	}
	return math.Pow(1+elapsedDays/(9*stability), -1)
}

// intervalFromStability inverts the forgetting curve to find the interval
// at which retrievability decays to targetRetention.
func (p *Primitive) intervalFromStability(stability float64, targetRetention float32) uint32 {
	tr := float64(targetRetention)
	if tr <= 0 || tr >= 1 {
		tr = float64(float32(0.8)) // widened exactly as a float32 0.8 argument is
	}
	days := 9 * stability * (math.Pow(tr, -1) - 1)
	if days < 1 {
		days = 1
	}
	return uint32(math.Round(days))
}

func clampDifficulty(d float64) float64 {
	if d < minDifficulty {
		return minDifficulty
	}
	if d > maxDifficulty {
		return maxDifficulty
	}
	return d
}
