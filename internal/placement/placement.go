// Package placement implements initial knowledge placement from intake
// questionnaire answers (spec.md §4.6), grounded on the original
// implementation's InitialPlacementService
// (original_source/rust/crates/iqrah-core/src/initial_placement/service.rs).
//
// Sample-count rounding follows the original's `as usize` truncation
// (floor), not the distilled spec text's "round" — resolving that
// discrepancy in favor of the behavior a real user would have experienced.
package placement

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// ContentSource is the narrow content-repository surface this package needs.
type ContentSource interface {
	GetVersesForChapter(ctx context.Context, chapterID int64) ([]ports.VerseRef, error)
	GetWordsForVerse(ctx context.Context, verseKey domain.NodeKey) ([]domain.NodeID, error)
}

// StateSink is the narrow write surface: one batch save per intake.
type StateSink interface {
	SaveMemoryStatesBatch(ctx context.Context, states []domain.MemoryState) error
}

// Config are the tunable placement formulas. Concrete coefficients are this
// implementation's choice — original_source's config.rs was not part of the
// retrieved source, only service.rs's call sites into it — chosen to
// reproduce the same qualitative shape: stability and review_count scale
// with the reported percentage, difficulty eases with reading fluency.
type Config struct {
	PartialThreshold          float64
	VerseKnownEnergy          float64
	VersePartialEnergy        float64
	VocabKnownEnergy          float64
	VocabBaseDifficulty       float64
	FluencyDifficultyReduction float64
	MaxVerseStabilityDays     float64
	MaxVocabStabilityDays     float64
}

// DefaultConfig mirrors the original's defaults in shape, not literal value.
func DefaultConfig() Config {
	return Config{
		PartialThreshold:           0.3,
		VerseKnownEnergy:           0.7,
		VersePartialEnergy:         0.35,
		VocabKnownEnergy:           0.6,
		VocabBaseDifficulty:        4.0,
		FluencyDifficultyReduction: 0.3,
		MaxVerseStabilityDays:      180,
		MaxVocabStabilityDays:      90,
	}
}

func (c Config) verseStability(pct float64) float64 {
	return math.Max(1, pct*c.MaxVerseStabilityDays)
}

func (c Config) verseDifficulty(fluency float64) float64 {
	d := 5 - 3*fluency
	if d < 1 {
		return 1
	}
	if d > 10 {
		return 10
	}
	return d
}

func (c Config) verseReviewCount(pct float64) uint32 {
	n := math.Floor(pct * 10)
	if n < 1 {
		n = 1
	}
	return uint32(n)
}

func (c Config) vocabStability(pct float64) float64 {
	return math.Max(1, pct*c.MaxVocabStabilityDays)
}

func (c Config) vocabDifficulty(fluency float64) float64 {
	return c.VocabBaseDifficulty * (1 - c.FluencyDifficultyReduction*fluency)
}

func (c Config) vocabReviewCount(pct float64) uint32 {
	n := math.Floor(pct * 6)
	if n < 1 {
		n = 1
	}
	return uint32(n)
}

// SurahReport is one chapter's self-reported knowledge level.
type SurahReport struct {
	ChapterID        int64
	MemorizationPct  float64 // [0,1]
	UnderstandingPct float64 // [0,1]
}

// IntakeAnswers is the intake questionnaire payload for one user.
type IntakeAnswers struct {
	SurahReports    []SurahReport
	ReadingFluency  float64 // [0,1], already resolved to an effective value
}

// SurahResult summarizes one chapter's placement outcome.
type SurahResult struct {
	ChapterID        int64
	VersesKnown      int
	VersesPartial    int
	VersesTotal      int
	VocabInitialized int
}

// Summary is the full apply_intake outcome.
type Summary struct {
	ReadingFluencyUsed    float64
	VersesInitialized     int
	VocabNodesInitialized int
	PerSurah              []SurahResult
}

// Service applies intake answers to per-user memory states.
type Service struct {
	Content ContentSource
	State   StateSink
	Config  Config
	Now     ports.Clock
}

// New constructs a placement Service.
func New(content ContentSource, state StateSink, cfg Config, now ports.Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{Content: content, State: state, Config: cfg, Now: now}
}

// ApplyIntake runs the full placement pipeline for one user. seed makes the
// sampling deterministic: identical (user_id, answers, seed) always produces
// identical memory states, independent of store or goroutine scheduling.
func (s *Service) ApplyIntake(ctx context.Context, userID string, answers IntakeAnswers, seed uint64) (Summary, error) {
	summary := Summary{ReadingFluencyUsed: answers.ReadingFluency}

	var allStates []domain.MemoryState
	now := s.Now()

	for _, report := range answers.SurahReports {
		if report.MemorizationPct <= 0 && report.UnderstandingPct <= 0 {
			continue
		}
		result, states, err := s.processSurahReport(ctx, userID, report, answers.ReadingFluency, seed, now)
		if err != nil {
			return Summary{}, err
		}
		summary.PerSurah = append(summary.PerSurah, result)
		summary.VersesInitialized += result.VersesKnown + result.VersesPartial
		summary.VocabNodesInitialized += result.VocabInitialized
		allStates = append(allStates, states...)
	}

	if len(allStates) > 0 {
		if err := s.State.SaveMemoryStatesBatch(ctx, allStates); err != nil {
			return Summary{}, fmt.Errorf("%w: save_memory_states_batch: %v", domain.ErrStoreFailure, err)
		}
	}
	return summary, nil
}

func (s *Service) processSurahReport(ctx context.Context, userID string, report SurahReport, fluency float64, seed uint64, now time.Time) (SurahResult, []domain.MemoryState, error) {
	verses, err := s.Content.GetVersesForChapter(ctx, report.ChapterID)
	if err != nil {
		return SurahResult{}, nil, fmt.Errorf("%w: get_verses_for_chapter(%d): %v", domain.ErrStoreFailure, report.ChapterID, err)
	}
	n := len(verses)
	if n == 0 {
		return SurahResult{ChapterID: report.ChapterID}, nil, nil
	}

	rng := rngFor(userID, fmt.Sprintf("%d", report.ChapterID), seed)

	nKnown := int(math.Floor(report.MemorizationPct * float64(n)))
	if nKnown > n {
		nKnown = n
	}
	nPartial := 0
	if report.MemorizationPct >= s.Config.PartialThreshold {
		nPartial = int(math.Floor(report.MemorizationPct * 0.5 * float64(n)))
		if nPartial > n-nKnown {
			nPartial = n - nKnown
		}
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

	var states []domain.MemoryState
	result := SurahResult{ChapterID: report.ChapterID, VersesTotal: n}

	for i, verseIdx := range indices {
		verse := verses[verseIdx]

		switch {
		case i < nKnown:
			states = append(states, s.createVerseState(userID, verse.NodeID, report.MemorizationPct, fluency, now, true))
			result.VersesKnown++

			if report.UnderstandingPct > 0 {
				vocabStates, count, err := s.initializeVocabForVerse(ctx, userID, verse.Key, report.UnderstandingPct, fluency, seed, now)
				if err != nil {
					return SurahResult{}, nil, err
				}
				states = append(states, vocabStates...)
				result.VocabInitialized += count
			}
		case i < nKnown+nPartial:
			states = append(states, s.createVerseState(userID, verse.NodeID, report.MemorizationPct*0.5, fluency, now, false))
			result.VersesPartial++
		}
		// remaining verses stay unseen, treated as CategoryNew downstream.
	}

	return result, states, nil
}

func (s *Service) createVerseState(userID string, nodeID domain.NodeID, memorizationPct, fluency float64, now time.Time, fullyKnown bool) domain.MemoryState {
	stability := s.Config.verseStability(memorizationPct)
	energy := s.Config.VersePartialEnergy
	if fullyKnown {
		energy = s.Config.VerseKnownEnergy
	}
	return domain.MemoryState{
		UserID:       userID,
		NodeID:       nodeID,
		Stability:    stability,
		Difficulty:   s.Config.verseDifficulty(fluency),
		Energy:       energy,
		LastReviewed: now.Add(-time.Duration(stability*0.5*24) * time.Hour),
		DueAt:        now.Add(time.Duration(stability*24) * time.Hour),
		ReviewCount:  s.Config.verseReviewCount(memorizationPct),
	}
}

func (s *Service) initializeVocabForVerse(ctx context.Context, userID string, verseKey domain.NodeKey, understandingPct, fluency float64, seed uint64, now time.Time) ([]domain.MemoryState, int, error) {
	words, err := s.Content.GetWordsForVerse(ctx, verseKey)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: get_words_for_verse(%s): %v", domain.ErrStoreFailure, verseKey, err)
	}
	n := len(words)
	if n == 0 {
		return nil, 0, nil
	}

	rng := rngFor(userID, string(verseKey), "vocab", seed)

	nKnown := int(math.Floor(understandingPct * float64(n)))
	if nKnown > n {
		nKnown = n
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })

	states := make([]domain.MemoryState, 0, nKnown)
	for i := 0; i < nKnown; i++ {
		states = append(states, s.createVocabState(userID, words[indices[i]], understandingPct, fluency, now))
	}
	return states, nKnown, nil
}

func (s *Service) createVocabState(userID string, nodeID domain.NodeID, understandingPct, fluency float64, now time.Time) domain.MemoryState {
	stability := s.Config.vocabStability(understandingPct)
	return domain.MemoryState{
		UserID:       userID,
		NodeID:       nodeID,
		Stability:    stability,
		Difficulty:   s.Config.vocabDifficulty(fluency),
		Energy:       s.Config.VocabKnownEnergy,
		LastReviewed: now.Add(-time.Duration(stability*0.5*24) * time.Hour),
		DueAt:        now.Add(time.Duration(stability*24) * time.Hour),
		ReviewCount:  s.Config.vocabReviewCount(understandingPct),
	}
}

// rngFor builds a deterministic RNG from an arbitrary number of string
// components plus a numeric seed — the Go equivalent of the original's
// DefaultHasher-then-StdRng::seed_from_u64 chain, substituting hash/fnv and
// math/rand/v2's PCG generator for Rust's SipHash and StdRng.
func rngFor(parts ...any) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		fmt.Fprintf(h, "%v\x00", p)
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed))
}
