// Package memstore is an in-memory reference implementation of
// ports.ContentRepository and ports.UserStateRepository, used by tests and
// local simulation (spec.md §9 "any backend satisfying the contract is
// valid"). It has no persistence and no concurrency tuning beyond a single
// coarse mutex — correctness over throughput, the way a fixture should be.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// Store backs both content-repository and user-state-repository ports from
// one set of in-memory maps, guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	nodes map[domain.NodeID]domain.Node
	meta  map[domain.NodeID]domain.NodeMeta

	edgesFrom         map[domain.NodeID][]domain.Edge
	dependencyParents map[domain.NodeID][]domain.NodeID

	goals           map[string]domain.Goal
	versesByChapter map[int64][]ports.VerseRef
	wordsByVerse    map[domain.NodeKey][]domain.NodeID

	userStates     map[string]map[domain.NodeID]domain.MemoryState
	banditArms     map[string][]domain.BanditArm
	sessionCursors map[string]domain.SessionCursor
	stats          map[string]map[string]string
	propagationLog []domain.PropagationLogEntry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		nodes:             make(map[domain.NodeID]domain.Node),
		meta:              make(map[domain.NodeID]domain.NodeMeta),
		edgesFrom:         make(map[domain.NodeID][]domain.Edge),
		dependencyParents: make(map[domain.NodeID][]domain.NodeID),
		goals:             make(map[string]domain.Goal),
		versesByChapter:   make(map[int64][]ports.VerseRef),
		wordsByVerse:      make(map[domain.NodeKey][]domain.NodeID),
		userStates:        make(map[string]map[domain.NodeID]domain.MemoryState),
		banditArms:        make(map[string][]domain.BanditArm),
		sessionCursors:    make(map[string]domain.SessionCursor),
		stats:             make(map[string]map[string]string),
	}
}

// ─── Seeding API (test/fixture setup) ──────────────────────────────────────

// AddNode registers a node and its static metadata.
func (s *Store) AddNode(n domain.Node, meta domain.NodeMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	meta.NodeID = n.ID
	s.meta[n.ID] = meta
}

// AddEdge registers a directed edge, indexing dependency edges in reverse
// for O(1) prerequisite-parent lookup.
func (s *Store) AddEdge(e domain.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edgesFrom[e.Source] = append(s.edgesFrom[e.Source], e)
	if e.EdgeType == domain.EdgeDependency {
		s.dependencyParents[e.Target] = append(s.dependencyParents[e.Target], e.Source)
	}
}

// AddGoal registers a named goal.
func (s *Store) AddGoal(g domain.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
}

// AddVerse appends a verse to a chapter's ordered verse list.
func (s *Store) AddVerse(chapterID int64, v ports.VerseRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versesByChapter[chapterID] = append(s.versesByChapter[chapterID], v)
}

// AddWords sets the word nodes belonging to a verse.
func (s *Store) AddWords(verseKey domain.NodeKey, words []domain.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wordsByVerse[verseKey] = words
}

// ─── ports.ContentRepository ────────────────────────────────────────────────

func (s *Store) GetSchedulerCandidates(ctx context.Context, goalID, userID string, nowTS int64) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, ok := s.goals[goalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
	}
	states := s.userStates[userID]

	out := make([]domain.Candidate, 0, len(goal.Members))
	for _, m := range goal.Members {
		meta := s.meta[m.NodeID]
		c := domain.Candidate{
			ID:           m.NodeID,
			Foundational: meta.FoundationalScore,
			Influence:    meta.InfluenceScore,
			Difficulty:   meta.DifficultyScore,
			QuranOrder:   meta.QuranOrder,
			PlanPriority: m.Priority,
		}
		if st, ok := states[m.NodeID]; ok {
			c.Energy = st.Energy
			c.NextDueTS = st.DueAt.Unix()
			c.ReviewCount = st.ReviewCount
		}
		out = append(out, c)
	}
	_ = nowTS // candidates are never filtered by due-ness here; see candidates.Builder
	return out, nil
}

func (s *Store) GetPrerequisiteParents(ctx context.Context, nodeIDs []domain.NodeID) (map[domain.NodeID][]domain.NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.NodeID][]domain.NodeID, len(nodeIDs))
	for _, id := range nodeIDs {
		out[id] = append([]domain.NodeID(nil), s.dependencyParents[id]...)
	}
	return out, nil
}

func (s *Store) GetEdgesFrom(ctx context.Context, nodeID domain.NodeID, edgeType domain.EdgeType) ([]domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Edge
	for _, e := range s.edgesFrom[nodeID] {
		if e.EdgeType == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GetGoal(ctx context.Context, goalID string) (domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[goalID]
	if !ok {
		return domain.Goal{}, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
	}
	return g, nil
}

func (s *Store) GetNodesForGoal(ctx context.Context, goalID string) ([]domain.NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[goalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
	}
	out := make([]domain.NodeID, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.NodeID
	}
	return out, nil
}

func (s *Store) GetNodeMeta(ctx context.Context, nodeID domain.NodeID) (domain.NodeMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[nodeID]
	if !ok {
		return domain.NodeMeta{}, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
	}
	return m, nil
}

func (s *Store) GetVersesForChapter(ctx context.Context, chapterID int64) ([]ports.VerseRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.VerseRef(nil), s.versesByChapter[chapterID]...), nil
}

func (s *Store) GetWordsForVerse(ctx context.Context, verseKey domain.NodeKey) ([]domain.NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.NodeID(nil), s.wordsByVerse[verseKey]...), nil
}

func (s *Store) NodeExists(ctx context.Context, nodeID domain.NodeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[nodeID]
	return ok, nil
}

// ─── ports.UserStateRepository ──────────────────────────────────────────────

func (s *Store) GetMemoryState(ctx context.Context, userID string, nodeID domain.NodeID) (*domain.MemoryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.userStates[userID][nodeID]
	if !ok {
		return nil, nil
	}
	out := st
	return &out, nil
}

func (s *Store) SaveMemoryState(ctx context.Context, state domain.MemoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putState(state)
	return nil
}

func (s *Store) SaveMemoryStatesBatch(ctx context.Context, states []domain.MemoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		s.putState(st)
	}
	return nil
}

func (s *Store) putState(state domain.MemoryState) {
	if s.userStates[state.UserID] == nil {
		s.userStates[state.UserID] = make(map[domain.NodeID]domain.MemoryState)
	}
	s.userStates[state.UserID][state.NodeID] = state
}

func (s *Store) GetMemoryBasics(ctx context.Context, userID string, nodeIDs []domain.NodeID) (map[domain.NodeID]ports.MemoryBasics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.NodeID]ports.MemoryBasics, len(nodeIDs))
	states := s.userStates[userID]
	for _, id := range nodeIDs {
		if st, ok := states[id]; ok {
			out[id] = ports.MemoryBasics{Energy: st.Energy, NextDueTS: st.DueAt.Unix()}
		} else {
			out[id] = ports.MemoryBasics{}
		}
	}
	return out, nil
}

// SaveReviewAtomic applies the new state, every propagation energy update,
// and the optional log entry as one critical section — a single mutex
// acquisition is all the atomicity a single-process map needs.
func (s *Store) SaveReviewAtomic(ctx context.Context, userID string, newState domain.MemoryState, energyUpdates []ports.EnergyUpdate, logEntry *domain.PropagationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putState(newState)

	if s.userStates[userID] == nil {
		s.userStates[userID] = make(map[domain.NodeID]domain.MemoryState)
	}
	for _, u := range energyUpdates {
		st, ok := s.userStates[userID][u.NodeID]
		if !ok {
			st = domain.MemoryState{UserID: userID, NodeID: u.NodeID}
		}
		st.Energy = u.NewEnergy
		s.userStates[userID][u.NodeID] = st
	}

	if logEntry != nil {
		logEntry.ID = uuid.NewString()
		s.propagationLog = append(s.propagationLog, *logEntry)
	}
	return nil
}

func (s *Store) GetDueStates(ctx context.Context, userID string, beforeTS int64, limit int) ([]domain.MemoryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MemoryState
	for _, st := range s.userStates[userID] {
		if st.ReviewCount > 0 && st.DueAt.Unix() <= beforeTS {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetBanditArms(ctx context.Context, userID, goalGroup string) ([]domain.BanditArm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BanditArm(nil), s.banditArms[armKey(userID, goalGroup)]...), nil
}

func (s *Store) UpdateBanditArm(ctx context.Context, arm domain.BanditArm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := armKey(arm.UserID, arm.GoalGroup)
	arms := s.banditArms[key]
	for i, a := range arms {
		if a.ProfileName == arm.ProfileName {
			arms[i] = arm
			s.banditArms[key] = arms
			return nil
		}
	}
	s.banditArms[key] = append(arms, arm)
	return nil
}

func armKey(userID, goalGroup string) string { return userID + "|" + goalGroup }

func (s *Store) GetSessionState(ctx context.Context, userID string) (domain.SessionCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessionCursors[userID]
	if !ok {
		return domain.SessionCursor{UserID: userID}, nil
	}
	return domain.SessionCursor{UserID: c.UserID, NodeIDs: append([]domain.NodeID(nil), c.NodeIDs...)}, nil
}

func (s *Store) SaveSessionState(ctx context.Context, cursor domain.SessionCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCursors[cursor.UserID] = cursor
	return nil
}

func (s *Store) ClearSessionState(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessionCursors, userID)
	return nil
}

func (s *Store) GetStat(ctx context.Context, userID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.stats[userID][key]
	return v, ok, nil
}

func (s *Store) SetStat(ctx context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats[userID] == nil {
		s.stats[userID] = make(map[string]string)
	}
	s.stats[userID][key] = value
	return nil
}

func (s *Store) ListUserNodeIDs(ctx context.Context, userID string) ([]domain.NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := s.userStates[userID]
	out := make([]domain.NodeID, 0, len(states))
	for id := range states {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
