package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// maxSQLiteParams is the chunk size used by the batched lookups §6.1
// requires for 10^4-scale node-id slices — SQLite's default
// SQLITE_MAX_VARIABLE_NUMBER is 999 in older builds; modernc raises it, but
// chunking at a conservative size keeps this store portable regardless of
// build-time limits.
const maxSQLiteParams = 500

// ─── Seeding (pack ingestion / fixture setup) ──────────────────────────────

// UpsertNode inserts or updates a node and its static metadata.
func (db *DB) UpsertNode(ctx context.Context, n domain.Node, meta domain.NodeMeta) error {
	if _, err := db.db.ExecContext(ctx, `
		INSERT INTO nodes (id, key, type) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET key = excluded.key, type = excluded.type
	`, int64(n.ID), string(n.Key), int(n.Type)); err != nil {
		return fmt.Errorf("sqlite: upsert_node(%s): %w", n.Key, err)
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO node_meta (node_id, foundational, influence, difficulty, quran_order)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			foundational = excluded.foundational,
			influence    = excluded.influence,
			difficulty   = excluded.difficulty,
			quran_order  = excluded.quran_order
	`, int64(n.ID), meta.FoundationalScore, meta.InfluenceScore, meta.DifficultyScore, meta.QuranOrder)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_node_meta(%s): %w", n.Key, err)
	}
	return nil
}

// UpsertEdge inserts a directed edge. Edges are append-only content: a
// snapshot rebuild truncates and reloads rather than updating in place.
func (db *DB) UpsertEdge(ctx context.Context, e domain.Edge) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO edges (source, target, edge_type, dist_type, p1, p2) VALUES (?, ?, ?, ?, ?, ?)
	`, int64(e.Source), int64(e.Target), int(e.EdgeType), int(e.DistributionType), e.P1, e.P2)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_edge(%d->%d): %w", e.Source, e.Target, err)
	}
	return nil
}

// UpsertGoal inserts or replaces a goal and its membership list.
func (db *DB) UpsertGoal(ctx context.Context, g domain.Goal) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_goal(%s): begin: %w", g.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO goals (id, group_name, label, description) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET group_name = excluded.group_name, label = excluded.label, description = excluded.description
	`, g.ID, g.Group, g.Label, g.Description); err != nil {
		return fmt.Errorf("sqlite: upsert_goal(%s): %w", g.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_members WHERE goal_id = ?`, g.ID); err != nil {
		return fmt.Errorf("sqlite: upsert_goal(%s): clear members: %w", g.ID, err)
	}
	for _, m := range g.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goal_members (goal_id, node_id, priority) VALUES (?, ?, ?)
		`, g.ID, int64(m.NodeID), m.Priority); err != nil {
			return fmt.Errorf("sqlite: upsert_goal(%s): member %d: %w", g.ID, m.NodeID, err)
		}
	}
	return tx.Commit()
}

// UpsertVerse registers a verse at a fixed ordinal within its chapter.
func (db *DB) UpsertVerse(ctx context.Context, chapterID int64, ordinal int, v ports.VerseRef) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO chapter_verses (chapter_id, node_id, node_key, ordinal) VALUES (?, ?, ?, ?)
		ON CONFLICT(chapter_id, ordinal) DO UPDATE SET node_id = excluded.node_id, node_key = excluded.node_key
	`, chapterID, int64(v.NodeID), string(v.Key), ordinal)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_verse(%d/%d): %w", chapterID, ordinal, err)
	}
	return nil
}

// UpsertWord registers a word at a fixed ordinal within its verse.
func (db *DB) UpsertWord(ctx context.Context, verseKey domain.NodeKey, ordinal int, nodeID domain.NodeID) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO verse_words (verse_key, node_id, ordinal) VALUES (?, ?, ?)
		ON CONFLICT(verse_key, ordinal) DO UPDATE SET node_id = excluded.node_id
	`, string(verseKey), int64(nodeID), ordinal)
	if err != nil {
		return fmt.Errorf("sqlite: upsert_word(%s/%d): %w", verseKey, ordinal, err)
	}
	return nil
}

// ─── ports.ContentRepository ────────────────────────────────────────────────

// GetSchedulerCandidates joins goal membership with the user's memory state
// in one round trip (§6.1), the content-repository contract C6 depends on.
func (db *DB) GetSchedulerCandidates(ctx context.Context, goalID, userID string, nowTS int64) ([]domain.Candidate, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT gm.node_id, gm.priority,
		       COALESCE(nm.foundational, 0), COALESCE(nm.influence, 0),
		       COALESCE(nm.difficulty, 0), COALESCE(nm.quran_order, 0),
		       COALESCE(ms.energy, 0), COALESCE(ms.review_count, 0),
		       ms.due_at
		FROM goal_members gm
		LEFT JOIN node_meta nm ON nm.node_id = gm.node_id
		LEFT JOIN memory_states ms ON ms.node_id = gm.node_id AND ms.user_id = ?
		WHERE gm.goal_id = ?
	`, userID, goalID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_scheduler_candidates(%s): %w", goalID, err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var nodeID int64
		var priority int
		var foundational, influence, difficulty float64
		var quranOrder int64
		var energy float64
		var reviewCount uint32
		var dueAt sql.NullString

		if err := rows.Scan(&nodeID, &priority, &foundational, &influence, &difficulty, &quranOrder, &energy, &reviewCount, &dueAt); err != nil {
			return nil, fmt.Errorf("sqlite: get_scheduler_candidates(%s): scan: %w", goalID, err)
		}
		c := domain.Candidate{
			ID:           domain.NodeID(nodeID),
			Foundational: foundational,
			Influence:    influence,
			Difficulty:   difficulty,
			QuranOrder:   quranOrder,
			PlanPriority: priority,
			Energy:       energy,
			ReviewCount:  reviewCount,
		}
		if dueAt.Valid {
			t, err := parseTime(dueAt.String)
			if err == nil {
				c.NextDueTS = t.Unix()
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetPrerequisiteParents chunks nodeIDs internally so a 10^4-element slice
// succeeds regardless of the driver's parameter-count ceiling (§6.1).
func (db *DB) GetPrerequisiteParents(ctx context.Context, nodeIDs []domain.NodeID) (map[domain.NodeID][]domain.NodeID, error) {
	out := make(map[domain.NodeID][]domain.NodeID, len(nodeIDs))
	for _, id := range nodeIDs {
		out[id] = nil
	}
	for _, chunk := range chunkNodeIDs(nodeIDs, maxSQLiteParams) {
		placeholders, args := inClause(chunk)
		query := fmt.Sprintf(`SELECT source, target FROM edges WHERE edge_type = 0 AND target IN (%s)`, placeholders)
		rows, err := db.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: get_prerequisite_parents: %w", err)
		}
		for rows.Next() {
			var source, target int64
			if err := rows.Scan(&source, &target); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: get_prerequisite_parents: scan: %w", err)
			}
			t := domain.NodeID(target)
			out[t] = append(out[t], domain.NodeID(source))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// GetEdgesFrom reads one node's outgoing edges of a given type.
func (db *DB) GetEdgesFrom(ctx context.Context, nodeID domain.NodeID, edgeType domain.EdgeType) ([]domain.Edge, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT source, target, edge_type, dist_type, p1, p2 FROM edges WHERE source = ? AND edge_type = ?
	`, int64(nodeID), int(edgeType))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_edges_from(%d): %w", nodeID, err)
	}
	defer rows.Close()

	var out []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var source, target int64
		var et, dt int
		if err := rows.Scan(&source, &target, &et, &dt, &e.P1, &e.P2); err != nil {
			return nil, fmt.Errorf("sqlite: get_edges_from(%d): scan: %w", nodeID, err)
		}
		e.Source = domain.NodeID(source)
		e.Target = domain.NodeID(target)
		e.EdgeType = domain.EdgeType(et)
		e.DistributionType = domain.DistributionType(dt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetGoal loads a goal and its full membership list.
func (db *DB) GetGoal(ctx context.Context, goalID string) (domain.Goal, error) {
	var g domain.Goal
	g.ID = goalID
	row := db.db.QueryRowContext(ctx, `SELECT group_name, label, description FROM goals WHERE id = ?`, goalID)
	if err := row.Scan(&g.Group, &g.Label, &g.Description); err != nil {
		if err == sql.ErrNoRows {
			return domain.Goal{}, fmt.Errorf("%w: %s", domain.ErrGoalNotFound, goalID)
		}
		return domain.Goal{}, fmt.Errorf("sqlite: get_goal(%s): %w", goalID, err)
	}

	rows, err := db.db.QueryContext(ctx, `SELECT node_id, priority FROM goal_members WHERE goal_id = ?`, goalID)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("sqlite: get_goal(%s): members: %w", goalID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var nodeID int64
		var priority int
		if err := rows.Scan(&nodeID, &priority); err != nil {
			return domain.Goal{}, fmt.Errorf("sqlite: get_goal(%s): scan member: %w", goalID, err)
		}
		g.Members = append(g.Members, domain.GoalMember{NodeID: domain.NodeID(nodeID), Priority: priority})
	}
	return g, rows.Err()
}

// GetNodesForGoal returns just the member node ids of a goal.
func (db *DB) GetNodesForGoal(ctx context.Context, goalID string) ([]domain.NodeID, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT node_id FROM goal_members WHERE goal_id = ?`, goalID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_nodes_for_goal(%s): %w", goalID, err)
	}
	defer rows.Close()
	var out []domain.NodeID
	for rows.Next() {
		var nodeID int64
		if err := rows.Scan(&nodeID); err != nil {
			return nil, fmt.Errorf("sqlite: get_nodes_for_goal(%s): scan: %w", goalID, err)
		}
		out = append(out, domain.NodeID(nodeID))
	}
	return out, rows.Err()
}

// GetNodeMeta loads one node's static metadata.
func (db *DB) GetNodeMeta(ctx context.Context, nodeID domain.NodeID) (domain.NodeMeta, error) {
	var m domain.NodeMeta
	m.NodeID = nodeID
	row := db.db.QueryRowContext(ctx, `
		SELECT foundational, influence, difficulty, quran_order FROM node_meta WHERE node_id = ?
	`, int64(nodeID))
	if err := row.Scan(&m.FoundationalScore, &m.InfluenceScore, &m.DifficultyScore, &m.QuranOrder); err != nil {
		if err == sql.ErrNoRows {
			return domain.NodeMeta{}, fmt.Errorf("%w: %d", domain.ErrNodeNotFound, nodeID)
		}
		return domain.NodeMeta{}, fmt.Errorf("sqlite: get_node_meta(%d): %w", nodeID, err)
	}
	return m, nil
}

// GetVersesForChapter returns a chapter's verses in canonical order.
func (db *DB) GetVersesForChapter(ctx context.Context, chapterID int64) ([]ports.VerseRef, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT node_id, node_key FROM chapter_verses WHERE chapter_id = ? ORDER BY ordinal
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_verses_for_chapter(%d): %w", chapterID, err)
	}
	defer rows.Close()
	var out []ports.VerseRef
	for rows.Next() {
		var nodeID int64
		var key string
		if err := rows.Scan(&nodeID, &key); err != nil {
			return nil, fmt.Errorf("sqlite: get_verses_for_chapter(%d): scan: %w", chapterID, err)
		}
		out = append(out, ports.VerseRef{NodeID: domain.NodeID(nodeID), Key: domain.NodeKey(key)})
	}
	return out, rows.Err()
}

// GetWordsForVerse returns a verse's word nodes in canonical order.
func (db *DB) GetWordsForVerse(ctx context.Context, verseKey domain.NodeKey) ([]domain.NodeID, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT node_id FROM verse_words WHERE verse_key = ? ORDER BY ordinal
	`, string(verseKey))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_words_for_verse(%s): %w", verseKey, err)
	}
	defer rows.Close()
	var out []domain.NodeID
	for rows.Next() {
		var nodeID int64
		if err := rows.Scan(&nodeID); err != nil {
			return nil, fmt.Errorf("sqlite: get_words_for_verse(%s): scan: %w", verseKey, err)
		}
		out = append(out, domain.NodeID(nodeID))
	}
	return out, rows.Err()
}

// NodeExists backs the §6.5 update-verification preflight.
func (db *DB) NodeExists(ctx context.Context, nodeID domain.NodeID) (bool, error) {
	var one int
	err := db.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, int64(nodeID)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: node_exists(%d): %w", nodeID, err)
	}
	return true, nil
}

func chunkNodeIDs(ids []domain.NodeID, size int) [][]domain.NodeID {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]domain.NodeID
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func inClause(ids []domain.NodeID) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = int64(id)
	}
	return strings.Join(placeholders, ","), args
}
