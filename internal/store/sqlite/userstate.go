package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/iqrahapp/iqrah-core/internal/domain"
	"github.com/iqrahapp/iqrah-core/internal/ports"
)

// ─── ports.UserStateRepository ──────────────────────────────────────────────

func (db *DB) GetMemoryState(ctx context.Context, userID string, nodeID domain.NodeID) (*domain.MemoryState, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT stability, difficulty, energy, last_reviewed, due_at, review_count
		FROM memory_states WHERE user_id = ? AND node_id = ?
	`, userID, int64(nodeID))

	var st domain.MemoryState
	var lastReviewed, dueAt string
	err := row.Scan(&st.Stability, &st.Difficulty, &st.Energy, &lastReviewed, &dueAt, &st.ReviewCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_memory_state(%s,%d): %w", userID, nodeID, err)
	}
	st.UserID = userID
	st.NodeID = nodeID
	if st.LastReviewed, err = parseTime(lastReviewed); err != nil {
		return nil, fmt.Errorf("sqlite: get_memory_state(%s,%d): last_reviewed: %w", userID, nodeID, err)
	}
	if st.DueAt, err = parseTime(dueAt); err != nil {
		return nil, fmt.Errorf("sqlite: get_memory_state(%s,%d): due_at: %w", userID, nodeID, err)
	}
	return &st, nil
}

func (db *DB) SaveMemoryState(ctx context.Context, state domain.MemoryState) error {
	return db.saveMemoryStateTx(ctx, db.db, state)
}

// execer is the subset of *sql.DB and *sql.Tx this package writes through,
// so save helpers work identically inside and outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) saveMemoryStateTx(ctx context.Context, ex execer, state domain.MemoryState) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO memory_states (user_id, node_id, stability, difficulty, energy, last_reviewed, due_at, review_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, node_id) DO UPDATE SET
			stability = excluded.stability, difficulty = excluded.difficulty, energy = excluded.energy,
			last_reviewed = excluded.last_reviewed, due_at = excluded.due_at, review_count = excluded.review_count
	`, state.UserID, int64(state.NodeID), state.Stability, state.Difficulty, state.Energy,
		formatTime(state.LastReviewed), formatTime(state.DueAt), state.ReviewCount)
	if err != nil {
		return fmt.Errorf("sqlite: save_memory_state(%s,%d): %w", state.UserID, state.NodeID, err)
	}
	return nil
}

func (db *DB) SaveMemoryStatesBatch(ctx context.Context, states []domain.MemoryState) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: save_memory_states_batch: begin: %w", err)
	}
	defer tx.Rollback()
	for _, st := range states {
		if err := db.saveMemoryStateTx(ctx, tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) GetMemoryBasics(ctx context.Context, userID string, nodeIDs []domain.NodeID) (map[domain.NodeID]ports.MemoryBasics, error) {
	out := make(map[domain.NodeID]ports.MemoryBasics, len(nodeIDs))
	for _, id := range nodeIDs {
		out[id] = ports.MemoryBasics{}
	}
	for _, chunk := range chunkNodeIDs(nodeIDs, maxSQLiteParams) {
		placeholders, args := inClause(chunk)
		args = append([]any{userID}, args...)
		query := fmt.Sprintf(`
			SELECT node_id, energy, due_at FROM memory_states WHERE user_id = ? AND node_id IN (%s)
		`, placeholders)
		rows, err := db.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: get_memory_basics: %w", err)
		}
		for rows.Next() {
			var nodeID int64
			var energy float64
			var dueAt string
			if err := rows.Scan(&nodeID, &energy, &dueAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: get_memory_basics: scan: %w", err)
			}
			t, _ := parseTime(dueAt)
			out[domain.NodeID(nodeID)] = ports.MemoryBasics{Energy: energy, NextDueTS: t.Unix()}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// SaveReviewAtomic persists the new state, every propagation energy update,
// and the optional log record as one transaction (§4.8 step 4): the
// transaction commits wholly or rolls back wholly, satisfying §7
// StoreFailure's "no partial effect" requirement directly via SQLite's own
// atomicity rather than application-level compensation.
func (db *DB) SaveReviewAtomic(ctx context.Context, userID string, newState domain.MemoryState, energyUpdates []ports.EnergyUpdate, logEntry *domain.PropagationLogEntry) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: save_review_atomic: begin: %w", err)
	}
	defer tx.Rollback()

	if err := db.saveMemoryStateTx(ctx, tx, newState); err != nil {
		return err
	}

	for _, u := range energyUpdates {
		if err := db.applyEnergyUpdateTx(ctx, tx, userID, u); err != nil {
			return err
		}
	}

	if logEntry != nil {
		if logEntry.ID == "" {
			logEntry.ID = uuid.NewString()
		}
		payload, err := json.Marshal(logEntry.Updates)
		if err != nil {
			return fmt.Errorf("sqlite: save_review_atomic: marshal propagation log: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO propagation_log (id, ts, source, updates_json) VALUES (?, ?, ?, ?)
		`, logEntry.ID, formatTime(logEntry.Timestamp), int64(logEntry.Source), string(payload)); err != nil {
			return fmt.Errorf("sqlite: save_review_atomic: insert log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: save_review_atomic: commit: %w", err)
	}
	return nil
}

// applyEnergyUpdateTx updates just the energy column for a propagation
// target, preserving whatever FSRS fields that node already has (a
// propagation target is never re-scored by FSRS, only its energy moves).
// A target with no prior row yet (an unseen neighbor absorbing spillover
// energy before its first direct review) gets a zero-FSRS placeholder row.
func (db *DB) applyEnergyUpdateTx(ctx context.Context, tx *sql.Tx, userID string, u ports.EnergyUpdate) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE memory_states SET energy = ? WHERE user_id = ? AND node_id = ?
	`, u.NewEnergy, userID, int64(u.NodeID))
	if err != nil {
		return fmt.Errorf("sqlite: apply_energy_update(%s,%d): %w", userID, u.NodeID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: apply_energy_update(%s,%d): rows_affected: %w", userID, u.NodeID, err)
	}
	if affected > 0 {
		return nil
	}
	placeholder := domain.MemoryState{
		UserID: userID, NodeID: u.NodeID, Energy: u.NewEnergy,
		Stability: 0, Difficulty: 0, ReviewCount: 0,
	}
	return db.saveMemoryStateTx(ctx, tx, placeholder)
}

func (db *DB) GetDueStates(ctx context.Context, userID string, beforeTS int64, limit int) ([]domain.MemoryState, error) {
	query := `
		SELECT node_id, stability, difficulty, energy, last_reviewed, due_at, review_count
		FROM memory_states WHERE user_id = ? AND review_count > 0 AND due_at <= ?
		ORDER BY due_at ASC
	`
	args := []any{userID, formatTime(timeFromUnix(beforeTS))}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_due_states(%s): %w", userID, err)
	}
	defer rows.Close()

	var out []domain.MemoryState
	for rows.Next() {
		var nodeID int64
		var st domain.MemoryState
		var lastReviewed, dueAt string
		if err := rows.Scan(&nodeID, &st.Stability, &st.Difficulty, &st.Energy, &lastReviewed, &dueAt, &st.ReviewCount); err != nil {
			return nil, fmt.Errorf("sqlite: get_due_states(%s): scan: %w", userID, err)
		}
		st.UserID = userID
		st.NodeID = domain.NodeID(nodeID)
		st.LastReviewed, _ = parseTime(lastReviewed)
		st.DueAt, _ = parseTime(dueAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (db *DB) GetBanditArms(ctx context.Context, userID, goalGroup string) ([]domain.BanditArm, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT profile_name, successes, failures FROM bandit_arms WHERE user_id = ? AND goal_group = ?
	`, userID, goalGroup)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_bandit_arms(%s,%s): %w", userID, goalGroup, err)
	}
	defer rows.Close()
	var out []domain.BanditArm
	for rows.Next() {
		a := domain.BanditArm{UserID: userID, GoalGroup: goalGroup}
		if err := rows.Scan(&a.ProfileName, &a.Successes, &a.Failures); err != nil {
			return nil, fmt.Errorf("sqlite: get_bandit_arms(%s,%s): scan: %w", userID, goalGroup, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateBanditArm(ctx context.Context, arm domain.BanditArm) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO bandit_arms (user_id, goal_group, profile_name, successes, failures) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, goal_group, profile_name) DO UPDATE SET successes = excluded.successes, failures = excluded.failures
	`, arm.UserID, arm.GoalGroup, arm.ProfileName, arm.Successes, arm.Failures)
	if err != nil {
		return fmt.Errorf("sqlite: update_bandit_arm(%s,%s,%s): %w", arm.UserID, arm.GoalGroup, arm.ProfileName, err)
	}
	return nil
}

func (db *DB) GetSessionState(ctx context.Context, userID string) (domain.SessionCursor, error) {
	var raw string
	err := db.db.QueryRowContext(ctx, `SELECT node_ids FROM session_cursors WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.SessionCursor{UserID: userID}, nil
	}
	if err != nil {
		return domain.SessionCursor{}, fmt.Errorf("sqlite: get_session_state(%s): %w", userID, err)
	}
	return domain.SessionCursor{UserID: userID, NodeIDs: decodeNodeIDs(raw)}, nil
}

func (db *DB) SaveSessionState(ctx context.Context, cursor domain.SessionCursor) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO session_cursors (user_id, node_ids) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET node_ids = excluded.node_ids
	`, cursor.UserID, encodeNodeIDs(cursor.NodeIDs))
	if err != nil {
		return fmt.Errorf("sqlite: save_session_state(%s): %w", cursor.UserID, err)
	}
	return nil
}

func (db *DB) ClearSessionState(ctx context.Context, userID string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM session_cursors WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: clear_session_state(%s): %w", userID, err)
	}
	return nil
}

func (db *DB) GetStat(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := db.db.QueryRowContext(ctx, `SELECT value FROM user_stats WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get_stat(%s,%s): %w", userID, key, err)
	}
	return value, true, nil
}

func (db *DB) SetStat(ctx context.Context, userID, key, value string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set_stat(%s,%s): %w", userID, key, err)
	}
	return nil
}

func (db *DB) ListUserNodeIDs(ctx context.Context, userID string) ([]domain.NodeID, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT node_id FROM memory_states WHERE user_id = ? ORDER BY node_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list_user_node_ids(%s): %w", userID, err)
	}
	defer rows.Close()
	var out []domain.NodeID
	for rows.Next() {
		var nodeID int64
		if err := rows.Scan(&nodeID); err != nil {
			return nil, fmt.Errorf("sqlite: list_user_node_ids(%s): scan: %w", userID, err)
		}
		out = append(out, domain.NodeID(nodeID))
	}
	return out, rows.Err()
}

func encodeNodeIDs(ids []domain.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

func decodeNodeIDs(raw string) []domain.NodeID {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]domain.NodeID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.NodeID(n))
	}
	return out
}
