// Package verifyupdate implements the §6.5 update-verification preflight:
// given the old content snapshot, a proposed new snapshot, and one user's
// state store, classify every node the user's memory state references as
// safe, orphaned, or breaking. No state is modified by this check.
package verifyupdate

import (
	"context"
	"fmt"

	"github.com/iqrahapp/iqrah-core/internal/domain"
)

// SnapshotSource answers "does this node id exist in this snapshot". Both
// the old and the new content snapshot satisfy it (the same
// ports.ContentRepository.NodeExists method, bound to two different
// releases' stores).
type SnapshotSource interface {
	NodeExists(ctx context.Context, nodeID domain.NodeID) (bool, error)
}

// UserNodeSource enumerates the node ids a user's memory state references,
// independent of whether those ids still resolve in any snapshot.
type UserNodeSource interface {
	ListUserNodeIDs(ctx context.Context, userID string) ([]domain.NodeID, error)
}

// Report is the structured §6.5 classification. Safe iff Breaking is empty.
type Report struct {
	TotalUserNodes int
	NodesInNew     int
	Safe           []domain.NodeID // present in the new snapshot
	Orphaned       []domain.NodeID // absent from both old and new: already orphaned before this update, unaffected by it
	Breaking       []domain.NodeID // present in old, absent from new: this update would orphan it
}

// IsSafe reports whether the proposed update can be applied without
// orphaning any node a user currently has state for (§6.5 "safe iff the
// breaking set is empty").
func (r Report) IsSafe() bool {
	return len(r.Breaking) == 0
}

// Verify classifies every node id referenced by user's memory state against
// the old and new snapshots. It performs no writes.
func Verify(ctx context.Context, oldSnapshot, newSnapshot SnapshotSource, userStore UserNodeSource, userID string) (Report, error) {
	nodeIDs, err := userStore.ListUserNodeIDs(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("%w: list_user_node_ids(%s): %v", domain.ErrStoreFailure, userID, err)
	}

	report := Report{TotalUserNodes: len(nodeIDs)}
	for _, id := range nodeIDs {
		inNew, err := newSnapshot.NodeExists(ctx, id)
		if err != nil {
			return Report{}, fmt.Errorf("%w: node_exists(new, %s): %v", domain.ErrStoreFailure, id, err)
		}
		if inNew {
			report.Safe = append(report.Safe, id)
			report.NodesInNew++
			continue
		}

		inOld, err := oldSnapshot.NodeExists(ctx, id)
		if err != nil {
			return Report{}, fmt.Errorf("%w: node_exists(old, %s): %v", domain.ErrStoreFailure, id, err)
		}
		if inOld {
			report.Breaking = append(report.Breaking, id)
		} else {
			report.Orphaned = append(report.Orphaned, id)
		}
	}

	return report, nil
}
