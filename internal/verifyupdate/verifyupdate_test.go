package verifyupdate

import (
	"context"
	"errors"
	"testing"

	"github.com/iqrahapp/iqrah-core/internal/domain"
)

type fakeSnapshot struct {
	present map[domain.NodeID]bool
	err     error
}

func (f fakeSnapshot) NodeExists(ctx context.Context, nodeID domain.NodeID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.present[nodeID], nil
}

type fakeUserNodes struct {
	ids []domain.NodeID
	err error
}

func (f fakeUserNodes) ListUserNodeIDs(ctx context.Context, userID string) ([]domain.NodeID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func TestVerify_ClassifiesEveryNode(t *testing.T) {
	old := fakeSnapshot{present: map[domain.NodeID]bool{1: true, 2: true, 3: true}}
	next := fakeSnapshot{present: map[domain.NodeID]bool{1: true}} // 2 dropped, 3 dropped, 4 never existed
	users := fakeUserNodes{ids: []domain.NodeID{1, 2, 3, 4}}

	report, err := Verify(context.Background(), old, next, users, "u1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(report.Safe) != 1 || report.Safe[0] != 1 {
		t.Errorf("Safe = %v, want [1]", report.Safe)
	}
	if len(report.Breaking) != 2 {
		t.Errorf("Breaking = %v, want 2 entries (present in old, gone in new)", report.Breaking)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0] != 4 {
		t.Errorf("Orphaned = %v, want [4] (absent from both)", report.Orphaned)
	}
	if report.TotalUserNodes != 4 {
		t.Errorf("TotalUserNodes = %d, want 4", report.TotalUserNodes)
	}
	if report.NodesInNew != 1 {
		t.Errorf("NodesInNew = %d, want 1", report.NodesInNew)
	}
}

func TestVerify_NoUserNodesIsTriviallySafe(t *testing.T) {
	report, err := Verify(context.Background(), fakeSnapshot{}, fakeSnapshot{}, fakeUserNodes{}, "u1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !report.IsSafe() {
		t.Error("IsSafe() = false, want true when the user has no tracked nodes")
	}
}

func TestVerify_ListUserNodesError(t *testing.T) {
	_, err := Verify(context.Background(), fakeSnapshot{}, fakeSnapshot{}, fakeUserNodes{err: errors.New("boom")}, "u1")
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("Verify() err = %v, want ErrStoreFailure", err)
	}
}

func TestVerify_NewSnapshotError(t *testing.T) {
	users := fakeUserNodes{ids: []domain.NodeID{1}}
	_, err := Verify(context.Background(), fakeSnapshot{}, fakeSnapshot{err: errors.New("boom")}, users, "u1")
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("Verify() err = %v, want ErrStoreFailure", err)
	}
}

func TestVerify_OldSnapshotError(t *testing.T) {
	users := fakeUserNodes{ids: []domain.NodeID{1}}
	next := fakeSnapshot{present: map[domain.NodeID]bool{}}
	old := fakeSnapshot{err: errors.New("boom")}
	_, err := Verify(context.Background(), old, next, users, "u1")
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("Verify() err = %v, want ErrStoreFailure", err)
	}
}

func TestReport_IsSafe(t *testing.T) {
	tests := []struct {
		name string
		r    Report
		want bool
	}{
		{"no breaking", Report{Safe: []domain.NodeID{1}}, true},
		{"has breaking", Report{Breaking: []domain.NodeID{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.IsSafe(); got != tt.want {
				t.Errorf("IsSafe() = %v, want %v", got, tt.want)
			}
		})
	}
}
