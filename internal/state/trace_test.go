package state

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"binsleuth/internal/types"
)

func TestTraceStore_RoundTrip(t *testing.T) {
	ts, err := OpenTraceStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("open trace store: %v", err)
	}
	defer ts.Close()

	s := NewStore(testGoal())
	s.AppendObservation(obs(1))
	s.PromoteArtifact(types.ArtifactPromotion{Kind: types.ArtifactKey, Value: "sesame"})
	snap := s.Snapshot()

	if err := ts.SaveSession("sess-1", snap, types.ReasonGoalSatisfied); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, reason, err := ts.LoadSession("sess-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if reason != types.ReasonGoalSatisfied {
		t.Errorf("expected goal_satisfied, got %s", reason)
	}
	if diff := cmp.Diff(snap, loaded); diff != "" {
		t.Errorf("snapshot changed across persistence (-saved +loaded):\n%s", diff)
	}

	records, err := ts.ListSessions(10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(records) != 1 || records[0].ID != "sess-1" {
		t.Errorf("unexpected session list: %+v", records)
	}
}

func TestTraceStore_MissingSession(t *testing.T) {
	ts, err := OpenTraceStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("open trace store: %v", err)
	}
	defer ts.Close()

	if _, _, err := ts.LoadSession("nope"); err == nil {
		t.Fatal("expected error for missing session")
	}
}
