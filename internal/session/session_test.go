package session

import (
	"errors"
	"testing"
	"time"
)

func TestNewAssignsUploadingStage(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	sess := store.New()
	if sess.Progress.Stage != StageUploading {
		t.Fatalf("Stage = %v, want %v", sess.Progress.Stage, StageUploading)
	}
	if sess.ID == "" {
		t.Fatal("expected non-empty session ID")
	}
}

func TestGetMissingSession(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	if _, ok := store.Get("does-not-exist"); ok {
		t.Fatal("expected ok=false for missing session")
	}
}

func TestAdvanceStageRejectsBackwardMove(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	sess := store.New()
	store.AdvanceStage(sess.ID, StageSegmented, 50, "segmented")
	store.AdvanceStage(sess.ID, StageParsed, 10, "regressing")

	got, _ := store.Get(sess.ID)
	if got.Progress.Stage != StageSegmented {
		t.Fatalf("Stage regressed to %v, want it to stay at %v", got.Progress.Stage, StageSegmented)
	}
}

func TestAdvanceStagePercentNeverDecreases(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	sess := store.New()
	store.AdvanceStage(sess.ID, StageParsed, 30, "parsed")
	store.AdvanceStage(sess.ID, StageSegmented, 20, "lower percent, same-or-later stage")

	got, _ := store.Get(sess.ID)
	if got.Progress.Percent < 30 {
		t.Fatalf("Percent dropped to %d, want >= 30", got.Progress.Percent)
	}
}

func TestFailOverridesStageRegardlessOfOrder(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	sess := store.New()
	store.AdvanceStage(sess.ID, StageSegmented, 50, "segmented")
	store.Fail(sess.ID, errors.New("boom"))

	got, _ := store.Get(sess.ID)
	if got.Progress.Stage != StageError {
		t.Fatalf("Stage = %v, want %v", got.Progress.Stage, StageError)
	}
	if got.Err == nil || got.Err.Error() != "boom" {
		t.Fatalf("Err = %v, want boom", got.Err)
	}
}

func TestSweepReclaimsIdleSessions(t *testing.T) {
	store := NewStore(10 * time.Millisecond)
	defer store.Close()

	sess := store.New()
	time.Sleep(100 * time.Millisecond)

	if _, ok := store.Get(sess.ID); ok {
		t.Fatal("expected idle session to be reclaimed by sweeper")
	}
}

func TestUpdateOnMissingSessionReturnsFalse(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Close()

	if store.Update("missing", func(*Session) {}) {
		t.Fatal("expected Update on missing session to return false")
	}
}
