package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleWindow(model string) *LearnedWindow {
	now := time.Now().UTC().Truncate(time.Second)
	return &LearnedWindow{
		ModelName:             model,
		ObservedMaxTokens:     199800,
		CeilingObservations:   6,
		CompactionCount:       1,
		LastObservedMaxTokens: 199800,
		LastUpdated:           now,
		ConfidenceScore:       0.9,
		FirstSeen:             now,
		LastCompactionTotal:   120000,
	}
}

func TestPutAndGetLearnedWindow(t *testing.T) {
	db := openTestDB(t)

	want := sampleWindow("claude-sonnet")
	if err := db.PutLearnedWindow(want); err != nil {
		t.Fatalf("PutLearnedWindow failed: %v", err)
	}

	got, err := db.GetLearnedWindow("claude-sonnet")
	if err != nil {
		t.Fatalf("GetLearnedWindow failed: %v", err)
	}
	if got.ObservedMaxTokens != want.ObservedMaxTokens {
		t.Errorf("ObservedMaxTokens = %d, want %d", got.ObservedMaxTokens, want.ObservedMaxTokens)
	}
	if got.ConfidenceScore != want.ConfidenceScore {
		t.Errorf("ConfidenceScore = %f, want %f", got.ConfidenceScore, want.ConfidenceScore)
	}
	if got.LastCompactionTotal != want.LastCompactionTotal {
		t.Errorf("LastCompactionTotal = %d, want %d", got.LastCompactionTotal, want.LastCompactionTotal)
	}
}

func TestGetLearnedWindow_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetLearnedWindow("nonexistent")
	if err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestPutLearnedWindow_Upsert(t *testing.T) {
	db := openTestDB(t)

	w := sampleWindow("m")
	if err := db.PutLearnedWindow(w); err != nil {
		t.Fatalf("first put failed: %v", err)
	}

	w.ObservedMaxTokens = 210000
	w.CeilingObservations = 7
	if err := db.PutLearnedWindow(w); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	got, err := db.GetLearnedWindow("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ObservedMaxTokens != 210000 {
		t.Errorf("upsert did not update: max = %d", got.ObservedMaxTokens)
	}

	// One row per model, always.
	windows, err := db.ListLearnedWindows()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(windows) != 1 {
		t.Errorf("row count = %d, want 1", len(windows))
	}
}

func TestUpdateLearnedWindow_CreatesWhenAbsent(t *testing.T) {
	db := openTestDB(t)

	err := db.UpdateLearnedWindow("m", func(rec *LearnedWindow) (*LearnedWindow, error) {
		if rec != nil {
			t.Errorf("expected nil record for absent model, got %+v", rec)
		}
		return sampleWindow("m"), nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.GetLearnedWindow("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ObservedMaxTokens != 199800 {
		t.Errorf("ObservedMaxTokens = %d, want 199800", got.ObservedMaxTokens)
	}
}

func TestUpdateLearnedWindow_ModifiesInPlace(t *testing.T) {
	db := openTestDB(t)

	if err := db.PutLearnedWindow(sampleWindow("m")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	err := db.UpdateLearnedWindow("m", func(rec *LearnedWindow) (*LearnedWindow, error) {
		rec.CompactionCount++
		rec.ConfidenceScore = 1.0
		return rec, nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.GetLearnedWindow("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CompactionCount != 2 {
		t.Errorf("CompactionCount = %d, want 2", got.CompactionCount)
	}
	if got.ConfidenceScore != 1.0 {
		t.Errorf("ConfidenceScore = %f, want 1.0", got.ConfidenceScore)
	}
}

func TestUpdateLearnedWindow_NilSkipsWrite(t *testing.T) {
	db := openTestDB(t)

	if err := db.PutLearnedWindow(sampleWindow("m")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	err := db.UpdateLearnedWindow("m", func(rec *LearnedWindow) (*LearnedWindow, error) {
		rec.CompactionCount = 99
		return nil, nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.GetLearnedWindow("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CompactionCount != 1 {
		t.Errorf("CompactionCount = %d, want unchanged 1", got.CompactionCount)
	}
}

func TestDeleteLearnedWindow(t *testing.T) {
	db := openTestDB(t)

	if err := db.PutLearnedWindow(sampleWindow("m")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := db.DeleteLearnedWindow("m"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := db.GetLearnedWindow("m"); err != ErrNotFound {
		t.Error("record should be gone after delete")
	}
}

func TestDeleteLearnedWindow_NotFound(t *testing.T) {
	db := openTestDB(t)

	if err := db.DeleteLearnedWindow("nonexistent"); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestResetAllLearnedWindows(t *testing.T) {
	db := openTestDB(t)

	for _, m := range []string{"a", "b", "c"} {
		if err := db.PutLearnedWindow(sampleWindow(m)); err != nil {
			t.Fatalf("put %s failed: %v", m, err)
		}
	}
	if err := db.ResetAllLearnedWindows(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	windows, err := db.ListLearnedWindows()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("expected empty store, got %d rows", len(windows))
	}
}

func TestListLearnedWindows_Ordered(t *testing.T) {
	db := openTestDB(t)

	for _, m := range []string{"zeta", "alpha", "mid"} {
		if err := db.PutLearnedWindow(sampleWindow(m)); err != nil {
			t.Fatalf("put %s failed: %v", m, err)
		}
	}

	windows, err := db.ListLearnedWindows()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("len = %d, want 3", len(windows))
	}
	if windows[0].ModelName != "alpha" || windows[2].ModelName != "zeta" {
		t.Errorf("unexpected order: %s, %s, %s",
			windows[0].ModelName, windows[1].ModelName, windows[2].ModelName)
	}
}
