package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pagewatch/internal/document"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func TestRecordAndPendingChanges(t *testing.T) {
	db := testDB(t)

	base := time.Now().Truncate(time.Millisecond)
	changes := []ExternalChange{
		{ID: "c1", Path: "/docs/a.pdf", Type: "change", Timestamp: base},
		{ID: "c2", Path: "/docs/a.pdf", Type: "change", Timestamp: base.Add(time.Second)},
		{ID: "c3", Path: "/docs/b.pdf", Type: "unlink", Timestamp: base.Add(2 * time.Second)},
	}
	for _, ch := range changes {
		if err := db.RecordChange(ch); err != nil {
			t.Fatalf("RecordChange(%s) failed: %v", ch.ID, err)
		}
	}

	pending, err := db.PendingChanges()
	if err != nil {
		t.Fatalf("PendingChanges() failed: %v", err)
	}

	// One entry per path, latest change wins, newest first.
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending changes, got %d: %+v", len(pending), pending)
	}
	if pending[0].ID != "c3" || pending[0].Type != "unlink" {
		t.Errorf("Expected newest change first, got %+v", pending[0])
	}
	if pending[1].ID != "c2" {
		t.Errorf("Expected latest change for /docs/a.pdf, got %+v", pending[1])
	}
	if !pending[1].Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("Timestamp round trip failed: %v != %v", pending[1].Timestamp, base.Add(time.Second))
	}

	n, err := db.CountPending()
	if err != nil {
		t.Fatalf("CountPending() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 pending rows, got %d", n)
	}
}

func TestDismissChange(t *testing.T) {
	db := testDB(t)

	ch := ExternalChange{ID: "c1", Path: "/docs/a.pdf", Type: "change", Timestamp: time.Now()}
	if err := db.RecordChange(ch); err != nil {
		t.Fatalf("RecordChange() failed: %v", err)
	}

	if err := db.DismissChange("c1"); err != nil {
		t.Fatalf("DismissChange() failed: %v", err)
	}

	pending, err := db.PendingChanges()
	if err != nil {
		t.Fatalf("PendingChanges() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Dismissed change still pending: %+v", pending)
	}

	if err := db.DismissChange("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DismissChange(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPurgeDismissed(t *testing.T) {
	db := testDB(t)

	for _, ch := range []ExternalChange{
		{ID: "c1", Path: "/docs/a.pdf", Type: "change", Timestamp: time.Now()},
		{ID: "c2", Path: "/docs/b.pdf", Type: "change", Timestamp: time.Now()},
	} {
		if err := db.RecordChange(ch); err != nil {
			t.Fatalf("RecordChange() failed: %v", err)
		}
	}
	if err := db.DismissChange("c1"); err != nil {
		t.Fatalf("DismissChange() failed: %v", err)
	}

	n, err := db.PurgeDismissed()
	if err != nil {
		t.Fatalf("PurgeDismissed() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 purged row, got %d", n)
	}

	count, err := db.CountPending()
	if err != nil {
		t.Fatalf("CountPending() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 remaining row, got %d", count)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := testDB(t)

	snap := &document.Snapshot{
		PageCount:        2,
		PageHashes:       []string{"h1", "h2"},
		PageRotations:    []int{0, 90},
		PageSizes:        []document.PageSize{{Width: 612, Height: 792}, {Width: 595, Height: 842}},
		AnnotationCounts: []int{0, 3},
		FormFieldCount:   1,
		Metadata:         map[string]string{"Title": "Report"},
		CreatedAt:        time.Now(),
	}

	if err := db.SaveSnapshot("/docs/a.pdf", snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	loaded, err := db.LoadSnapshot("/docs/a.pdf")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if !snap.Equal(loaded) {
		t.Errorf("Snapshot round trip lost data:\nsaved  %+v\nloaded %+v", snap, loaded)
	}

	// Saving again replaces rather than duplicates.
	updated := snap.Clone()
	updated.PageHashes[0] = "h1-mod"
	if err := db.SaveSnapshot("/docs/a.pdf", updated); err != nil {
		t.Fatalf("SaveSnapshot() replace failed: %v", err)
	}
	loaded, err = db.LoadSnapshot("/docs/a.pdf")
	if err != nil {
		t.Fatalf("LoadSnapshot() after replace failed: %v", err)
	}
	if loaded.PageHashes[0] != "h1-mod" {
		t.Errorf("Expected replaced snapshot, got hash %s", loaded.PageHashes[0])
	}
}

func TestLoadSnapshotNotFound(t *testing.T) {
	db := testDB(t)

	if _, err := db.LoadSnapshot("/docs/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSnapshot(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	db := testDB(t)

	snap := &document.Snapshot{CreatedAt: time.Now(), Metadata: map[string]string{}}
	if err := db.SaveSnapshot("/docs/a.pdf", snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	if err := db.DeleteSnapshot("/docs/a.pdf"); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	if _, err := db.LoadSnapshot("/docs/a.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing snapshot is fine.
	if err := db.DeleteSnapshot("/docs/missing.pdf"); err != nil {
		t.Errorf("DeleteSnapshot(missing) failed: %v", err)
	}
}

func TestSettings(t *testing.T) {
	db := testDB(t)

	// Defaults before anything was saved.
	s, err := db.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() failed: %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("Expected defaults, got %+v", s)
	}
	if s.DefaultStrategy != "merge-prefer-local" {
		t.Errorf("Expected merge-prefer-local default, got %s", s.DefaultStrategy)
	}

	s.AutoReload = true
	s.NotificationStyle = "toast"
	if err := db.SaveSettings(s); err != nil {
		t.Fatalf("SaveSettings() failed: %v", err)
	}

	loaded, err := db.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() after save failed: %v", err)
	}
	if loaded != s {
		t.Errorf("Settings round trip lost data:\nsaved  %+v\nloaded %+v", s, loaded)
	}

	// Second save overwrites.
	s.AutoReload = false
	if err := db.SaveSettings(s); err != nil {
		t.Fatalf("SaveSettings() overwrite failed: %v", err)
	}
	loaded, err = db.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() failed: %v", err)
	}
	if loaded.AutoReload {
		t.Error("Expected overwritten auto_reload=false")
	}
}
