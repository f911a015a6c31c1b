package detect

import (
	"testing"
	"time"

	"pagewatch/internal/document"
)

// makeSnapshot builds a snapshot with the given page hashes and defaults
// for everything else.
func makeSnapshot(hashes ...string) *document.Snapshot {
	n := len(hashes)
	s := &document.Snapshot{
		PageCount:        n,
		PageHashes:       append([]string(nil), hashes...),
		PageRotations:    make([]int, n),
		PageSizes:        make([]document.PageSize, n),
		AnnotationCounts: make([]int, n),
		Metadata:         map[string]string{},
		CreatedAt:        time.Now(),
	}
	for i := range s.PageSizes {
		s.PageSizes[i] = document.PageSize{Width: 612, Height: 792}
	}
	return s
}

// assertAdditivity verifies the severity counter invariant.
func assertAdditivity(t *testing.T, s *ChangeSummary) {
	t.Helper()
	if s.MajorChanges+s.ModerateChanges+s.MinorChanges != s.TotalChanges {
		t.Errorf("severity counts %d+%d+%d != total %d",
			s.MajorChanges, s.ModerateChanges, s.MinorChanges, s.TotalChanges)
	}
	if s.TotalChanges != len(s.Changes) {
		t.Errorf("TotalChanges = %d, len(Changes) = %d", s.TotalChanges, len(s.Changes))
	}
}

func TestDetectChanges_IdenticalSnapshots(t *testing.T) {
	s := makeSnapshot("h1", "h2", "h3")

	summary, err := DetectChanges(s, s)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	if summary.HasChanges {
		t.Error("Identical snapshots should yield HasChanges = false")
	}
	if summary.TotalChanges != 0 {
		t.Errorf("Expected 0 changes, got %d", summary.TotalChanges)
	}
	if len(summary.Changes) != 0 {
		t.Errorf("Expected empty change list, got %d entries", len(summary.Changes))
	}
	if summary.RequiresFullReload {
		t.Error("Identical snapshots should not require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_FalseTouch(t *testing.T) {
	// A file re-saved with identical content: two distinct but equal
	// snapshots must not alarm the user.
	old := makeSnapshot("h1", "h2")
	updated := makeSnapshot("h1", "h2")
	updated.CreatedAt = old.CreatedAt.Add(time.Minute)

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}
	if summary.HasChanges {
		t.Errorf("False touch produced changes: %+v", summary.Changes)
	}
}

func TestDetectChanges_SinglePageContent(t *testing.T) {
	old := makeSnapshot("h1", "h2", "h3", "h4", "h5")
	updated := makeSnapshot("h1", "h2-modified", "h3", "h4", "h5")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	if !summary.HasChanges {
		t.Fatal("Expected HasChanges = true")
	}
	if summary.TotalChanges != 1 {
		t.Fatalf("Expected exactly 1 change, got %d: %+v", summary.TotalChanges, summary.Changes)
	}
	c := summary.Changes[0]
	if c.Type != ChangePageContent {
		t.Errorf("Expected %s, got %s", ChangePageContent, c.Type)
	}
	if c.Severity != SeverityModerate {
		t.Errorf("Expected moderate severity, got %s", c.Severity)
	}
	if len(summary.AffectedPages) != 1 || summary.AffectedPages[0] != 2 {
		t.Errorf("Expected affected pages [2], got %v", summary.AffectedPages)
	}
	if summary.RequiresFullReload {
		t.Error("Content change should not require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_PagesAddedAtEnd(t *testing.T) {
	old := makeSnapshot("h1", "h2")
	updated := makeSnapshot("h1", "h2", "h3", "h4")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	if summary.TotalChanges != 1 {
		t.Fatalf("Expected 1 change, got %d: %+v", summary.TotalChanges, summary.Changes)
	}
	c := summary.Changes[0]
	if c.Type != ChangePagesAdded {
		t.Fatalf("Expected %s, got %s", ChangePagesAdded, c.Type)
	}
	if c.Severity != SeverityMajor {
		t.Errorf("Expected major severity, got %s", c.Severity)
	}
	if len(c.Pages) != 2 || c.Pages[0] != 3 || c.Pages[1] != 4 {
		t.Errorf("Expected pages [3 4], got %v", c.Pages)
	}
	if !summary.RequiresFullReload {
		t.Error("Pages added must require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_PageInsertedInMiddle(t *testing.T) {
	old := makeSnapshot("h1", "h2", "h3")
	updated := makeSnapshot("h1", "hX", "h2", "h3")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	var added *Change
	for i := range summary.Changes {
		if summary.Changes[i].Type == ChangePagesAdded {
			added = &summary.Changes[i]
		}
	}
	if added == nil {
		t.Fatalf("Expected a pages-added entry, got %+v", summary.Changes)
	}
	if len(added.Pages) != 1 || added.Pages[0] != 2 {
		t.Errorf("Expected insertion at page 2, got %v", added.Pages)
	}
}

func TestDetectChanges_PageRemovedInMiddle(t *testing.T) {
	old := makeSnapshot("h1", "h2", "h3", "h4", "h5")
	updated := makeSnapshot("h1", "h2", "h4", "h5")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	var removed *Change
	for i := range summary.Changes {
		if summary.Changes[i].Type == ChangePagesRemoved {
			removed = &summary.Changes[i]
		}
	}
	if removed == nil {
		t.Fatalf("Expected a pages-removed entry, got %+v", summary.Changes)
	}
	if len(removed.Pages) != 1 || removed.Pages[0] != 3 {
		t.Errorf("Expected removal of old page 3, got %v", removed.Pages)
	}
	if !summary.RequiresFullReload {
		t.Error("Pages removed must require full reload")
	}
}

func TestDetectChanges_Reorder(t *testing.T) {
	old := makeSnapshot("h1", "h2", "h3", "h4")
	updated := makeSnapshot("h1", "h3", "h2", "h4")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	if summary.TotalChanges != 1 {
		t.Fatalf("Expected 1 change, got %d: %+v", summary.TotalChanges, summary.Changes)
	}
	c := summary.Changes[0]
	if c.Type != ChangePagesReordered {
		t.Fatalf("Expected %s, got %s", ChangePagesReordered, c.Type)
	}
	if c.Severity != SeverityMajor {
		t.Errorf("Expected major severity, got %s", c.Severity)
	}
	if !summary.RequiresFullReload {
		t.Error("Reorder must require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_ReorderNotDeclaredAcrossPageCountChange(t *testing.T) {
	// Same multiset in the common range but a page was also added:
	// the conservative rule refuses to call this a reorder.
	old := makeSnapshot("h1", "h2", "h3")
	updated := makeSnapshot("h2", "h1", "h3", "h4")

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}
	for _, c := range summary.Changes {
		if c.Type == ChangePagesReordered {
			t.Errorf("Reorder declared despite page count change: %+v", summary.Changes)
		}
	}
}

func TestDetectChanges_RotationAndSize(t *testing.T) {
	old := makeSnapshot("h1", "h2")
	updated := makeSnapshot("h1", "h2")
	updated.PageRotations[0] = 90
	updated.PageSizes[1] = document.PageSize{Width: 842, Height: 595}

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	if summary.TotalChanges != 2 {
		t.Fatalf("Expected 2 changes, got %d: %+v", summary.TotalChanges, summary.Changes)
	}
	for _, c := range summary.Changes {
		if c.Type != ChangePageContent {
			t.Errorf("Expected %s, got %s", ChangePageContent, c.Type)
		}
		if c.Severity != SeverityModerate {
			t.Errorf("Expected moderate severity, got %s", c.Severity)
		}
	}
	if summary.RequiresFullReload {
		t.Error("Rotation/size changes should not require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_AnnotationSeverity(t *testing.T) {
	tests := []struct {
		name     string
		oldCount int
		newCount int
		want     Severity
	}{
		{"appears on clean page", 0, 2, SeverityModerate},
		{"count shift on annotated page", 3, 5, SeverityMinor},
		{"all removed", 4, 0, SeverityMinor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := makeSnapshot("h1", "h2")
			updated := makeSnapshot("h1", "h2")
			old.AnnotationCounts[1] = tt.oldCount
			updated.AnnotationCounts[1] = tt.newCount

			summary, err := DetectChanges(old, updated)
			if err != nil {
				t.Fatalf("DetectChanges() failed: %v", err)
			}
			if summary.TotalChanges != 1 {
				t.Fatalf("Expected 1 change, got %d", summary.TotalChanges)
			}
			c := summary.Changes[0]
			if c.Type != ChangeAnnotations {
				t.Fatalf("Expected %s, got %s", ChangeAnnotations, c.Type)
			}
			if c.Severity != tt.want {
				t.Errorf("Expected %s severity, got %s", tt.want, c.Severity)
			}
			if len(c.Pages) != 1 || c.Pages[0] != 2 {
				t.Errorf("Expected pages [2], got %v", c.Pages)
			}
		})
	}
}

func TestDetectChanges_DocumentLevel(t *testing.T) {
	old := makeSnapshot("h1")
	old.FormFieldCount = 2
	old.BookmarkCount = 3
	old.Metadata = map[string]string{"Title": "Draft", "Author": "A"}

	updated := makeSnapshot("h1")
	updated.FormFieldCount = 4
	updated.BookmarkCount = 5
	updated.HasAttachments = true
	updated.Metadata = map[string]string{"Title": "Final", "Author": "A"}

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}

	wantKinds := map[ChangeType]Severity{
		ChangeFormFields:  SeverityModerate,
		ChangeAttachments: SeverityModerate,
		ChangeBookmarks:   SeverityMinor,
		ChangeMetadata:    SeverityMinor,
	}
	if summary.TotalChanges != len(wantKinds) {
		t.Fatalf("Expected %d changes, got %d: %+v", len(wantKinds), summary.TotalChanges, summary.Changes)
	}
	for _, c := range summary.Changes {
		want, ok := wantKinds[c.Type]
		if !ok {
			t.Errorf("Unexpected change kind %s", c.Type)
			continue
		}
		if c.Severity != want {
			t.Errorf("%s: expected %s severity, got %s", c.Type, want, c.Severity)
		}
	}
	if summary.RequiresFullReload {
		t.Error("Document-level non-security changes should not require full reload")
	}
	assertAdditivity(t, summary)
}

func TestDetectChanges_Security(t *testing.T) {
	old := makeSnapshot("h1")
	updated := makeSnapshot("h1")
	updated.Encrypted = true
	updated.Permissions = "0xfffff0c0"

	summary, err := DetectChanges(old, updated)
	if err != nil {
		t.Fatalf("DetectChanges() failed: %v", err)
	}
	if summary.TotalChanges != 1 {
		t.Fatalf("Expected 1 change, got %d", summary.TotalChanges)
	}
	if summary.Changes[0].Type != ChangeSecurity {
		t.Fatalf("Expected %s, got %s", ChangeSecurity, summary.Changes[0].Type)
	}
	if !summary.RequiresFullReload {
		t.Error("Security change must require full reload")
	}
}

func TestDetectChanges_StructuralImpliesReload(t *testing.T) {
	// No summary without a structural entry may require a full reload,
	// and every summary with one must.
	cases := []struct {
		name string
		old  *document.Snapshot
		new  *document.Snapshot
	}{
		{"content only", makeSnapshot("h1", "h2"), makeSnapshot("h1", "hX")},
		{"added", makeSnapshot("h1"), makeSnapshot("h1", "h2")},
		{"removed", makeSnapshot("h1", "h2"), makeSnapshot("h1")},
		{"reordered", makeSnapshot("h1", "h2"), makeSnapshot("h2", "h1")},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := DetectChanges(tt.old, tt.new)
			if err != nil {
				t.Fatalf("DetectChanges() failed: %v", err)
			}
			structural := len(summary.StructuralEntries()) > 0
			if structural != summary.RequiresFullReload {
				t.Errorf("structural=%v but RequiresFullReload=%v", structural, summary.RequiresFullReload)
			}
			assertAdditivity(t, summary)
		})
	}
}

func TestDetectChanges_MalformedSnapshot(t *testing.T) {
	bad := makeSnapshot("h1", "h2")
	bad.PageRotations = bad.PageRotations[:1]

	if _, err := DetectChanges(bad, makeSnapshot("h1", "h2")); err == nil {
		t.Error("Expected error for malformed old snapshot")
	}
	if _, err := DetectChanges(makeSnapshot("h1", "h2"), bad); err == nil {
		t.Error("Expected error for malformed new snapshot")
	}
}

func TestMaximalChange(t *testing.T) {
	old := makeSnapshot("h1", "h2", "h3")

	summary := MaximalChange(old)
	if !summary.HasChanges {
		t.Fatal("Maximal change must have changes")
	}
	if !summary.RequiresFullReload {
		t.Error("Maximal change must require full reload")
	}
	if summary.Changes[0].Type != ChangePagesRemoved {
		t.Errorf("Expected %s, got %s", ChangePagesRemoved, summary.Changes[0].Type)
	}
	if len(summary.Changes[0].Pages) != 3 {
		t.Errorf("Expected all 3 pages reported removed, got %v", summary.Changes[0].Pages)
	}
	assertAdditivity(t, summary)
}

func TestChangeType_Structural(t *testing.T) {
	structural := []ChangeType{ChangePagesAdded, ChangePagesRemoved, ChangePagesReordered, ChangeSecurity}
	for _, typ := range structural {
		if !typ.Structural() {
			t.Errorf("%s should be structural", typ)
		}
	}
	nonStructural := []ChangeType{ChangePageContent, ChangeAnnotations, ChangeFormFields,
		ChangeMetadata, ChangeAttachments, ChangeBookmarks}
	for _, typ := range nonStructural {
		if typ.Structural() {
			t.Errorf("%s should not be structural", typ)
		}
	}
}
