package detect

import (
	"fmt"
	"sort"
	"time"

	"pagewatch/internal/document"
)

// builder accumulates changes and keeps the summary counters consistent.
type builder struct {
	summary ChangeSummary
	pages   map[int]struct{}
}

func newBuilder() *builder {
	return &builder{pages: make(map[int]struct{})}
}

func (b *builder) add(typ ChangeType, severity Severity, description string, pages []int) {
	b.summary.Changes = append(b.summary.Changes, Change{
		Type:        typ,
		Description: description,
		Severity:    severity,
		Pages:       pages,
	})
	b.summary.TotalChanges++
	switch severity {
	case SeverityMajor:
		b.summary.MajorChanges++
	case SeverityModerate:
		b.summary.ModerateChanges++
	case SeverityMinor:
		b.summary.MinorChanges++
	}
	for _, p := range pages {
		b.pages[p] = struct{}{}
	}
	if typ.Structural() {
		b.summary.RequiresFullReload = true
	}
}

func (b *builder) finish() *ChangeSummary {
	b.summary.HasChanges = b.summary.TotalChanges > 0
	b.summary.ChangeTimestamp = time.Now()
	if len(b.pages) > 0 {
		b.summary.AffectedPages = make([]int, 0, len(b.pages))
		for p := range b.pages {
			b.summary.AffectedPages = append(b.summary.AffectedPages, p)
		}
		sort.Ints(b.summary.AffectedPages)
	}
	return &b.summary
}

// DetectChanges compares an old and a new snapshot and produces a
// classified summary of the differences.
//
// Identical snapshots yield HasChanges == false and an empty change list;
// a file re-saved with identical content must not alarm anyone. Malformed
// snapshots (per-page slice lengths disagreeing with the page count)
// return an error rather than a wrong summary.
func DetectChanges(oldSnap, newSnap *document.Snapshot) (*ChangeSummary, error) {
	if err := oldSnap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid old snapshot: %w", err)
	}
	if err := newSnap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid new snapshot: %w", err)
	}

	b := newBuilder()

	detectPageStructure(b, oldSnap, newSnap)
	detectPageLevel(b, oldSnap, newSnap)
	detectDocumentLevel(b, oldSnap, newSnap)

	return b.finish(), nil
}

// MaximalChange builds the summary used when the new document state cannot
// be determined (file deleted or unreadable): every known page is reported
// removed and a full reload is forced.
func MaximalChange(oldSnap *document.Snapshot) *ChangeSummary {
	b := newBuilder()

	var pages []int
	if oldSnap != nil {
		for p := 1; p <= oldSnap.PageCount; p++ {
			pages = append(pages, p)
		}
	}
	b.add(ChangePagesRemoved, SeverityMajor,
		"Document is no longer readable; full reload required", pages)

	return b.finish()
}

// detectPageStructure emits pages-added or pages-removed entries.
//
// Added/removed pages are located at the point where the hash sequences
// diverge, provided the remaining pages line up; otherwise the change is
// assumed to be at the end of the document.
func detectPageStructure(b *builder, oldSnap, newSnap *document.Snapshot) {
	delta := newSnap.PageCount - oldSnap.PageCount
	switch {
	case delta > 0:
		pages := insertedPages(oldSnap.PageHashes, newSnap.PageHashes, delta)
		b.add(ChangePagesAdded, SeverityMajor,
			fmt.Sprintf("%d page(s) added", delta), pages)
	case delta < 0:
		pages := insertedPages(newSnap.PageHashes, oldSnap.PageHashes, -delta)
		b.add(ChangePagesRemoved, SeverityMajor,
			fmt.Sprintf("%d page(s) removed", -delta), pages)
	}
}

// insertedPages returns the 1-based positions, in the longer sequence, of
// the delta pages present in longer but not aligned in shorter. If no
// confident alignment exists, the pages are assumed appended at the end.
func insertedPages(shorter, longer []string, delta int) []int {
	prefix := 0
	for prefix < len(shorter) && shorter[prefix] == longer[prefix] {
		prefix++
	}

	aligned := true
	for i := prefix; i < len(shorter); i++ {
		if shorter[i] != longer[i+delta] {
			aligned = false
			break
		}
	}

	start := len(shorter) + 1 // appended at end
	if aligned {
		start = prefix + 1
	}

	pages := make([]int, 0, delta)
	for i := 0; i < delta; i++ {
		pages = append(pages, start+i)
	}
	return pages
}

// detectPageLevel compares the common index range of the two snapshots.
func detectPageLevel(b *builder, oldSnap, newSnap *document.Snapshot) {
	n := oldSnap.PageCount
	if newSnap.PageCount < n {
		n = newSnap.PageCount
	}

	var hashDiff []int
	for i := 0; i < n; i++ {
		if oldSnap.PageHashes[i] != newSnap.PageHashes[i] {
			hashDiff = append(hashDiff, i+1)
		}
	}

	// Reordering is declared only under the conservative rule: equal page
	// counts and an identical hash multiset. Duplicate hashes (e.g. blank
	// pages) can still alias a reorder, but requiring no additions or
	// removals keeps false positives to genuinely permuted documents.
	if len(hashDiff) > 0 && oldSnap.PageCount == newSnap.PageCount &&
		sameHashMultiset(oldSnap.PageHashes, newSnap.PageHashes) {
		b.add(ChangePagesReordered, SeverityMajor,
			fmt.Sprintf("%d page(s) moved to new positions", len(hashDiff)), hashDiff)
	} else {
		for _, p := range hashDiff {
			b.add(ChangePageContent, SeverityModerate,
				fmt.Sprintf("Page %d content modified", p), []int{p})
		}
	}

	for i := 0; i < n; i++ {
		page := i + 1
		if oldSnap.PageRotations[i] != newSnap.PageRotations[i] {
			b.add(ChangePageContent, SeverityModerate,
				fmt.Sprintf("Page %d rotated from %d° to %d°",
					page, oldSnap.PageRotations[i], newSnap.PageRotations[i]), []int{page})
		}
		if oldSnap.PageSizes[i] != newSnap.PageSizes[i] {
			b.add(ChangePageContent, SeverityModerate,
				fmt.Sprintf("Page %d resized", page), []int{page})
		}
	}

	detectAnnotations(b, oldSnap, newSnap, n)
}

// detectAnnotations emits a single annotations-changed entry covering all
// pages whose annotation counts differ.
//
// Severity policy: the entry is moderate when annotations appear on a page
// that previously had none (a user reviewing the document would want to
// see them); pure count shifts on already-annotated pages stay minor.
func detectAnnotations(b *builder, oldSnap, newSnap *document.Snapshot, n int) {
	var pages []int
	escalate := false
	for i := 0; i < n; i++ {
		if oldSnap.AnnotationCounts[i] == newSnap.AnnotationCounts[i] {
			continue
		}
		pages = append(pages, i+1)
		if oldSnap.AnnotationCounts[i] == 0 && newSnap.AnnotationCounts[i] > 0 {
			escalate = true
		}
	}
	if len(pages) == 0 {
		return
	}

	severity := SeverityMinor
	if escalate {
		severity = SeverityModerate
	}
	b.add(ChangeAnnotations, severity,
		fmt.Sprintf("Annotations changed on %d page(s)", len(pages)), pages)
}

// detectDocumentLevel compares document-wide fields.
func detectDocumentLevel(b *builder, oldSnap, newSnap *document.Snapshot) {
	if oldSnap.FormFieldCount != newSnap.FormFieldCount {
		b.add(ChangeFormFields, SeverityModerate,
			fmt.Sprintf("Form field count changed from %d to %d",
				oldSnap.FormFieldCount, newSnap.FormFieldCount), nil)
	}
	if oldSnap.HasAttachments != newSnap.HasAttachments {
		desc := "File attachments added"
		if oldSnap.HasAttachments {
			desc = "File attachments removed"
		}
		b.add(ChangeAttachments, SeverityModerate, desc, nil)
	}
	if oldSnap.BookmarkCount != newSnap.BookmarkCount {
		b.add(ChangeBookmarks, SeverityMinor,
			fmt.Sprintf("Bookmark count changed from %d to %d",
				oldSnap.BookmarkCount, newSnap.BookmarkCount), nil)
	}
	if oldSnap.Encrypted != newSnap.Encrypted || oldSnap.Permissions != newSnap.Permissions {
		b.add(ChangeSecurity, SeverityMajor,
			"Document encryption or permissions changed", nil)
	}

	for _, field := range metadataFields(oldSnap.Metadata, newSnap.Metadata) {
		b.add(ChangeMetadata, SeverityMinor,
			fmt.Sprintf("Metadata field %q changed", field), nil)
	}
}

// metadataFields returns the sorted set of keys whose values differ
// between the two metadata maps, including added and removed keys.
func metadataFields(oldMeta, newMeta map[string]string) []string {
	seen := make(map[string]struct{})
	var fields []string
	for k, v := range oldMeta {
		if nv, ok := newMeta[k]; !ok || nv != v {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				fields = append(fields, k)
			}
		}
	}
	for k := range newMeta {
		if _, ok := oldMeta[k]; !ok {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// sameHashMultiset reports whether a and b contain the same hashes with
// the same multiplicities.
func sameHashMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, h := range a {
		counts[h]++
	}
	for _, h := range b {
		counts[h]--
		if counts[h] < 0 {
			return false
		}
	}
	return true
}
