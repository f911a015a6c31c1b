// Package diff expands a change summary into page-addressable detail.
//
// The diff builder never re-derives change classification (that is the
// detector's job); it re-expresses the same deltas at page granularity so
// conflict detection and preview rendering can ask "what happened to page
// N" and "what did metadata field F become".
package diff

import (
	"fmt"
	"sort"

	"pagewatch/internal/detect"
	"pagewatch/internal/document"
)

// PageChangeType identifies what aspect of a page changed.
type PageChangeType string

const (
	// PageChangeContent indicates the page's content stream changed.
	PageChangeContent PageChangeType = "content"
	// PageChangeRotation indicates the page's rotation changed.
	PageChangeRotation PageChangeType = "rotation"
	// PageChangeSize indicates the page's dimensions changed.
	PageChangeSize PageChangeType = "size"
	// PageChangeAnnotations indicates the page's annotation count changed.
	PageChangeAnnotations PageChangeType = "annotations"
)

// PageChange describes everything that changed on a single surviving page.
type PageChange struct {
	PageNumber  int              `json:"page_number"`
	HasChanges  bool             `json:"has_changes"`
	ChangeTypes []PageChangeType `json:"change_types"`
}

// MetadataChange is a precise old/new value pair for one metadata field.
// Empty OldValue means the field was added; empty NewValue means removed.
type MetadataChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// DocumentDiff is the page-addressable expansion of a change summary.
type DocumentDiff struct {
	Summary *detect.ChangeSummary `json:"summary"`
	// PagesAdded lists new page numbers in final-document indexing.
	PagesAdded []int `json:"pages_added,omitempty"`
	// PagesRemoved lists removed page numbers in old-document indexing.
	PagesRemoved       []int            `json:"pages_removed,omitempty"`
	PageChanges        []PageChange     `json:"page_changes,omitempty"`
	MetadataChanges    []MetadataChange `json:"metadata_changes,omitempty"`
	StructuralChanges  bool             `json:"structural_changes"`
	TotalAffectedPages int              `json:"total_affected_pages"`
}

// PageRemoved reports whether the given old-document page number was removed.
func (d *DocumentDiff) PageRemoved(page int) bool {
	for _, p := range d.PagesRemoved {
		if p == page {
			return true
		}
	}
	return false
}

// PageChanged reports whether the given page has any of the listed change
// types. With no types given, any recorded change matches.
func (d *DocumentDiff) PageChanged(page int, types ...PageChangeType) bool {
	for _, pc := range d.PageChanges {
		if pc.PageNumber != page || !pc.HasChanges {
			continue
		}
		if len(types) == 0 {
			return true
		}
		for _, want := range types {
			for _, got := range pc.ChangeTypes {
				if got == want {
					return true
				}
			}
		}
	}
	return false
}

// Build expands a summary plus the two underlying snapshots into a
// DocumentDiff. The summary must have been produced by detect.DetectChanges
// on the same snapshot pair.
func Build(oldSnap, newSnap *document.Snapshot, summary *detect.ChangeSummary) (*DocumentDiff, error) {
	if err := oldSnap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid old snapshot: %w", err)
	}
	if err := newSnap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid new snapshot: %w", err)
	}
	if summary == nil {
		return nil, fmt.Errorf("summary is nil")
	}

	d := &DocumentDiff{
		Summary:           summary,
		StructuralChanges: summary.RequiresFullReload,
	}

	// Structural entries come straight from the summary.
	for _, c := range summary.StructuralEntries() {
		switch c.Type {
		case detect.ChangePagesAdded:
			d.PagesAdded = append(d.PagesAdded, c.Pages...)
		case detect.ChangePagesRemoved:
			d.PagesRemoved = append(d.PagesRemoved, c.Pages...)
		}
	}

	d.PageChanges = pageChanges(oldSnap, newSnap)
	d.MetadataChanges = metadataChanges(oldSnap.Metadata, newSnap.Metadata)
	d.TotalAffectedPages = countAffected(d)

	return d, nil
}

// pageChanges re-expresses per-page deltas for the common index range.
func pageChanges(oldSnap, newSnap *document.Snapshot) []PageChange {
	n := oldSnap.PageCount
	if newSnap.PageCount < n {
		n = newSnap.PageCount
	}

	var out []PageChange
	for i := 0; i < n; i++ {
		var kinds []PageChangeType
		if oldSnap.PageHashes[i] != newSnap.PageHashes[i] {
			kinds = append(kinds, PageChangeContent)
		}
		if oldSnap.PageRotations[i] != newSnap.PageRotations[i] {
			kinds = append(kinds, PageChangeRotation)
		}
		if oldSnap.PageSizes[i] != newSnap.PageSizes[i] {
			kinds = append(kinds, PageChangeSize)
		}
		if oldSnap.AnnotationCounts[i] != newSnap.AnnotationCounts[i] {
			kinds = append(kinds, PageChangeAnnotations)
		}
		if len(kinds) == 0 {
			continue
		}
		out = append(out, PageChange{
			PageNumber:  i + 1,
			HasChanges:  true,
			ChangeTypes: kinds,
		})
	}
	return out
}

// metadataChanges computes precise old/new pairs for differing fields,
// sorted by field name.
func metadataChanges(oldMeta, newMeta map[string]string) []MetadataChange {
	var out []MetadataChange
	for k, ov := range oldMeta {
		nv, ok := newMeta[k]
		if ok && nv == ov {
			continue
		}
		out = append(out, MetadataChange{Field: k, OldValue: ov, NewValue: nv})
	}
	for k, nv := range newMeta {
		if _, ok := oldMeta[k]; !ok {
			out = append(out, MetadataChange{Field: k, NewValue: nv})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// countAffected returns the size of the union of page numbers appearing in
// PageChanges, PagesAdded and PagesRemoved.
func countAffected(d *DocumentDiff) int {
	set := make(map[int]struct{})
	for _, pc := range d.PageChanges {
		set[pc.PageNumber] = struct{}{}
	}
	for _, p := range d.PagesAdded {
		set[p] = struct{}{}
	}
	for _, p := range d.PagesRemoved {
		set[p] = struct{}{}
	}
	return len(set)
}
