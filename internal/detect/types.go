// Package detect compares two document snapshots and classifies what
// changed between them.
package detect

import (
	"time"
)

// Severity classifies how disruptive a change is to the editing session.
type Severity string

const (
	// SeverityMajor marks structural changes that invalidate page
	// addressing (pages added/removed/reordered, security changes).
	SeverityMajor Severity = "major"
	// SeverityModerate marks content-level changes on existing pages.
	SeverityModerate Severity = "moderate"
	// SeverityMinor marks cosmetic changes (metadata, bookmarks).
	SeverityMinor Severity = "minor"
)

// ChangeType identifies the kind of change between two snapshots.
// The set is closed; Structural switches over it exhaustively.
type ChangeType string

const (
	// ChangePagesAdded indicates pages were added to the document.
	ChangePagesAdded ChangeType = "pages-added"
	// ChangePagesRemoved indicates pages were removed from the document.
	ChangePagesRemoved ChangeType = "pages-removed"
	// ChangePagesReordered indicates pages were rearranged without
	// content changes.
	ChangePagesReordered ChangeType = "pages-reordered"
	// ChangePageContent indicates a page's content, rotation or size changed.
	ChangePageContent ChangeType = "page-content-changed"
	// ChangeAnnotations indicates per-page annotation counts changed.
	ChangeAnnotations ChangeType = "annotations-changed"
	// ChangeFormFields indicates the form field count changed.
	ChangeFormFields ChangeType = "form-fields-changed"
	// ChangeMetadata indicates a document information entry changed.
	ChangeMetadata ChangeType = "metadata-changed"
	// ChangeAttachments indicates file attachments appeared or disappeared.
	ChangeAttachments ChangeType = "attachments-changed"
	// ChangeBookmarks indicates the outline entry count changed.
	ChangeBookmarks ChangeType = "bookmarks-changed"
	// ChangeSecurity indicates encryption or permissions changed.
	ChangeSecurity ChangeType = "security-changed"
)

// Structural reports whether the change invalidates page-number-based
// addressing and therefore forces a full reload.
func (t ChangeType) Structural() bool {
	switch t {
	case ChangePagesAdded, ChangePagesRemoved, ChangePagesReordered, ChangeSecurity:
		return true
	case ChangePageContent, ChangeAnnotations, ChangeFormFields,
		ChangeMetadata, ChangeAttachments, ChangeBookmarks:
		return false
	default:
		return false
	}
}

// Change is a single classified delta between two snapshots.
type Change struct {
	Type        ChangeType `json:"type"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	// Pages lists the affected page numbers (1-based), when page-scoped.
	Pages []int `json:"pages,omitempty"`
}

// ChangeSummary is the severity-classified result of comparing two
// snapshots. Invariant: MajorChanges + ModerateChanges + MinorChanges ==
// TotalChanges == len(Changes).
type ChangeSummary struct {
	HasChanges      bool     `json:"has_changes"`
	Changes         []Change `json:"changes"`
	TotalChanges    int      `json:"total_changes"`
	MajorChanges    int      `json:"major_changes"`
	ModerateChanges int      `json:"moderate_changes"`
	MinorChanges    int      `json:"minor_changes"`
	// AffectedPages is the sorted set of 1-based page numbers touched by
	// any change.
	AffectedPages      []int     `json:"affected_pages,omitempty"`
	RequiresFullReload bool      `json:"requires_full_reload"`
	ChangeTimestamp    time.Time `json:"change_timestamp"`
}

// StructuralEntries returns the subset of changes that are structural.
func (s *ChangeSummary) StructuralEntries() []Change {
	var out []Change
	for _, c := range s.Changes {
		if c.Type.Structural() {
			out = append(out, c)
		}
	}
	return out
}
