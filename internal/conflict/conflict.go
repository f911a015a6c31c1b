package conflict

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"pagewatch/internal/detect"
	"pagewatch/internal/diff"
)

// ErrUnknownStrategy is returned when ApplyResolutions is handed a
// strategy outside the closed policy set. That is a coordinator bug, not
// a runtime condition, so it fails loudly instead of guessing.
var ErrUnknownStrategy = errors.New("unknown resolution strategy")

// DetectConflicts cross-references the user's unsaved edits against an
// external diff and returns one conflict per colliding edit.
//
// Severity rules: critical when the edit's target page was removed,
// medium when the page's content or rotation changed or a global
// structural change invalidated page anchoring, none otherwise.
func DetectConflicts(unsaved UnsavedChanges, summary *detect.ChangeSummary, d *diff.DocumentDiff) []Conflict {
	var conflicts []Conflict

	for _, a := range unsaved.Annotations {
		if c, ok := pageConflict(summary, d, a.PageNumber, a.ID, TypeAnnotationOnChangedPage, "annotation"); ok {
			conflicts = append(conflicts, c)
		}
	}
	for _, te := range unsaved.TextEdits {
		if c, ok := pageConflict(summary, d, te.PageNumber, te.ID, TypeTextEditOnChangedPage, "text edit"); ok {
			conflicts = append(conflicts, c)
		}
	}
	for _, sig := range unsaved.Signatures {
		if c, ok := pageConflict(summary, d, sig.PageNumber, sig.ID, TypeSignatureOnChangedPage, "signature"); ok {
			conflicts = append(conflicts, c)
		}
	}

	// Map iteration order is random; sort pages so conflict order is stable.
	rotPages := make([]int, 0, len(unsaved.PageRotations))
	for page := range unsaved.PageRotations {
		rotPages = append(rotPages, page)
	}
	sort.Ints(rotPages)
	for _, page := range rotPages {
		if c, ok := pageConflict(summary, d, page, "", TypeRotationOnChangedPage, "page rotation"); ok {
			conflicts = append(conflicts, c)
		}
	}

	if len(unsaved.FormValues) > 0 && hasChangeKind(summary, detect.ChangeFormFields) {
		conflicts = append(conflicts, Conflict{
			ID:   uuid.New().String(),
			Type: TypeFormFieldConflict,
			Description: fmt.Sprintf("%d unsaved form value(s) collide with external form field changes",
				len(unsaved.FormValues)),
			Severity:            SeverityMedium,
			RecommendedStrategy: StrategyMergePreferLocal,
		})
	}

	return conflicts
}

// pageConflict resolves one page-anchored edit against the diff.
func pageConflict(summary *detect.ChangeSummary, d *diff.DocumentDiff, page int, editID string, changedType Type, kind string) (Conflict, bool) {
	switch {
	case d.PageRemoved(page):
		return Conflict{
			ID:                  uuid.New().String(),
			Type:                TypePageRemoved,
			PageNumber:          page,
			EditID:              editID,
			Description:         fmt.Sprintf("Unsaved %s targets page %d, which was removed externally", kind, page),
			Severity:            SeverityCritical,
			RecommendedStrategy: StrategyManualReview,
		}, true

	case d.PageChanged(page, diff.PageChangeContent, diff.PageChangeRotation):
		return Conflict{
			ID:                  uuid.New().String(),
			Type:                changedType,
			PageNumber:          page,
			EditID:              editID,
			Description:         fmt.Sprintf("Unsaved %s on page %d may no longer match the page's content", kind, page),
			Severity:            SeverityMedium,
			RecommendedStrategy: StrategyMergePreferLocal,
		}, true

	case summary.RequiresFullReload:
		// A reorder or other global structural change invalidates
		// page-number anchoring even for pages with no recorded delta.
		return Conflict{
			ID:                  uuid.New().String(),
			Type:                TypeStructuralChange,
			PageNumber:          page,
			EditID:              editID,
			Description:         fmt.Sprintf("Structural document change invalidates page anchoring for unsaved %s on page %d", kind, page),
			Severity:            SeverityMedium,
			RecommendedStrategy: StrategyMergePreferLocal,
		}, true
	}

	return Conflict{}, false
}

func hasChangeKind(summary *detect.ChangeSummary, kind detect.ChangeType) bool {
	for _, c := range summary.Changes {
		if c.Type == kind {
			return true
		}
	}
	return false
}

// AutoResolveConflicts stamps every conflict with the caller-supplied
// strategy so one policy can be batch-applied without per-conflict
// interaction. The input slice is not mutated.
func AutoResolveConflicts(conflicts []Conflict, strategy Strategy) []Conflict {
	out := make([]Conflict, len(conflicts))
	for i, c := range conflicts {
		out[i] = c
		out[i].RecommendedStrategy = strategy
	}
	return out
}

// ApplyResolutions applies one resolution strategy to the whole conflict
// set and returns the merged edit set.
//
// The function is a pure transform: it never mutates its inputs, touches
// no storage, and is deterministic and idempotent for identical inputs.
func ApplyResolutions(unsaved UnsavedChanges, conflicts []Conflict, strategy Strategy) (Resolution, error) {
	switch strategy {
	case StrategyKeepLocal:
		return Resolution{Resolved: true, Merged: unsaved.Clone()}, nil

	case StrategyKeepExternal:
		// External wins means the in-memory edit set is abandoned
		// wholesale, including edits no conflict referenced.
		return Resolution{Resolved: true, Merged: UnsavedChanges{}}, nil

	case StrategyMergePreferLocal:
		drop := conflictPages(conflicts, true)
		return Resolution{Resolved: true, Merged: withoutPages(unsaved, drop, false)}, nil

	case StrategyMergePreferExternal:
		drop := conflictPages(conflicts, false)
		dropForms := hasFormConflict(conflicts)
		return Resolution{Resolved: true, Merged: withoutPages(unsaved, drop, dropForms)}, nil

	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// conflictPages collects the pages referenced by conflicts. With
// removedOnly, only pages whose conflict is a page removal count; local
// edits elsewhere survive a prefer-local merge.
func conflictPages(conflicts []Conflict, removedOnly bool) map[int]struct{} {
	pages := make(map[int]struct{})
	for _, c := range conflicts {
		if c.PageNumber <= 0 {
			continue
		}
		if removedOnly && c.Type != TypePageRemoved {
			continue
		}
		pages[c.PageNumber] = struct{}{}
	}
	return pages
}

func hasFormConflict(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Type == TypeFormFieldConflict {
			return true
		}
	}
	return false
}

// withoutPages returns a copy of unsaved with every page-anchored edit on
// a dropped page removed, and form values cleared when dropForms is set.
func withoutPages(unsaved UnsavedChanges, drop map[int]struct{}, dropForms bool) UnsavedChanges {
	out := unsaved.Clone()

	if len(drop) > 0 {
		kept := out.Annotations[:0]
		for _, a := range out.Annotations {
			if _, gone := drop[a.PageNumber]; !gone {
				kept = append(kept, a)
			}
		}
		out.Annotations = kept

		keptEdits := out.TextEdits[:0]
		for _, te := range out.TextEdits {
			if _, gone := drop[te.PageNumber]; !gone {
				keptEdits = append(keptEdits, te)
			}
		}
		out.TextEdits = keptEdits

		keptSigs := out.Signatures[:0]
		for _, sig := range out.Signatures {
			if _, gone := drop[sig.PageNumber]; !gone {
				keptSigs = append(keptSigs, sig)
			}
		}
		out.Signatures = keptSigs

		for page := range drop {
			delete(out.PageRotations, page)
		}
	}

	if dropForms {
		out.FormValues = map[string]string{}
	}
	return out
}
