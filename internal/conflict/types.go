// Package conflict reconciles external document changes against the
// user's unsaved in-memory edits.
//
// The package classifies collisions between an external diff and local
// edits, and applies whole-change resolution strategies. It never
// synthesizes merged annotation content: a local edit either survives a
// resolution or is dropped.
package conflict

import (
	"encoding/json"
	"time"
)

// Annotation is one unsaved annotation edit held by the editor.
type Annotation struct {
	ID         string          `json:"id"`
	PageNumber int             `json:"page_number"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	IsNew      bool            `json:"is_new"`
	IsModified bool            `json:"is_modified"`
	IsDeleted  bool            `json:"is_deleted"`
}

// TextEdit is one unsaved text edit.
type TextEdit struct {
	ID         string `json:"id"`
	PageNumber int    `json:"page_number"`
	Content    string `json:"content,omitempty"`
}

// Signature is one unsaved signature placement.
type Signature struct {
	ID         string    `json:"id"`
	PageNumber int       `json:"page_number"`
	SignerName string    `json:"signer_name,omitempty"`
	SignedAt   time.Time `json:"signed_at,omitempty"`
}

// UnsavedChanges is the user's in-memory edit set, owned by the editor and
// passed by value into this package. It is treated as an immutable
// snapshot for the duration of one reconciliation pass; every transform
// here returns a new value.
type UnsavedChanges struct {
	Annotations   []Annotation      `json:"annotations,omitempty"`
	TextEdits     []TextEdit        `json:"text_edits,omitempty"`
	FormValues    map[string]string `json:"form_values,omitempty"`
	Signatures    []Signature       `json:"signatures,omitempty"`
	PageRotations map[int]int       `json:"page_rotations,omitempty"`
}

// IsEmpty reports whether the edit set contains no edits at all.
func (u UnsavedChanges) IsEmpty() bool {
	return len(u.Annotations) == 0 && len(u.TextEdits) == 0 &&
		len(u.FormValues) == 0 && len(u.Signatures) == 0 &&
		len(u.PageRotations) == 0
}

// Clone returns a deep copy of the edit set.
func (u UnsavedChanges) Clone() UnsavedChanges {
	out := UnsavedChanges{}
	if u.Annotations != nil {
		out.Annotations = make([]Annotation, len(u.Annotations))
		for i, a := range u.Annotations {
			out.Annotations[i] = a
			if a.Data != nil {
				out.Annotations[i].Data = append(json.RawMessage(nil), a.Data...)
			}
		}
	}
	if u.TextEdits != nil {
		out.TextEdits = append([]TextEdit(nil), u.TextEdits...)
	}
	if u.FormValues != nil {
		out.FormValues = make(map[string]string, len(u.FormValues))
		for k, v := range u.FormValues {
			out.FormValues[k] = v
		}
	}
	if u.Signatures != nil {
		out.Signatures = append([]Signature(nil), u.Signatures...)
	}
	if u.PageRotations != nil {
		out.PageRotations = make(map[int]int, len(u.PageRotations))
		for k, v := range u.PageRotations {
			out.PageRotations[k] = v
		}
	}
	return out
}

// Severity classifies how dangerous a conflict is for the local edit.
type Severity string

const (
	// SeverityLow marks edits unaffected by structural change but
	// contextually related to the external change.
	SeverityLow Severity = "low"
	// SeverityMedium marks edits whose page was modified; anchor
	// coordinates may no longer match the visual content.
	SeverityMedium Severity = "medium"
	// SeverityCritical marks edits whose target page no longer exists.
	SeverityCritical Severity = "critical"
)

// Type identifies the kind of collision. The set is closed.
type Type string

const (
	// TypePageRemoved: the local edit targets a page the external change
	// removed.
	TypePageRemoved Type = "page-removed-with-local-edit"
	// TypeAnnotationOnChangedPage: an annotation sits on a page whose
	// content or rotation changed externally.
	TypeAnnotationOnChangedPage Type = "annotation-on-changed-page"
	// TypeTextEditOnChangedPage: a text edit sits on a changed page.
	TypeTextEditOnChangedPage Type = "text-edit-on-changed-page"
	// TypeSignatureOnChangedPage: a signature sits on a changed page.
	TypeSignatureOnChangedPage Type = "signature-on-changed-page"
	// TypeRotationOnChangedPage: a local rotation targets a changed page.
	TypeRotationOnChangedPage Type = "rotation-on-changed-page"
	// TypeStructuralChange: a global structural change (e.g. reorder)
	// invalidates page-number anchoring even for untouched pages.
	TypeStructuralChange Type = "structural-change-invalidates-edit"
	// TypeFormFieldConflict: form values were edited locally while the
	// document's form fields changed externally.
	TypeFormFieldConflict Type = "form-field-conflict"
)

// Strategy names a resolution policy.
type Strategy string

const (
	// StrategyKeepLocal keeps every local edit regardless of external
	// change.
	StrategyKeepLocal Strategy = "keep-local"
	// StrategyKeepExternal abandons the local edit set wholesale in favor
	// of the on-disk document.
	StrategyKeepExternal Strategy = "keep-external"
	// StrategyMergePreferLocal keeps local edits unless their target page
	// was removed.
	StrategyMergePreferLocal Strategy = "merge-prefer-local"
	// StrategyMergePreferExternal drops local edits on any externally
	// changed page; edits on untouched pages survive.
	StrategyMergePreferExternal Strategy = "merge-prefer-external"
	// StrategyManualReview is a recommendation only: the conflict needs an
	// explicit user decision. ApplyResolutions rejects it.
	StrategyManualReview Strategy = "manual-review"
)

// Conflict is one detected collision between an external change and a
// specific unsaved local edit.
type Conflict struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	PageNumber  int      `json:"page_number,omitempty"`
	EditID      string   `json:"edit_id,omitempty"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	// RecommendedStrategy is the engine's suggested policy for this
	// conflict; critical conflicts never get an automatic strategy.
	RecommendedStrategy Strategy `json:"recommended_strategy"`
}

// Resolution is the outcome of applying a strategy to a conflict set.
type Resolution struct {
	Resolved bool           `json:"resolved"`
	Merged   UnsavedChanges `json:"merged"`
}
