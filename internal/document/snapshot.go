// Package document provides structural snapshots of documents.
//
// A Snapshot is a cheap fingerprint of a document at a point in time:
// page counts, per-page content hashes, rotations, sizes and annotation
// counts. It deliberately contains no document content, so two snapshots
// can be compared without loading or diffing multi-megabyte binaries.
package document

import (
	"fmt"
	"time"
)

// PageSize holds the dimensions of a single page in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Snapshot is a structural fingerprint of a document at a point in time.
//
// All per-page slices are ordered by page (index 0 is page 1) and must
// have length equal to PageCount. Snapshots are immutable once created;
// a new one is taken on every reload or check.
type Snapshot struct {
	PageCount        int               `json:"page_count"`
	PageHashes       []string          `json:"page_hashes"`
	PageRotations    []int             `json:"page_rotations"`
	PageSizes        []PageSize        `json:"page_sizes"`
	AnnotationCounts []int             `json:"annotation_counts"`
	FormFieldCount   int               `json:"form_field_count"`
	HasAttachments   bool              `json:"has_attachments"`
	BookmarkCount    int               `json:"bookmark_count"`
	Encrypted        bool              `json:"encrypted"`
	Permissions      string            `json:"permissions,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Validate checks the per-page slice length invariant.
//
// A snapshot whose slices disagree with PageCount is a programming error
// in whatever produced it; comparing such a snapshot would silently yield
// a wrong diff, so callers are expected to fail fast on a non-nil error.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.PageCount < 0 {
		return fmt.Errorf("snapshot has negative page count %d", s.PageCount)
	}
	if len(s.PageHashes) != s.PageCount {
		return fmt.Errorf("snapshot has %d page hashes for %d pages", len(s.PageHashes), s.PageCount)
	}
	if len(s.PageRotations) != s.PageCount {
		return fmt.Errorf("snapshot has %d page rotations for %d pages", len(s.PageRotations), s.PageCount)
	}
	if len(s.PageSizes) != s.PageCount {
		return fmt.Errorf("snapshot has %d page sizes for %d pages", len(s.PageSizes), s.PageCount)
	}
	if len(s.AnnotationCounts) != s.PageCount {
		return fmt.Errorf("snapshot has %d annotation counts for %d pages", len(s.AnnotationCounts), s.PageCount)
	}
	return nil
}

// Equal reports whether two snapshots describe the same document structure.
// CreatedAt is ignored: it records when the snapshot was taken, not what
// the document looked like.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.PageCount != other.PageCount ||
		s.FormFieldCount != other.FormFieldCount ||
		s.HasAttachments != other.HasAttachments ||
		s.BookmarkCount != other.BookmarkCount ||
		s.Encrypted != other.Encrypted ||
		s.Permissions != other.Permissions {
		return false
	}
	for i := 0; i < s.PageCount; i++ {
		if s.PageHashes[i] != other.PageHashes[i] ||
			s.PageRotations[i] != other.PageRotations[i] ||
			s.PageSizes[i] != other.PageSizes[i] ||
			s.AnnotationCounts[i] != other.AnnotationCounts[i] {
			return false
		}
	}
	if len(s.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range s.Metadata {
		if other.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.PageHashes = append([]string(nil), s.PageHashes...)
	out.PageRotations = append([]int(nil), s.PageRotations...)
	out.PageSizes = append([]PageSize(nil), s.PageSizes...)
	out.AnnotationCounts = append([]int(nil), s.AnnotationCounts...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
