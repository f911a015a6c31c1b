package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// infoKeys are the document information entries carried into Snapshot.Metadata.
var infoKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"}

// CaptureFunc produces a snapshot for the document at path.
// The reconciliation coordinator takes one of these so tests can substitute
// a canned capture without real files.
type CaptureFunc func(path string) (*Snapshot, error)

// Capture reads the PDF at path and builds a structural snapshot.
//
// Capture never loads page content into the snapshot: each page contributes
// only a SHA-256 of its content stream. Returns an error if the file cannot
// be read or is not a well-formed PDF; callers treat that as a maximal
// change (the document is gone or unreadable).
func Capture(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	snap := &Snapshot{
		PageCount:        ctx.PageCount,
		PageHashes:       make([]string, 0, ctx.PageCount),
		PageRotations:    make([]int, 0, ctx.PageCount),
		PageSizes:        make([]PageSize, 0, ctx.PageCount),
		AnnotationCounts: make([]int, 0, ctx.PageCount),
		Encrypted:        ctx.Encrypt != nil,
		Metadata:         map[string]string{},
		CreatedAt:        time.Now(),
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		snap.PageHashes = append(snap.PageHashes, hashPageContent(ctx, pageNr))

		rot, annots := pageAttrs(ctx, pageNr)
		snap.PageRotations = append(snap.PageRotations, rot)
		snap.AnnotationCounts = append(snap.AnnotationCounts, annots)

		var size PageSize
		if pageNr-1 < len(dims) {
			size = PageSize{Width: dims[pageNr-1].Width, Height: dims[pageNr-1].Height}
		}
		snap.PageSizes = append(snap.PageSizes, size)
	}

	snap.FormFieldCount = countFormFields(ctx)
	snap.HasAttachments = hasEmbeddedFiles(ctx)
	snap.BookmarkCount = countBookmarks(ctx)
	snap.Permissions = encryptPermissions(ctx)
	captureInfo(ctx, snap.Metadata)

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("captured inconsistent snapshot for %s: %w", path, err)
	}
	return snap, nil
}

// hashPageContent returns the SHA-256 of a page's content stream, or a
// fixed marker when the page has no extractable content.
func hashPageContent(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return "empty"
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "empty"
	}
	return hex.EncodeToString(h.Sum(nil))
}

// pageAttrs returns the effective rotation and annotation count for a page.
func pageAttrs(ctx *model.Context, pageNr int) (rotation, annotCount int) {
	d, _, inhPAttrs, err := ctx.PageDict(pageNr, false)
	if err != nil || d == nil {
		return 0, 0
	}
	if inhPAttrs != nil {
		rotation = inhPAttrs.Rotate
	}
	if obj, found := d.Find("Annots"); found {
		if arr, err := ctx.DereferenceArray(obj); err == nil {
			annotCount = len(arr)
		}
	}
	return rotation, annotCount
}

// countFormFields counts top-level AcroForm fields.
func countFormFields(ctx *model.Context) int {
	catalog, err := ctx.Catalog()
	if err != nil {
		return 0
	}
	obj, found := catalog.Find("AcroForm")
	if !found {
		return 0
	}
	acro, err := ctx.DereferenceDict(obj)
	if err != nil || acro == nil {
		return 0
	}
	fieldsObj, found := acro.Find("Fields")
	if !found {
		return 0
	}
	fields, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return 0
	}
	return len(fields)
}

// hasEmbeddedFiles reports whether the catalog carries an EmbeddedFiles
// name tree (file attachments).
func hasEmbeddedFiles(ctx *model.Context) bool {
	catalog, err := ctx.Catalog()
	if err != nil {
		return false
	}
	obj, found := catalog.Find("Names")
	if !found {
		return false
	}
	names, err := ctx.DereferenceDict(obj)
	if err != nil || names == nil {
		return false
	}
	_, found = names.Find("EmbeddedFiles")
	return found
}

// countBookmarks returns the total outline entry count from the catalog.
func countBookmarks(ctx *model.Context) int {
	catalog, err := ctx.Catalog()
	if err != nil {
		return 0
	}
	obj, found := catalog.Find("Outlines")
	if !found {
		return 0
	}
	outlines, err := ctx.DereferenceDict(obj)
	if err != nil || outlines == nil {
		return 0
	}
	if count := outlines.IntEntry("Count"); count != nil {
		if *count < 0 {
			return -*count
		}
		return *count
	}
	return 0
}

// encryptPermissions renders the encryption dictionary's permission flags,
// or "" for unencrypted documents.
func encryptPermissions(ctx *model.Context) string {
	if ctx.Encrypt == nil {
		return ""
	}
	enc, err := ctx.DereferenceDict(*ctx.Encrypt)
	if err != nil || enc == nil {
		return "encrypted"
	}
	if p := enc.IntEntry("P"); p != nil {
		return fmt.Sprintf("%#x", uint32(*p))
	}
	return "encrypted"
}

// captureInfo copies the standard document information entries into meta.
func captureInfo(ctx *model.Context, meta map[string]string) {
	if ctx.Info == nil {
		return
	}
	info, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || info == nil {
		return
	}
	for _, key := range infoKeys {
		obj, found := info.Find(key)
		if !found {
			continue
		}
		if v := stringValue(ctx, obj); v != "" {
			meta[key] = v
		}
	}
}

// stringValue extracts a PDF string object's text value.
func stringValue(ctx *model.Context, obj types.Object) string {
	o, err := ctx.Dereference(obj)
	if err != nil {
		return ""
	}
	switch s := o.(type) {
	case types.StringLiteral:
		return s.Value()
	case types.HexLiteral:
		return s.Value()
	default:
		return ""
	}
}
