// Package upload validates documents before they are sent to the backend.
// Rejections happen locally, before any network call, so a bad file costs
// nothing but the check itself.
package upload

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tanmayd/vaidya/pkg/backend"
)

// MaxDocumentSize is the largest document accepted for upload (10 MiB).
const MaxDocumentSize = 10 << 20

// allowedTypes lists the MIME types the backend pipeline can process.
var allowedTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
	"image/tiff":      {},
}

// RejectionReason classifies why a document was rejected.
type RejectionReason int

const (
	// ReasonInvalidType means the document is not a PDF or supported image.
	ReasonInvalidType RejectionReason = iota

	// ReasonTooLarge means the document exceeds [MaxDocumentSize].
	ReasonTooLarge
)

// String returns the reason's short name.
func (r RejectionReason) String() string {
	switch r {
	case ReasonInvalidType:
		return "invalid_type"
	case ReasonTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// RejectionError reports a document that failed validation.
type RejectionError struct {
	// Reason classifies the rejection.
	Reason RejectionReason

	// MIME is the detected or declared content type.
	MIME string

	// Size is the document size in bytes.
	Size int64
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonInvalidType:
		return fmt.Sprintf("upload: unsupported document type %q; accepted: PDF, JPEG, PNG, TIFF", e.MIME)
	case ReasonTooLarge:
		return fmt.Sprintf("upload: document is %d bytes, limit is %d", e.Size, MaxDocumentSize)
	default:
		return "upload: document rejected"
	}
}

// Validate checks doc against the backend's upload constraints. When the
// declared MIME type is empty it is sniffed from the content and filled in on
// doc. A declared type that contradicts the content is rejected.
func Validate(doc *backend.Document) error {
	size := int64(len(doc.Data))
	if size > MaxDocumentSize {
		return &RejectionError{Reason: ReasonTooLarge, MIME: doc.MIME, Size: size}
	}

	detected := mimetype.Detect(doc.Data)
	if doc.MIME == "" {
		doc.MIME = detected.String()
	}

	if _, ok := allowedTypes[doc.MIME]; !ok {
		return &RejectionError{Reason: ReasonInvalidType, MIME: doc.MIME, Size: size}
	}
	if !detected.Is(doc.MIME) {
		return &RejectionError{Reason: ReasonInvalidType, MIME: detected.String(), Size: size}
	}
	return nil
}
