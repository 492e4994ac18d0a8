package constants

import (
	"path/filepath"
	"strings"
)

const (
	EvidenceImage   = "image"
	EvidencePDF     = "pdf"
	EvidenceUnknown = ""
)

// DetectEvidenceKind classifies an uploaded payment proof by extension.
func DetectEvidenceKind(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp":
		return EvidenceImage
	case ".pdf":
		return EvidencePDF
	default:
		return EvidenceUnknown
	}
}
