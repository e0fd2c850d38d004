package fingerprint

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/esgcompare/internal/document"
	"github.com/dgallion1/esgcompare/internal/metric"
)

// ErrEmptyDocument is returned for text that is empty after whitespace collapsing.
var ErrEmptyDocument = errors.New("empty document")

// Of fingerprints document text. Runs of whitespace collapse to a single
// space and the ends are trimmed, so texts differing only in whitespace
// share a fingerprint.
func Of(text string) (metric.Fingerprint, error) {
	collapsed := Collapse(text)
	if collapsed == "" {
		return "", ErrEmptyDocument
	}
	return metric.Fingerprint(HashHex([]byte(collapsed))), nil
}

// OfDocument fingerprints the joined text of a parsed document.
func OfDocument(doc *document.Document) (metric.Fingerprint, error) {
	if doc == nil {
		return "", ErrEmptyDocument
	}
	return Of(doc.Text())
}

// Collapse replaces every run of Unicode whitespace with one space.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// HashHex computes SHA-256 of data and returns the hex string.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
