// Package keys maps publication numbers to storage keys.
//
// Granted patents and published applications are told apart by length alone:
// identifiers longer than 12 characters are treated as applications
// (e.g. US20130091450A1) and keep their full form in drawing keys; anything
// shorter is a granted patent whose drawings are filed under the zero-padded
// numeric part (US7654321B2 -> 07654321).
package keys

import (
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	applicationMinLen = 13
	patentNumberWidth = 8

	drawingExt = ".tif"
)

var (
	// ErrInvalidIdentifier is returned for patent identifiers with no digits.
	ErrInvalidIdentifier = errors.New("identifier has no numeric part")
	// ErrUnsafeIdentifier is returned for identifiers that could address
	// anything other than a single record: empty, or containing a path
	// separator or "..".
	ErrUnsafeIdentifier = errors.New("identifier is not a plain name")
	// ErrMalformedKey is returned for drawing keys without a trailing -<n>.<ext>.
	ErrMalformedKey = errors.New("malformed drawing key")
)

var drawingNumberRE = regexp.MustCompile(`-(\d+)\.[^./-]+$`)

// CheckIdentifier rejects identifiers that cannot be embedded in a key as a
// single path segment.
func CheckIdentifier(docID string) error {
	if docID == "" || strings.ContainsAny(docID, "/\\\x00") || strings.Contains(docID, "..") {
		return ErrUnsafeIdentifier
	}
	return nil
}

// DocumentKey returns the key of a document's JSON record.
func DocumentKey(docID string) string {
	return "patents/" + docID + ".json"
}

// BibliographyKey returns the key of a document's bibliography record.
func BibliographyKey(docID string) string {
	return "bibliography/" + docID + ".json"
}

// IsApplication reports whether docID is treated as a published application.
func IsApplication(docID string) bool {
	return len(docID) >= applicationMinLen
}

// DrawingPrefix returns the key prefix shared by all drawings of docID.
func DrawingPrefix(docID string) (string, error) {
	if err := CheckIdentifier(docID); err != nil {
		return "", err
	}
	if IsApplication(docID) {
		return "images/" + docID + "-", nil
	}
	digits := firstDigitRun(docID)
	if digits == "" {
		return "", ErrInvalidIdentifier
	}
	if len(digits) < patentNumberWidth {
		digits = strings.Repeat("0", patentNumberWidth-len(digits)) + digits
	}
	return "images/" + digits + "-", nil
}

// DrawingKey returns the key of drawing n of docID.
func DrawingKey(docID string, n int) (string, error) {
	prefix, err := DrawingPrefix(docID)
	if err != nil {
		return "", err
	}
	return prefix + strconv.Itoa(n) + drawingExt, nil
}

// DrawingNumber extracts n from a key or file name ending in -<n>.<ext>.
func DrawingNumber(key string) (int, error) {
	m := drawingNumberRE.FindStringSubmatch(path.Base(key))
	if m == nil {
		return 0, ErrMalformedKey
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrMalformedKey
	}
	return n, nil
}

func firstDigitRun(s string) string {
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			return s[start:i]
		}
	}
	if start < 0 {
		return ""
	}
	return s[start:]
}
