// Package arxivid models new-style arXiv identifiers (YYMM.NNNNN) and the
// filesystem-safe encoding used for per-paper output directories.
package arxivid

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a structured arXiv identifier: a YYMM prefix plus a sequence number
// within that month. The zero value is not a valid identifier.
type ID struct {
	Prefix   string
	Sequence int
}

// Parse accepts the canonical form ("2311.05222"). A trailing version suffix
// ("2311.05222v3") is rejected; strip it with TrimVersion first.
func Parse(s string) (ID, error) {
	prefix, seq, ok := strings.Cut(s, ".")
	if !ok {
		return ID{}, fmt.Errorf("arxiv id %q: missing separator", s)
	}
	return build(s, prefix, seq)
}

// ParseFolder accepts the filesystem-safe form ("2311-05222").
func ParseFolder(s string) (ID, error) {
	prefix, seq, ok := strings.Cut(s, "-")
	if !ok {
		return ID{}, fmt.Errorf("arxiv folder name %q: missing separator", s)
	}
	return build(s, prefix, seq)
}

func build(orig, prefix, seq string) (ID, error) {
	if len(prefix) != 4 {
		return ID{}, fmt.Errorf("arxiv id %q: prefix must be 4 digits", orig)
	}
	if _, err := strconv.Atoi(prefix); err != nil {
		return ID{}, fmt.Errorf("arxiv id %q: prefix is not numeric", orig)
	}
	n, err := strconv.Atoi(seq)
	if err != nil || n < 0 {
		return ID{}, fmt.Errorf("arxiv id %q: bad sequence number", orig)
	}
	return ID{Prefix: prefix, Sequence: n}, nil
}

// String returns the canonical form, sequence zero-padded to 5 digits.
func (id ID) String() string {
	return fmt.Sprintf("%s.%05d", id.Prefix, id.Sequence)
}

// Folder returns the filesystem-safe form ("2311-05222").
func (id ID) Folder() string {
	return fmt.Sprintf("%s-%05d", id.Prefix, id.Sequence)
}

// Versioned returns the canonical form with a version suffix ("2311.05222v2").
func (id ID) Versioned(version int) string {
	return fmt.Sprintf("%sv%d", id.String(), version)
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.Prefix == "" && id.Sequence == 0
}

// TrimVersion removes a trailing vN suffix from a canonical id string, if
// present, and returns the version number (0 when absent).
func TrimVersion(s string) (string, int) {
	i := strings.LastIndex(s, "v")
	if i <= 0 {
		return s, 0
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 1 {
		return s, 0
	}
	return s[:i], n
}

// Range generates every identifier from start to end inclusive. Both bounds
// must share a prefix and satisfy start.Sequence <= end.Sequence.
func Range(start, end ID) ([]ID, error) {
	if start.Prefix != end.Prefix {
		return nil, fmt.Errorf("range %s..%s: prefixes differ", start, end)
	}
	if start.Sequence > end.Sequence {
		return nil, fmt.Errorf("range %s..%s: start after end", start, end)
	}
	ids := make([]ID, 0, end.Sequence-start.Sequence+1)
	for n := start.Sequence; n <= end.Sequence; n++ {
		ids = append(ids, ID{Prefix: start.Prefix, Sequence: n})
	}
	return ids, nil
}
