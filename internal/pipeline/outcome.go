package pipeline

import (
	"fmt"
	"time"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
)

// Kind is the terminal classification of processing one paper. The string
// values double as error-breakdown keys in the statistics file.
type Kind string

// Terminal outcome kinds.
const (
	KindSuccess         Kind = "success"
	KindNotFound        Kind = "paper_not_found"
	KindNoSource        Kind = "no_tex_source_pdf_only"
	KindMissingVersions Kind = "missing_versions"
	KindRateLimited     Kind = "api_rate_limit"
	KindCitationError   Kind = "semantic_scholar_error"
	KindUnexpected      Kind = "network_error"
)

// Outcome is the single terminal result of one paper in one run.
type Outcome struct {
	ID   arxivid.ID
	Kind Kind

	// Versions is the number of versions downloaded and extracted;
	// ExpectedVersions is the paper's latest version number.
	Versions         int
	ExpectedVersions int

	SizeBefore int64
	SizeAfter  int64
	// PeakDisk is the largest simultaneous footprint of any one version:
	// its compressed archive plus its extraction.
	PeakDisk int64

	References int
	Elapsed    time.Duration

	// Err carries the underlying failure for logs; nil on success.
	Err error
}

// Success reports whether the outcome is the success variant.
func (o Outcome) Success() bool {
	return o.Kind == KindSuccess
}

func (o Outcome) String() string {
	if o.Success() {
		return fmt.Sprintf("success: %d version(s), %d reference(s), %s",
			o.Versions, o.References, o.Elapsed.Round(time.Millisecond))
	}
	if o.Kind == KindMissingVersions {
		return fmt.Sprintf("%s: expected %d, got %d", o.Kind, o.ExpectedVersions, o.Versions)
	}
	return string(o.Kind)
}
