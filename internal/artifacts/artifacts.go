// Package artifacts owns the on-disk layout of harvested papers: one
// directory per identifier holding metadata.json, references.json, and a
// tex/ tree with one subdirectory per version.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/semscholar"
)

// Metadata is the persisted per-paper descriptor. The first revised date is
// the submission date; revised dates are kept in version order, duplicates
// included.
type Metadata struct {
	PaperTitle       string   `json:"paper_title"`
	Authors          []string `json:"authors"`
	SubmissionDate   string   `json:"submission_date"`
	RevisedDates     []string `json:"revised_dates"`
	PublicationVenue string   `json:"publication_venue"`
}

// ReferenceEntry is the persisted form of one retained reference.
type ReferenceEntry struct {
	PaperTitle        string   `json:"paper_title"`
	Authors           []string `json:"authors"`
	SubmissionDate    string   `json:"submission_date"`
	SemanticScholarID string   `json:"semantic_scholar_id"`
}

// Store writes artifacts beneath a root directory.
type Store struct {
	root string
}

// NewStore builds a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// PaperDir returns (and creates) the output directory for a paper.
func (s *Store) PaperDir(id arxivid.ID) (string, error) {
	dir := filepath.Join(s.root, id.Folder())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create paper dir: %w", err)
	}
	return dir, nil
}

// VersionDir returns the extraction directory for one version, nested under
// the paper's tex/ tree. It does not create the directory; the archive
// fetcher does that once a download begins.
func (s *Store) VersionDir(id arxivid.ID, version int) string {
	return filepath.Join(s.root, id.Folder(), "tex", fmt.Sprintf("%sv%d", id.Folder(), version))
}

// WriteMetadata persists metadata.json for the paper.
func (s *Store) WriteMetadata(id arxivid.ID, meta Metadata) error {
	dir, err := s.PaperDir(id)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "metadata.json"), meta)
}

// WriteReferences persists references.json, keeping only references that
// carry a parseable arXiv id. Keys are the folder-safe form of the cited id;
// colliding keys resolve last-write-wins in API arrival order. Returns the
// number of entries written.
func (s *Store) WriteReferences(id arxivid.ID, refs []semscholar.Reference) (int, error) {
	dir, err := s.PaperDir(id)
	if err != nil {
		return 0, err
	}

	entries := make(map[string]ReferenceEntry)
	for _, ref := range refs {
		if ref.ArxivID.IsZero() {
			continue
		}
		entries[ref.ArxivID.Folder()] = ReferenceEntry{
			PaperTitle:        ref.Title,
			Authors:           append([]string{}, ref.Authors...),
			SubmissionDate:    ref.PublicationDate,
			SemanticScholarID: ref.PaperID,
		}
	}

	if err := writeJSON(filepath.Join(dir, "references.json"), entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// TotalSize reports the byte size of everything stored beneath the root.
func (s *Store) TotalSize() int64 {
	var total int64
	_ = filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort size sampling
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
