// Package ledger tracks which papers have already been processed so that
// interrupted runs can resume without redoing work. The ledger is persisted
// after every addition; a crash loses at most the in-flight paper.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type fileFormat struct {
	Processed []string `json:"processed"`
}

// Ledger is a persistent set of processed paper identifiers. Safe for
// concurrent use.
type Ledger struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// Load reads the ledger at path, creating an empty one if the file does not
// exist yet.
func Load(path string) (*Ledger, error) {
	l := &Ledger{path: path, seen: make(map[string]struct{})}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parsing ledger %s: %w", path, err)
	}
	for _, id := range ff.Processed {
		l.seen[id] = struct{}{}
	}
	return l, nil
}

// Contains reports whether id has already been processed.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Add records id as processed and persists the ledger immediately.
func (l *Ledger) Add(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return nil
	}
	l.seen[id] = struct{}{}
	return l.save()
}

// Len returns the number of processed papers.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// save writes the ledger atomically; callers must hold l.mu.
func (l *Ledger) save() error {
	ids := make([]string, 0, len(l.seen))
	for id := range l.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw, err := json.MarshalIndent(fileFormat{Processed: ids}, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing ledger: %w", err)
	}
	return os.Rename(tmp.Name(), l.path)
}
