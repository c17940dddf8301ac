// Package arxiv wraps the arXiv search API and abstract pages. It fetches
// one paper's descriptor per call and derives per-version submission dates
// that the structured API does not expose.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/ratelimit"
)

// ErrNotFound reports that the search API returned no entry for the id.
var ErrNotFound = errors.New("paper not found")

// Descriptor is one paper's metadata as returned by the search API. It is
// immutable once fetched.
type Descriptor struct {
	ID            arxivid.ID
	Title         string
	Authors       []string
	LatestVersion int
	Published     time.Time
	JournalRef    string
}

// Config controls Client behavior.
type Config struct {
	SearchURL   string
	AbsURL      string
	PageTimeout time.Duration
	UserAgent   string
}

// Client talks to the arXiv search endpoint and abstract pages.
type Client struct {
	cfg        Config
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	logger     *zap.Logger
}

// New builds a Client. The pacer may be nil when no arXiv-side spacing is
// wanted (tests).
func New(cfg Config, pacer *ratelimit.Pacer, logger *zap.Logger) *Client {
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://export.arxiv.org/api/query"
	}
	if cfg.AbsURL == "" {
		cfg.AbsURL = "https://arxiv.org/abs"
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "arxiv-harvest/0.1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.PageTimeout},
		pacer:      pacer,
		logger:     logger,
	}
}

// Fetch retrieves one paper's descriptor via the search API. The latest
// version number comes from the vN suffix of the returned entry id,
// defaulting to 1 when absent.
func (c *Client) Fetch(ctx context.Context, id arxivid.ID) (Descriptor, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return Descriptor{}, err
		}
	}

	query := fmt.Sprintf("%s?id_list=%s", c.cfg.SearchURL, url.QueryEscape(id.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest("arxiv", "error")
		return Descriptor{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest("arxiv", fmt.Sprintf("%dxx", resp.StatusCode/100))

	if resp.StatusCode != http.StatusOK {
		return Descriptor{}, fmt.Errorf("search request: http %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read search response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return Descriptor{}, fmt.Errorf("parse search response: %w", err)
	}

	// The API answers an unknown id with an empty feed, or with a stub entry
	// lacking a title. Both count as absent.
	if len(feed.Entries) == 0 || strings.TrimSpace(feed.Entries[0].Title) == "" {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry := feed.Entries[0]

	desc := Descriptor{
		ID:            id,
		Title:         strings.TrimSpace(entry.Title),
		LatestVersion: versionFromEntryID(entry.ID),
		JournalRef:    strings.TrimSpace(entry.JournalRef),
	}
	for _, a := range entry.Authors {
		desc.Authors = append(desc.Authors, a.Name)
	}
	desc.Published, _ = time.Parse(time.RFC3339, entry.Published)

	return desc, nil
}

// versionFromEntryID extracts N from ".../abs/2311.05222vN"; 1 when absent.
func versionFromEntryID(entryID string) int {
	i := strings.LastIndex(entryID, "/abs/")
	if i >= 0 {
		entryID = entryID[i+5:]
	}
	if _, v := arxivid.TrimVersion(entryID); v > 0 {
		return v
	}
	return 1
}

// Atom feed structures for the arXiv search API.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string       `xml:"id"`
	Title      string       `xml:"title"`
	Authors    []atomAuthor `xml:"author"`
	Published  string       `xml:"published"`
	JournalRef string       `xml:"journal_ref"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}
