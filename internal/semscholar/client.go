// Package semscholar wraps the Semantic Scholar graph API for reference and
// venue lookups. All requests go through the shared Gate so the service's
// minimum call spacing holds across every worker.
package semscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
	"github.com/JakeFAU/arxiv-harvest/internal/metrics"
	"github.com/JakeFAU/arxiv-harvest/internal/ratelimit"
)

// Failure kinds surfaced to the pipeline. Absence of a record (404) is not
// an error; every other non-2xx is treated as potentially transient until
// retries exhaust.
var (
	// ErrRateLimited reports that 429 responses persisted through all retries.
	ErrRateLimited = errors.New("semantic scholar rate limit exceeded")
	// ErrService reports that transport errors or other non-2xx statuses
	// persisted through all retries.
	ErrService = errors.New("semantic scholar request failed")
)

const requestFields = "references,references.externalIds,references.title," +
	"references.authors,references.publicationDate,references.paperId,venue"

// Reference is one cited paper as reported by the graph API. ArxivID is the
// zero value when the external-id set has no parseable arXiv identifier.
type Reference struct {
	ArxivID         arxivid.ID
	Title           string
	Authors         []string
	PublicationDate string
	PaperID         string
}

// Result is a successful citation lookup. A 404 yields an empty Result.
type Result struct {
	References []Reference
	Venue      string
}

// Config controls Client behavior.
type Config struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
	// BackoffBase is the first 429 backoff; it doubles per attempt up to
	// BackoffCap. RetryPause is the fixed pause before retrying any other
	// failure.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	RetryPause  time.Duration
}

// Client is the citation-graph API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	gate       *ratelimit.Gate
	logger     *zap.Logger

	sleep func(time.Duration) // test seam
}

// New builds a Client sharing the given gate.
func New(cfg Config, gate *ratelimit.Gate, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.semanticscholar.org/graph/v1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 60 * time.Second
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		gate:       gate,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Fetch looks up references and venue for one paper. It retries transient
// failures up to MaxRetries attempts and classifies exhaustion as
// ErrRateLimited or ErrService.
func (c *Client) Fetch(ctx context.Context, id arxivid.ID) (Result, error) {
	endpoint := fmt.Sprintf("%s/paper/arXiv:%s?fields=%s",
		c.cfg.BaseURL, id, url.QueryEscape(requestFields))

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		var (
			status int
			body   []byte
		)
		err := c.gate.Do(func() error {
			var callErr error
			status, body, callErr = c.get(ctx, endpoint)
			return callErr
		})

		switch {
		case err != nil:
			metrics.ObserveAPIRequest("semantic_scholar", "error")
			c.logger.Warn("citation request failed",
				zap.String("paper_id", id.String()),
				zap.Int("attempt", attempt), zap.Error(err))
			if attempt < c.cfg.MaxRetries {
				c.sleep(c.cfg.RetryPause)
				continue
			}
			return Result{}, fmt.Errorf("%w: %v", ErrService, err)

		case status == http.StatusOK:
			metrics.ObserveAPIRequest("semantic_scholar", "2xx")
			res, perr := parseResult(body, c.logger)
			if perr == nil {
				return res, nil
			}
			// A 200 with an unparseable body is treated like any other
			// transient failure.
			c.logger.Warn("citation response unparseable",
				zap.String("paper_id", id.String()),
				zap.Int("attempt", attempt), zap.Error(perr))
			if attempt < c.cfg.MaxRetries {
				c.sleep(c.cfg.RetryPause)
				continue
			}
			return Result{}, perr

		case status == http.StatusNotFound:
			// Absent from the citation graph is a valid terminal state.
			metrics.ObserveAPIRequest("semantic_scholar", "4xx")
			c.logger.Info("paper absent from citation graph",
				zap.String("paper_id", id.String()))
			return Result{}, nil

		case status == http.StatusTooManyRequests:
			metrics.ObserveAPIRequest("semantic_scholar", "4xx")
			if attempt < c.cfg.MaxRetries {
				wait := c.backoff(attempt)
				c.logger.Warn("citation rate limited, backing off",
					zap.String("paper_id", id.String()),
					zap.Duration("wait", wait), zap.Int("attempt", attempt))
				c.sleep(wait)
				continue
			}
			return Result{}, fmt.Errorf("%w: after %d attempts", ErrRateLimited, attempt)

		default:
			metrics.ObserveAPIRequest("semantic_scholar", fmt.Sprintf("%dxx", status/100))
			c.logger.Warn("citation request returned unexpected status",
				zap.String("paper_id", id.String()),
				zap.Int("status", status), zap.Int("attempt", attempt))
			if attempt < c.cfg.MaxRetries {
				c.sleep(c.cfg.RetryPause)
				continue
			}
			return Result{}, fmt.Errorf("%w: http %d after %d attempts", ErrService, status, attempt)
		}
	}
	return Result{}, fmt.Errorf("%w: retries exhausted", ErrService)
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build citation request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("citation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read citation response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// backoff doubles the base per extra attempt, capped.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.cfg.BackoffBase << (attempt - 1)
	if wait > c.cfg.BackoffCap {
		wait = c.cfg.BackoffCap
	}
	return wait
}

type apiResponse struct {
	Venue      string         `json:"venue"`
	References []apiReference `json:"references"`
}

type apiReference struct {
	ExternalIDs     map[string]any `json:"externalIds"`
	Title           string         `json:"title"`
	Authors         []apiAuthor    `json:"authors"`
	PublicationDate string         `json:"publicationDate"`
	PaperID         string         `json:"paperId"`
}

type apiAuthor struct {
	Name string `json:"name"`
}

func parseResult(body []byte, logger *zap.Logger) (Result, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: parse response: %v", ErrService, err)
	}

	res := Result{Venue: resp.Venue}
	for _, ref := range resp.References {
		r := Reference{
			Title:           ref.Title,
			PublicationDate: ref.PublicationDate,
			PaperID:         ref.PaperID,
		}
		for _, a := range ref.Authors {
			r.Authors = append(r.Authors, a.Name)
		}
		if raw, ok := ref.ExternalIDs["ArXiv"].(string); ok {
			stripped, _ := arxivid.TrimVersion(raw)
			if id, err := arxivid.Parse(stripped); err == nil {
				r.ArxivID = id
			} else {
				logger.Debug("reference with unparseable arXiv id", zap.String("raw", raw))
			}
		}
		res.References = append(res.References, r)
	}
	return res, nil
}
