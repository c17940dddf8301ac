package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-harvest/internal/arxivid"
)

// versionDatePattern matches the version announcements on an abstract page,
// e.g. `[v1]</a></strong> Mon, 12 Jun 2017` or `[v7]</strong> Fri, 4 Aug 2023`.
var versionDatePattern = regexp.MustCompile(
	`\[v\d+\](?:</a>)?</strong>\s+([A-Za-z]+,\s+\d+\s+[A-Za-z]+\s+\d{4})`)

const announceDateLayout = "Mon, 2 Jan 2006"

// ResolveVersionDates scrapes the paper's abstract page for per-version
// submission dates, returned as ISO dates in version order. If anything goes
// wrong, or the number of dates found differs from versionCount, it returns
// nil: a uniform fallback beats silently assigning a date to the wrong
// version.
func (c *Client) ResolveVersionDates(ctx context.Context, id arxivid.ID, versionCount int) []string {
	page, err := c.fetchAbstractPage(ctx, id)
	if err != nil {
		c.logger.Warn("abstract page fetch failed",
			zap.String("paper_id", id.String()), zap.Error(err))
		return nil
	}

	matches := versionDatePattern.FindAllStringSubmatch(page, -1)
	dates := make([]string, 0, len(matches))
	for _, m := range matches {
		dt, err := time.Parse(announceDateLayout, m[1])
		if err != nil {
			c.logger.Warn("unparseable version date",
				zap.String("paper_id", id.String()), zap.String("raw", m[1]))
			return nil
		}
		dates = append(dates, dt.Format("2006-01-02"))
	}

	if len(dates) != versionCount {
		c.logger.Warn("version date count mismatch",
			zap.String("paper_id", id.String()),
			zap.Int("expected", versionCount), zap.Int("got", len(dates)))
		return nil
	}
	return dates
}

func (c *Client) fetchAbstractPage(ctx context.Context, id arxivid.ID) (string, error) {
	url := fmt.Sprintf("%s/%s", c.cfg.AbsURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build abs request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("abs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("abs request: http %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read abs page: %w", err)
	}
	return string(body), nil
}
