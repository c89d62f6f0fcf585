package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Page is one page of a paginated count. An empty NextToken ends the walk
type Page struct {
	Count     int64
	NextToken string
}

// PageFetcher returns the page addressed by token; "" is the first page
type PageFetcher interface {
	FetchPage(ctx context.Context, token string) (Page, error)
}

// Default pagination settings
const (
	DefaultPageDelay = 100 * time.Millisecond
	DefaultMaxPages  = 10000
)

// PaginatedCounter sums a count across every page of a continuation-token
// API, pausing between pages to stay under backend rate limits
type PaginatedCounter struct {
	fetcher   PageFetcher
	pageDelay time.Duration
	maxPages  int
}

// NewPaginatedCounter creates a counter over fetcher. maxPages bounds a walk
// whose tokens never run out.
func NewPaginatedCounter(fetcher PageFetcher, pageDelay time.Duration, maxPages int) *PaginatedCounter {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PaginatedCounter{fetcher: fetcher, pageDelay: pageDelay, maxPages: maxPages}
}

// Kind implements CountSource
func (c *PaginatedCounter) Kind() string { return KindPaginated }

// PointInTime implements PointInTimeSource. The walk counts what exists when
// Fetch runs, so a past day cannot be re-collected.
func (c *PaginatedCounter) PointInTime() bool { return true }

// Fetch implements CountSource. The window does not narrow the walk: the
// count is the population at fetch time.
func (c *PaginatedCounter) Fetch(ctx context.Context, _ stats.Window) CountResult {
	var (
		total int64
		token string
	)
	for page := 1; page <= c.maxPages; page++ {
		if page > 1 {
			if err := sleep(ctx, c.pageDelay); err != nil {
				return countFailure(fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
			}
		}

		p, err := c.fetcher.FetchPage(ctx, token)
		if err != nil {
			return countFailure(unavailable("page %d: %v", page, err))
		}
		total += p.Count

		if p.NextToken == "" {
			observability.FromContext(ctx).WithFields(map[string]interface{}{
				"pages": page,
				"total": total,
			}).Debug("Pagination complete")
			return CountResult{Value: total}
		}
		token = p.NextToken
	}
	return countFailure(fmt.Errorf("%w: continuation token still present after %d pages", ErrSourceUnavailable, c.maxPages))
}
