// Package hackernews implements the feed source on top of the Algolia
// Hacker News search API.
package hackernews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

const (
	// DefaultBaseURL is the Algolia HN search endpoint.
	DefaultBaseURL = "https://hn.algolia.com/api/v1"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// SourceName is the origin recorded on every fetched record.
	SourceName = "hackernews"

	// pageSize is how many items one feed call returns.
	pageSize = 100
)

// Config holds feed parameters.
type Config struct {
	// Feeds are the named feeds to poll, as Algolia tag expressions
	// ("front_page", "show_hn", "ask_hn").
	Feeds []string

	// MinPoints is the popularity floor applied client-side.
	MinPoints int

	// Keywords, when non-empty, keeps only items whose title contains at
	// least one keyword, case-insensitively.
	Keywords []string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

// Feed is the Hacker News feed source.
type Feed struct {
	http *http.Client
	cfg  Config
}

var _ driven.FeedSource = (*Feed)(nil)

// New creates a feed source. Defaults to the front page when no feeds are
// configured.
func New(cfg Config) *Feed {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = []string{"front_page"}
	}
	return &Feed{
		http: &http.Client{Timeout: DefaultTimeout},
		cfg:  cfg,
	}
}

// Feeds lists the configured feed names.
func (f *Feed) Feeds() []string {
	return f.cfg.Feeds
}

// item is one Algolia search hit.
type item struct {
	ObjectID  string    `json:"objectID"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Points    int       `json:"points"`
	URL       string    `json:"url"`
	StoryText string    `json:"story_text"`
	CreatedAt time.Time `json:"created_at"`
}

type searchResponse struct {
	Hits []item `json:"hits"`
}

// FetchFeed returns the current items of one named feed as records,
// filtered by the popularity floor and the keyword allow-list.
func (f *Feed) FetchFeed(ctx context.Context, feed string) ([]domain.Record, error) {
	endpoint := fmt.Sprintf("%s/search?tags=%s&hitsPerPage=%d",
		f.cfg.BaseURL, url.QueryEscape(feed), pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", feed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading feed %s: %w", feed, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.RateLimitError{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, feed: feed}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewMalformedResponse(string(body))
	}

	var records []domain.Record
	for _, hit := range parsed.Hits {
		if hit.Points < f.cfg.MinPoints {
			continue
		}
		if !f.keywordMatch(hit.Title) {
			continue
		}
		records = append(records, itemToRecord(hit))
	}
	return records, nil
}

// Classify maps a feed error to its retry class.
func (f *Feed) Classify(err error) domain.ErrorKind {
	switch {
	case domain.IsRateLimited(err):
		return domain.KindRateLimited
	case errors.Is(err, domain.ErrMalformedResponse):
		return domain.KindFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.KindFatal
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.code >= 500 {
			return domain.KindTransient
		}
		return domain.KindFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.KindTransient
	}
	return domain.KindTransient
}

func (f *Feed) keywordMatch(title string) bool {
	if len(f.cfg.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range f.cfg.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// itemToRecord maps a feed hit to a record. Points stand in for stars so the
// priority ordering is comparable across origins.
func itemToRecord(hit item) domain.Record {
	link := hit.URL
	if link == "" {
		link = "https://news.ycombinator.com/item?id=" + hit.ObjectID
	}
	return domain.Record{
		ExternalID:      hit.ObjectID,
		Source:          SourceName,
		Author:          hit.Author,
		Title:           hit.Title,
		Stars:           hit.Points,
		Description:     hit.StoryText,
		URL:             link,
		OriginCreatedAt: hit.CreatedAt,
	}
}

// statusError reports a non-200 feed response.
type statusError struct {
	code int
	feed string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("hackernews: feed %s returned status %d", e.feed, e.code)
}
