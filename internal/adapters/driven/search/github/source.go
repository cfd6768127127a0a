// Package github implements the bulk search source and content fetcher on
// top of the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

const (
	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// perPage is the maximum page size the search API allows.
	perPage = 100

	// SourceName is the origin recorded on every fetched record.
	SourceName = "github"
)

// Config holds search query parameters.
type Config struct {
	// MinStars is the popularity floor applied in the search query.
	MinStars int

	// Topics restricts the search to repositories carrying any of these
	// topics. Empty means no topic filter.
	Topics []string
}

// Source is the GitHub repository search source. It satisfies both the bulk
// search and content fetcher ports from one authenticated client.
type Source struct {
	gh      *gh.Client
	limiter *RateLimiter
	cfg     Config
}

var (
	_ driven.BulkSource     = (*Source)(nil)
	_ driven.ContentFetcher = (*Source)(nil)
)

// NewSource creates a search source with a static access token. An empty
// token falls back to unauthenticated access with its much lower quota.
func NewSource(ctx context.Context, token string, cfg Config) *Source {
	var client *gh.Client
	if token == "" {
		client = gh.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		tc := oauth2.NewClient(ctx, ts)
		tc.Timeout = DefaultTimeout
		client = gh.NewClient(tc)
	}

	return &Source{
		gh:      client,
		limiter: NewRateLimiter(),
		cfg:     cfg,
	}
}

// SearchWindow fetches every page of repositories created inside the window,
// filtered to the partition language and the configured popularity floor.
// The provider caps combined results per query at domain.ResultCap; the
// returned TotalCount lets the caller detect overflow.
func (s *Source) SearchWindow(ctx context.Context, window domain.Window, partitionKey string) (*driven.SearchResult, error) {
	query := s.buildQuery(window, partitionKey)

	opts := &gh.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	result := &driven.SearchResult{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, resp, err := s.gh.Search.Repositories(ctx, query, opts)
		if err != nil {
			return nil, wrapError(err, "search repositories", s.limiter)
		}
		s.updateRateLimitFromResponse(resp)

		result.TotalCount = page.GetTotal()
		for _, repo := range page.Repositories {
			result.Records = append(result.Records, repoToRecord(repo))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return result, nil
}

// FetchContent returns the repository README as long-form descriptive text.
func (s *Source) FetchContent(ctx context.Context, key domain.RecordKey) (string, error) {
	owner, repo, err := splitFullName(key.ExternalID)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	readme, resp, err := s.gh.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return "", wrapError(err, "get readme", s.limiter)
	}
	s.updateRateLimitFromResponse(resp)

	content, err := readme.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode readme: %w", err)
	}
	return content, nil
}

// Classify maps a search error to its retry class.
func (s *Source) Classify(err error) domain.ErrorKind {
	return Classify(err)
}

// buildQuery assembles the search qualifier string for one window. The
// created qualifier is inclusive at both ends while adjacent windows share
// a boundary day, so the range stops the day before the window end; the
// next newer window covers that day against its own result cap.
func (s *Source) buildQuery(window domain.Window, partitionKey string) string {
	last := window.End.AddDate(0, 0, -1)
	parts := []string{
		fmt.Sprintf("created:%s..%s",
			window.Start.Format("2006-01-02"), last.Format("2006-01-02")),
		fmt.Sprintf("stars:>=%d", s.cfg.MinStars),
	}
	if partitionKey != "" {
		parts = append(parts, "language:"+partitionKey)
	}
	for _, topic := range s.cfg.Topics {
		parts = append(parts, "topic:"+topic)
	}
	return strings.Join(parts, " ")
}

func (s *Source) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	s.limiter.UpdateFromResponse(resp.Response)
}

// repoToRecord maps a search hit to a record. The repository full name is
// the external ID: it is the stable identity the rest of the API addresses
// repositories by.
func repoToRecord(repo *gh.Repository) domain.Record {
	return domain.Record{
		ExternalID:      repo.GetFullName(),
		Source:          SourceName,
		Author:          repo.GetOwner().GetLogin(),
		Title:           repo.GetName(),
		Stars:           repo.GetStargazersCount(),
		Description:     repo.GetDescription(),
		URL:             repo.GetHTMLURL(),
		OriginCreatedAt: repo.GetCreatedAt().Time,
	}
}

func splitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repository name %q", domain.ErrInvalidInput, fullName)
	}
	return parts[0], parts[1], nil
}
