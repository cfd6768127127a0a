package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// newTestSource points a source at a stub API server with throttling
// disabled.
func newTestSource(t *testing.T, handler http.Handler, cfg Config) *Source {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := gh.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	source := NewSource(context.Background(), "", cfg)
	source.gh = client
	source.limiter.bucket.SetLimit(1e9)
	return source
}

func TestBuildQuery(t *testing.T) {
	window := domain.Window{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	}

	s := &Source{cfg: Config{MinStars: 50}}
	assert.Equal(t, "created:2025-06-01..2025-06-07 stars:>=50", s.buildQuery(window, ""))
	assert.Equal(t, "created:2025-06-01..2025-06-07 stars:>=50 language:go", s.buildQuery(window, "go"))

	s.cfg.Topics = []string{"cli"}
	assert.Equal(t, "created:2025-06-01..2025-06-07 stars:>=50 topic:cli", s.buildQuery(window, ""))
}

func TestBuildQuery_AdjacentWindowsDoNotShareDays(t *testing.T) {
	older := domain.Window{
		Start: time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := domain.Window{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	}

	s := &Source{cfg: Config{MinStars: 10}}
	assert.Equal(t, "created:2025-05-25..2025-05-31 stars:>=10", s.buildQuery(older, ""))
	assert.Equal(t, "created:2025-06-01..2025-06-07 stars:>=10", s.buildQuery(newer, ""))
}

func TestSearchWindow_PaginatesAllPages(t *testing.T) {
	var queries []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/repositories", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("q"))

		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		if page == "" || page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			fmt.Fprint(w, `{"total_count": 150, "items": [
				{"full_name": "alice/one", "name": "one", "owner": {"login": "alice"},
				 "stargazers_count": 42, "description": "first", "html_url": "https://github.com/alice/one",
				 "created_at": "2025-06-02T10:00:00Z"}
			]}`)
			return
		}
		fmt.Fprint(w, `{"total_count": 150, "items": [
			{"full_name": "bob/two", "name": "two", "owner": {"login": "bob"},
			 "stargazers_count": 7, "description": "second", "html_url": "https://github.com/bob/two",
			 "created_at": "2025-06-03T10:00:00Z"}
		]}`)
	})

	source := newTestSource(t, handler, Config{MinStars: 10})
	window := domain.Window{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	}

	result, err := source.SearchWindow(context.Background(), window, "go")
	require.NoError(t, err)
	assert.Equal(t, 150, result.TotalCount)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "alice/one", first.ExternalID)
	assert.Equal(t, SourceName, first.Source)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "one", first.Title)
	assert.Equal(t, 42, first.Stars)
	assert.Equal(t, "first", first.Description)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), first.OriginCreatedAt)

	require.Len(t, queries, 2)
	assert.Equal(t, "created:2025-06-01..2025-06-07 stars:>=10 language:go", queries[0])
}

func TestSearchWindow_RateLimitMapsToDomainError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Minute).Unix()))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	})

	source := newTestSource(t, handler, Config{})
	window := domain.Window{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	}

	_, err := source.SearchWindow(context.Background(), window, "")
	require.Error(t, err)
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, domain.KindRateLimited, source.Classify(err))
	assert.False(t, domain.RetryAfter(err).IsZero(), "reset hint carried through")
}

func TestFetchContent_ReturnsDecodedReadme(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/alice/one/readme", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// "hello radar" base64-encoded.
		fmt.Fprint(w, `{"name": "README.md", "encoding": "base64", "content": "aGVsbG8gcmFkYXI="}`)
	})

	source := newTestSource(t, handler, Config{})
	content, err := source.FetchContent(context.Background(),
		domain.RecordKey{ExternalID: "alice/one", Source: SourceName})
	require.NoError(t, err)
	assert.Equal(t, "hello radar", content)
}

func TestFetchContent_InvalidKey(t *testing.T) {
	source := &Source{}
	_, err := source.FetchContent(context.Background(),
		domain.RecordKey{ExternalID: "no-slash", Source: SourceName})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClassify(t *testing.T) {
	notFound := &gh.ErrorResponse{Response: &http.Response{StatusCode: 404}}
	serverErr := &gh.ErrorResponse{Response: &http.Response{StatusCode: 502}}

	assert.Equal(t, domain.KindFatal, Classify(notFound))
	assert.Equal(t, domain.KindTransient, Classify(serverErr))
	assert.Equal(t, domain.KindTransient, Classify(errors.New("connection reset")))
	assert.Equal(t, domain.KindRateLimited, Classify(&domain.RateLimitError{}))
	assert.Equal(t, domain.KindFatal, Classify(context.Canceled))
}
