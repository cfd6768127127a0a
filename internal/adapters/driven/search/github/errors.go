package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// wrapError converts go-github errors to domain error types so the retry
// executor can classify them.
func wrapError(err error, operation string, limiter *RateLimiter) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &domain.RateLimitError{ResetAt: rateLimitErr.Rate.Reset.Time}
	}

	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := limiter.ResetTime()
		if abuseErr.RetryAfter != nil {
			reset = time.Now().Add(*abuseErr.RetryAfter)
		}
		return &domain.RateLimitError{ResetAt: reset}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		// Secondary rate limiting surfaces as a plain 403.
		if ghErr.Response.StatusCode == 403 {
			return &domain.RateLimitError{ResetAt: limiter.ResetTime()}
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

// Classify maps a search error to its retry class.
func Classify(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.KindTransient
	case domain.IsRateLimited(err):
		return domain.KindRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.KindFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.KindTransient
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code >= 500 {
			return domain.KindTransient
		}
		// 401, 404, 422: retrying the same request cannot help.
		return domain.KindFatal
	}

	// Unrecognised errors are usually connection-level.
	return domain.KindTransient
}
