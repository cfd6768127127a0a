// Package slack sends record digests to a Slack channel via an incoming
// webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

const (
	// ChannelName is the channel identity recorded on sent records.
	ChannelName = "slack"

	// maxMessageLen keeps messages well under Slack's block text limits.
	maxMessageLen = 3000

	defaultTimeout = 15 * time.Second
)

// Config holds webhook credentials and delivery parameters.
type Config struct {
	// WebhookURL is the incoming webhook endpoint (required).
	WebhookURL string

	// ScoreFloor is the channel's relevance floor.
	ScoreFloor float64
}

// Notifier sends digests through a Slack incoming webhook.
type Notifier struct {
	cfg    Config
	client *http.Client
}

var _ driven.Notifier = (*Notifier)(nil)

// New creates a Slack notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack: %w", domain.ErrNotifierUnavailable)
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Name returns the channel identity.
func (n *Notifier) Name() string { return ChannelName }

// ScoreFloor returns the channel's relevance floor.
func (n *Notifier) ScoreFloor() float64 { return n.cfg.ScoreFloor }

// Send formats the records as one digest and posts it, split into chunks
// under the message size limit.
func (n *Notifier) Send(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, chunk := range splitMessage(formatDigest(records), maxMessageLen) {
		if err := n.post(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Classify maps a delivery error to its retry class.
func (n *Notifier) Classify(err error) domain.ErrorKind {
	switch {
	case domain.IsRateLimited(err):
		return domain.KindRateLimited
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

func (n *Notifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitError{}
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

func formatDigest(records []domain.Record) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(":satellite: *Radar digest* (%d)\n", len(records)))
	for _, rec := range records {
		score := 0.0
		if rec.RelevanceScore != nil {
			score = *rec.RelevanceScore
		}
		b.WriteString(fmt.Sprintf("\n*<%s|%s>* (%.2f", rec.URL, rec.Title, score))
		if rec.MatchedCategory != "" {
			b.WriteString(", " + rec.MatchedCategory)
		}
		b.WriteString(")\n")
		b.WriteString(rec.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// statusError reports a non-200 webhook response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("slack: webhook returned status %d", e.code)
}
