// Package telegram sends record digests to a Telegram chat via the bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

const (
	// ChannelName is the channel identity recorded on sent records.
	ChannelName = "telegram"

	// maxMessageLen is the Telegram API message size limit.
	maxMessageLen = 4096

	defaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 15 * time.Second
)

// Config holds bot credentials and delivery parameters.
type Config struct {
	// BotToken authenticates the bot (required).
	BotToken string

	// ChatID is the destination chat (required).
	ChatID string

	// ScoreFloor is the channel's relevance floor.
	ScoreFloor float64

	// APIBase overrides the API endpoint, for tests.
	APIBase string
}

// Notifier sends digests to a Telegram chat.
type Notifier struct {
	cfg    Config
	client *http.Client
}

var _ driven.Notifier = (*Notifier)(nil)

// New creates a Telegram notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram: %w", domain.ErrNotifierUnavailable)
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
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

// Send formats the records as one digest and delivers it, split into
// API-sized chunks.
func (n *Notifier) Send(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	digest := FormatDigest(records)
	for _, chunk := range splitMessage(digest, maxMessageLen) {
		if err := n.sendMessage(ctx, chunk); err != nil {
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

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.cfg.APIBase, n.cfg.BotToken)
	form := url.Values{}
	form.Set("chat_id", n.cfg.ChatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitError{ResetAt: retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// FormatDigest renders records as a Markdown digest, highest relevance
// first (the store already orders them).
func FormatDigest(records []domain.Record) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("*Radar digest* (%d)\n", len(records)))
	for _, rec := range records {
		score := 0.0
		if rec.RelevanceScore != nil {
			score = *rec.RelevanceScore
		}
		b.WriteString(fmt.Sprintf("\n*%s* (%.2f", rec.Title, score))
		if rec.MatchedCategory != "" {
			b.WriteString(", " + rec.MatchedCategory)
		}
		b.WriteString(")\n")
		b.WriteString(rec.Summary)
		b.WriteString("\n")
		b.WriteString(rec.URL)
		b.WriteString("\n")
	}
	return b.String()
}

// splitMessage breaks text into chunks under the size limit, preferring
// line boundaries.
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

func retryAfter(resp *http.Response) time.Time {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if d, err := time.ParseDuration(ra + "s"); err == nil {
			return time.Now().Add(d)
		}
	}
	return time.Time{}
}

// statusError reports a non-200 API response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("telegram: API returned status %d", e.code)
}
