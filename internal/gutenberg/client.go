// Package gutenberg fetches book metadata from Gutendex and plain-text
// editions from Project Gutenberg.
package gutenberg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/fetcher"
	"github.com/classic-hero/classichero/internal/metrics"
)

const (
	// DefaultMetadataBaseURL is the public Gutendex endpoint.
	DefaultMetadataBaseURL = "https://gutendex.com"
	// DefaultTextBaseURL is the Project Gutenberg mirror serving plain text.
	DefaultTextBaseURL = "https://www.gutenberg.org"

	utf8BOM = "\uFEFF"
)

var (
	// ErrInvalidMetadata is returned when Gutendex answers without a book id.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrTextUnavailable is returned when no text URL template yields a document.
	ErrTextUnavailable = errors.New("book text unavailable")
)

// textTemplates are tried in order; each receives the book id.
var textTemplates = []func(id int) string{
	func(id int) string { return fmt.Sprintf("/files/%d/%d-0.txt", id, id) },
	func(id int) string { return fmt.Sprintf("/cache/epub/%d/pg%d.txt", id, id) },
	func(id int) string { return fmt.Sprintf("/ebooks/%d.txt.utf-8", id) },
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config locates the upstream services. Limiter is optional.
type Config struct {
	MetadataBaseURL string
	TextBaseURL     string
	Limiter         Limiter
}

// Client retrieves metadata and texts with retries.
type Client struct {
	fetcher fetcher.Fetcher
	cfg     Config
	retry   RetryPolicy
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewClient builds a Client. Empty base URLs fall back to the public services.
func NewClient(f fetcher.Fetcher, cfg Config, retry RetryPolicy, logger *zap.Logger) *Client {
	if cfg.MetadataBaseURL == "" {
		cfg.MetadataBaseURL = DefaultMetadataBaseURL
	}
	if cfg.TextBaseURL == "" {
		cfg.TextBaseURL = DefaultTextBaseURL
	}
	cfg.MetadataBaseURL = strings.TrimRight(cfg.MetadataBaseURL, "/")
	cfg.TextBaseURL = strings.TrimRight(cfg.TextBaseURL, "/")
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher: f,
		cfg:     cfg,
		retry:   retry,
		logger:  logger,
		sleep:   sleepWithContext,
	}
}

// Metadata fetches the Gutendex document for a book.
func (c *Client) Metadata(ctx context.Context, id int) (book.Metadata, error) {
	target := fmt.Sprintf("%s/books/%d", c.cfg.MetadataBaseURL, id)
	body, err := c.get(ctx, target)
	if err != nil {
		return book.Metadata{}, fmt.Errorf("fetch metadata for book %d: %w", id, err)
	}

	var meta book.Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return book.Metadata{}, fmt.Errorf("%w: book %d: %v", ErrInvalidMetadata, id, err)
	}
	if meta.ID == 0 {
		return book.Metadata{}, fmt.Errorf("%w: book %d: response has no id", ErrInvalidMetadata, id)
	}
	return meta, nil
}

type searchPage struct {
	Results []book.Metadata `json:"results"`
}

// SearchByAuthor returns up to limit English books matching the author query.
func (c *Client) SearchByAuthor(ctx context.Context, author string, limit int) ([]book.Metadata, error) {
	query := url.Values{}
	query.Set("search", author)
	query.Set("languages", "en")
	target := c.cfg.MetadataBaseURL + "/books?" + query.Encode()

	body, err := c.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("search books by %q: %w", author, err)
	}
	var page searchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	if limit > 0 && len(page.Results) > limit {
		page.Results = page.Results[:limit]
	}
	return page.Results, nil
}

// DownloadText tries each plain-text URL template in order and returns the
// first document found, decoded as UTF-8 or ISO-8859-1.
func (c *Client) DownloadText(ctx context.Context, id int) ([]byte, string, error) {
	var lastErr error
	for _, tmpl := range textTemplates {
		target := c.cfg.TextBaseURL + tmpl(id)
		body, err := c.get(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", fmt.Errorf("download book %d: %w", id, ctx.Err())
			}
			c.logger.Debug("text template failed", zap.Int("book_id", id), zap.String("url", target), zap.Error(err))
			lastErr = err
			continue
		}
		text, err := Decode(body)
		if err != nil {
			lastErr = err
			continue
		}
		return body, text, nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: book %d: %v", ErrTextUnavailable, id, lastErr)
	}
	return nil, "", fmt.Errorf("%w: book %d", ErrTextUnavailable, id)
}

// Decode returns body as UTF-8 text, transcoding from ISO-8859-1 when the
// bytes are not valid UTF-8.
func Decode(body []byte) (string, error) {
	if utf8.Valid(body) {
		return strings.TrimPrefix(string(body), utf8BOM), nil
	}
	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), body)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(decoded), nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := c.fetchOnce(ctx, target)
		if err == nil {
			metrics.ObserveFetch(target, metrics.FetchSuccess, len(body))
			return body, nil
		}
		if !c.retry.ShouldRetry(err, attempt+1) {
			metrics.ObserveFetch(target, metrics.FetchError, 0)
			return nil, err
		}

		delay := c.retry.Backoff(attempt)
		metrics.ObserveFetch(target, metrics.FetchRetry, 0)
		metrics.ObserveRetryDelay(target, delay)
		c.logger.Warn("fetch failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.retry.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("backoff for %s: %w", target, err)
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
	}
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{
		URL:     target,
		Headers: http.Header{"Accept": {"application/json, text/plain;q=0.9, */*;q=0.1"}},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
