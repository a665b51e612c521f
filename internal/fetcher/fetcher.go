// Package fetcher defines the HTTP retrieval contract used by the Gutenberg client.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request describes a single GET.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw result of a fetch. Non-2xx responses are returned with
// their status code rather than as errors.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves documents over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
