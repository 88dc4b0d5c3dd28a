// Package fetch performs the HTTP JSON requests steps need.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/stepflow/pkg/log"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

var (
	// ErrUnexpectedStatus is returned when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrEmptyResult is returned by callers when a successful response holds no usable data.
	ErrEmptyResult = errors.New("empty result")
)

// Fetcher retrieves a JSON document and decodes it into out.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string, out any) error
}

// StatusError carries the status and the start of the body of a failed response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s (status %d): %s", e.URL, ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

type HTTPFetcher struct {
	client  *http.Client
	headers map[string]string
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*HTTPFetcher)

func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = timeout
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithHeader sets a header sent with every request.
func WithHeader(key, value string) Option {
	return func(f *HTTPFetcher) {
		f.headers[key] = value
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{},
		headers: map[string]string{"Accept": "application/json"},
		timeout: defaultTimeout,
		logger:  log.WithModule("fetch"),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchJSON issues a GET request bounded by the fetcher timeout and decodes the body.
func (f *HTTPFetcher) FetchJSON(ctx context.Context, url string, out any) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	f.logger.DebugContext(ctx, "Fetching JSON", "url", url)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return nil
}
