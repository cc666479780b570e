package connectors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// Fetcher performs polite outbound HTTP: one token bucket per host keyed by
// the configured minimum inter-request delay, a crawler User-Agent, and
// forced UTF-8 decoding of the response body. BOE still serves ISO-8859-1
// on some layouts.
type Fetcher struct {
	client    *http.Client
	userAgent string
	delay     time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates a polite fetcher. delay is the per-host minimum
// inter-request delay; timeout bounds each request.
func NewFetcher(userAgent string, delay, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		delay:     delay,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.delay), 1)
		f.limiters[host] = l
	}
	return l
}

// Get fetches a URL and returns the body converted to UTF-8. Transport and
// HTTP failures surface as *FetchError. Bodies that still contain NUL
// bytes after conversion are rejected.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if err := f.limiter(parsed.Hostname()).Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("charset detection: %w", err)}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if bytes.ContainsRune(body, 0) {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("body contains NUL bytes after conversion")}
	}

	return body, nil
}
