package imgsource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher performs the two kinds of outbound requests a refresh makes.
type Fetcher interface {
	Search(ctx context.Context) ([]byte, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type FetcherConfig struct {
	SearchURL string
	Timeout   time.Duration
	Retries   int
	UserAgent string
	// MaxBytes caps a single response body; 0 disables the cap.
	MaxBytes int64
}

type HTTPFetcher struct {
	client    *resty.Client
	searchURL string
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	// longer bodies fail with resty.ErrResponseBodyTooLarge while being read
	if cfg.MaxBytes > 0 {
		client.SetResponseBodyLimit(int(cfg.MaxBytes))
	}

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &HTTPFetcher{
		client:    client,
		searchURL: cfg.SearchURL,
	}
}

func (f *HTTPFetcher) Search(ctx context.Context) ([]byte, error) {
	return f.get(ctx, f.searchURL)
}

func (f *HTTPFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url)
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	slog.Debug("imgsource: Sending request", "url", url)

	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), url)
	}

	body := resp.Body()

	slog.Debug("imgsource: Response received", "url", url, "status", resp.StatusCode(), "size", len(body), "time", resp.Time())

	return body, nil
}
