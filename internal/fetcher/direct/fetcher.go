// Package direct implements scraper.Fetcher with one authenticated HTTP
// GET per player, using the Colly collector.
package direct

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches player profiles over plain HTTP.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	c := colly.NewCollector(colly.Async(false))
	// Single fixed API host; robots rules do not apply to the backend.
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}, nil
}

// Fetch executes a single bearer-authenticated GET for the player's
// profile. A non-2xx upstream status is reported through the response,
// not as an error, so the caller can classify it.
func (f *Fetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	var (
		result   scraper.FetchResponse
		fetchErr error
	)
	result.Player = request.Player
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnRequest(func(r *colly.Request) {
		if f.cfg.Token != "" {
			r.Headers.Set("Authorization", "Bearer "+f.cfg.Token)
		}
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		result = scraper.FetchResponse{
			Player:     request.Player,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result = scraper.FetchResponse{
				Player:     request.Player,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, f.profileURL(request.Player), &result, &fetchErr); err != nil {
		return scraper.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	target string,
	result *scraper.FetchResponse,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("profile fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("profile request failed: %w", *fetchErr)
		}
		// Visit reports non-2xx statuses as errors; a captured status
		// means the response reached us and the caller classifies it.
		if err != nil && result.StatusCode == 0 {
			return fmt.Errorf("profile visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) profileURL(player string) string {
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/user/profile/" + url.PathEscape(player)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
