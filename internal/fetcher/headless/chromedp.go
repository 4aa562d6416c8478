// Package headless implements scraper.Fetcher through a shared headless
// Chrome session. Instead of calling the backend directly it navigates
// the UCP profile page and intercepts the profile XHR the page issues,
// matched to the player by its URL fragment.
package headless

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// authTokenKey is the localStorage slot the UCP frontend reads its
// bearer token from.
const authTokenKey = "libertymp_ucp_auth_token_v2"

// Config controls the behavior of the headless fetcher.
type Config struct {
	UCPBaseURL        string
	Token             string
	UserAgent         string
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Fetcher implements scraper.Fetcher using chromedp and headless Chrome.
// Each Fetch opens one tab and always closes it, on success and failure
// alike; tab parallelism is bounded by MaxParallel.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by chromedp.
func New(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.UCPBaseURL) == "" {
		return nil, fmt.Errorf("ucp base url is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch opens a tab on the player's UCP profile page and returns the
// body of the intercepted profile response.
func (f *Fetcher) Fetch(ctx context.Context, request scraper.FetchRequest) (scraper.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return scraper.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Honor the caller's deadline as well as our own.
	stop := propagateCancel(ctx, taskCancel)
	defer stop()

	watch := newProfileWatch(request.Player)
	chromedp.ListenTarget(taskCtx, watch.captureEvent)

	start := time.Now()
	if err := chromedp.Run(taskCtx,
		f.sessionSetupAction(),
		chromedp.Navigate(f.profilePageURL(request.Player)),
	); err != nil {
		return scraper.FetchResponse{}, fmt.Errorf("navigate profile page: %w", err)
	}

	requestID, status, err := watch.wait(taskCtx)
	if err != nil {
		return scraper.FetchResponse{}, err
	}

	var body []byte
	if err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		data, bodyErr := network.GetResponseBody(requestID).Do(cdpCtx)
		if bodyErr != nil {
			return fmt.Errorf("get response body: %w", bodyErr)
		}
		body = data
		return nil
	})); err != nil {
		return scraper.FetchResponse{}, err
	}

	return scraper.FetchResponse{
		Player:     request.Player,
		StatusCode: status,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// sessionSetupAction enables network interception, injects the bearer
// token both as a request header and into the localStorage slot the UCP
// frontend expects, and applies the user-agent override.
func (f *Fetcher) sessionSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(cdpCtx context.Context) error {
		if err := network.Enable().Do(cdpCtx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(cdpCtx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if f.cfg.Token != "" {
			headers := network.Headers{"Authorization": "Bearer " + f.cfg.Token}
			if err := network.SetExtraHTTPHeaders(headers).Do(cdpCtx); err != nil {
				return fmt.Errorf("set auth header: %w", err)
			}
			script := fmt.Sprintf("window.localStorage.setItem(%q, %q)", authTokenKey, f.cfg.Token)
			if err := chromedp.Evaluate(script, nil).Do(cdpCtx); err != nil {
				return fmt.Errorf("seed auth token: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) profilePageURL(player string) string {
	return strings.TrimRight(f.cfg.UCPBaseURL, "/") + "/profile/" + player
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func propagateCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// profileWatch correlates network events in the shared session to one
// player's profile request.
type profileWatch struct {
	mu        sync.Mutex
	fragment  string
	requestID network.RequestID
	status    int
	done      chan struct{}
}

func newProfileWatch(player string) *profileWatch {
	return &profileWatch{
		fragment: "/user/profile/" + player,
		done:     make(chan struct{}),
	}
}

func (w *profileWatch) captureEvent(ev any) {
	switch event := ev.(type) {
	case *network.EventResponseReceived:
		if event.Response == nil || !strings.Contains(event.Response.URL, w.fragment) {
			return
		}
		w.mu.Lock()
		w.requestID = event.RequestID
		w.status = int(event.Response.Status)
		w.mu.Unlock()
	case *network.EventLoadingFinished:
		w.mu.Lock()
		matched := w.requestID != "" && event.RequestID == w.requestID
		w.mu.Unlock()
		if matched {
			select {
			case <-w.done:
			default:
				close(w.done)
			}
		}
	}
}

// wait blocks until the profile response body is fully loaded or the
// context finishes.
func (w *profileWatch) wait(ctx context.Context) (network.RequestID, int, error) {
	select {
	case <-ctx.Done():
		return "", 0, fmt.Errorf("profile response wait canceled: %w", ctx.Err())
	case <-w.done:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestID, w.status, nil
}
