package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultTimeout bounds navigation and DOM readiness for a single fetch.
const DefaultTimeout = 20 * time.Second

// Fetcher retrieves the fully rendered HTML for a URL, including content
// produced by JavaScript after load.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchError wraps a navigation or rendering failure with the URL it occurred
// on. The underlying cause stays reachable through Unwrap, so timeouts remain
// visible as context.DeadlineExceeded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ChromeFetcher renders pages in headless Chrome. Each call launches a fresh
// disposable browser context, so no cookies or storage leak between fetches,
// and both contexts are released on every exit path.
type ChromeFetcher struct {
	// UserAgent overrides the browser default when non-empty.
	UserAgent string
	// Timeout bounds one fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// ExecPath points at a specific Chrome binary; empty uses lookup.
	ExecPath string
}

func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if f.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.UserAgent))
	}
	if f.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		// A parsed body is enough; waiting for full network idle stalls on
		// pages with long-polling analytics.
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	return html, nil
}
