// Package browser defines the automation driver surface the crawler runs
// against. Two implementations exist: a chromedp-backed session driving a
// real browser, and a goquery-backed mock session used in tests.
package browser

import (
	"context"
	"time"
)

// LoadState describes a page load condition that can be awaited.
type LoadState string

const (
	LoadNetworkIdle      LoadState = "networkidle"
	LoadDOMContentLoaded LoadState = "domcontentloaded"
)

// Element is a handle on a located element. Implementations may re-resolve
// the underlying node on every call; callers must not assume a handle stays
// valid across a navigation.
type Element interface {
	// Query returns the first element matching selector scoped under this
	// element, or nil if there is none.
	Query(ctx context.Context, selector string) (Element, error)
	// QueryAll returns all elements matching selector scoped under this
	// element, in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	Text(ctx context.Context) (string, error)
	// Attribute returns the value of the named attribute and whether the
	// attribute is present at all.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// StyleProperty returns the computed value of the named css property.
	StyleProperty(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
}

// Page is a single browsing tab.
type Page interface {
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitLoadState(ctx context.Context, state LoadState, timeout time.Duration) error
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
}

// Session owns a browsing context: a main page plus any additional pages
// sharing its cookies.
type Session interface {
	MainPage() Page
	OpenPage(ctx context.Context) (Page, error)
	ClosePage(ctx context.Context, p Page) error
	Close() error
}

// Sleep pauses for the given duration, returning early if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
