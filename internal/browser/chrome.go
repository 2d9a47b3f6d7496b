package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

const evalPollInterval = 100 * time.Millisecond

// SessionOptions configure a new chrome session.
type SessionOptions struct {
	UserAgent string
	Headless  bool
}

// ChromeSession drives a real browser via the chrome devtools protocol. All
// pages opened from one session share the same browser profile and cookies.
type ChromeSession struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	main        *ChromePage
}

// NewChromeSession launches a browser and opens the main page.
func NewChromeSession(so SessionOptions) (*ChromeSession, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
		chromedp.Flag("headless", so.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if so.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(so.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	return &ChromeSession{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		main:        &ChromePage{ctx: tabCtx, cancel: cancelTab},
	}, nil
}

func (s *ChromeSession) MainPage() Page {
	return s.main
}

// OpenPage opens a new tab in the same browser, sharing the session cookies.
func (s *ChromeSession) OpenPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(s.main.ctx)
	return &ChromePage{ctx: tabCtx, cancel: cancelTab}, nil
}

func (s *ChromeSession) ClosePage(ctx context.Context, p Page) error {
	cp, ok := p.(*ChromePage)
	if !ok {
		return errors.New("page does not belong to this session")
	}
	if cp == s.main {
		return errors.New("refusing to close the main page")
	}
	cp.cancel()
	return nil
}

func (s *ChromeSession) Close() error {
	s.main.cancel()
	s.cancelAlloc()
	return nil
}

// ChromePage is a single browser tab.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// eval runs a javascript expression on the page and unmarshals the result
// into out.
func (p *ChromePage) eval(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate(expr, out))
}

func (p *ChromePage) Query(ctx context.Context, selector string) (Element, error) {
	expr := fmt.Sprintf("document.querySelector(%s)", jsString(selector))
	var found bool
	if err := p.eval(ctx, fmt.Sprintf("(%s) !== null", expr), &found); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &chromeElement{page: p, expr: expr}, nil
}

func (p *ChromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	base := fmt.Sprintf("document.querySelectorAll(%s)", jsString(selector))
	var count int
	if err := p.eval(ctx, base+".length", &count); err != nil {
		return nil, err
	}
	elements := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &chromeElement{page: p, expr: fmt.Sprintf("%s[%d]", base, i)})
	}
	return elements, nil
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var urlStr string
	if err := chromedp.Run(p.ctx, chromedp.Location(&urlStr)); err != nil {
		return "", err
	}
	return urlStr, nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(navCtx, chromedp.Navigate(url))
}

// WaitLoadState polls the document ready state until the requested condition
// holds. The devtools protocol has no direct networkidle signal, so
// networkidle is approximated by a complete ready state plus a short grace
// period.
func (p *ChromePage) WaitLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	cond := "document.readyState === 'complete'"
	if state == LoadDOMContentLoaded {
		cond = "document.readyState !== 'loading'"
	}
	if err := p.poll(ctx, cond, timeout); err != nil {
		return fmt.Errorf("timeout waiting for load state %s: %w", state, err)
	}
	if state == LoadNetworkIdle {
		return Sleep(ctx, 200*time.Millisecond)
	}
	return nil
}

func (p *ChromePage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	cond := fmt.Sprintf("document.querySelector(%s) !== null", jsString(selector))
	if err := p.poll(ctx, cond, timeout); err != nil {
		return fmt.Errorf("timeout waiting for selector %s: %w", selector, err)
	}
	return nil
}

func (p *ChromePage) poll(ctx context.Context, cond string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := p.eval(ctx, cond, &ok); err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		if err := Sleep(ctx, evalPollInterval); err != nil {
			return err
		}
	}
}

// chromeElement addresses an element by a javascript expression instead of a
// retained devtools node. The expression is re-evaluated on every call, so a
// handle built from (selector, index) stays usable after the page mutated,
// as long as an element still matches.
type chromeElement struct {
	page *ChromePage
	expr string
}

func (e *chromeElement) Query(ctx context.Context, selector string) (Element, error) {
	expr := fmt.Sprintf("((e) => e ? e.querySelector(%s) : null)(%s)", jsString(selector), e.expr)
	var found bool
	if err := e.page.eval(ctx, fmt.Sprintf("(%s) !== null", expr), &found); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &chromeElement{page: e.page, expr: expr}, nil
}

func (e *chromeElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	base := fmt.Sprintf("((e) => e ? e.querySelectorAll(%s) : [])(%s)", jsString(selector), e.expr)
	var count int
	if err := e.page.eval(ctx, base+".length", &count); err != nil {
		return nil, err
	}
	elements := make([]Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &chromeElement{page: e.page, expr: fmt.Sprintf("%s[%d]", base, i)})
	}
	return elements, nil
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text *string
	expr := fmt.Sprintf("((e) => e ? e.textContent : null)(%s)", e.expr)
	if err := e.page.eval(ctx, expr, &text); err != nil {
		return "", err
	}
	if text == nil {
		return "", errors.New("element no longer exists")
	}
	return *text, nil
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value *string
	expr := fmt.Sprintf("((e) => e ? e.getAttribute(%s) : null)(%s)", jsString(name), e.expr)
	if err := e.page.eval(ctx, expr, &value); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *chromeElement) StyleProperty(ctx context.Context, name string) (string, error) {
	var value string
	expr := fmt.Sprintf("((e) => e ? getComputedStyle(e).getPropertyValue(%s) : '')(%s)", jsString(name), e.expr)
	if err := e.page.eval(ctx, expr, &value); err != nil {
		return "", err
	}
	return value, nil
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	var visible bool
	expr := fmt.Sprintf(`((e) => {
		if (!e) return false;
		if (e.offsetParent === null && getComputedStyle(e).position !== 'fixed') return false;
		const r = e.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	})(%s)`, e.expr)
	if err := e.page.eval(ctx, expr, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	var clicked bool
	expr := fmt.Sprintf("((e) => { if (!e) return false; e.click(); return true })(%s)", e.expr)
	if err := e.page.eval(ctx, expr, &clicked); err != nil {
		return err
	}
	if !clicked {
		return errors.New("element no longer exists")
	}
	return nil
}

// jsString quotes s as a javascript string literal.
func jsString(s string) string {
	return strconv.Quote(s)
}
