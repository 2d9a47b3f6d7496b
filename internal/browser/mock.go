package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MockSession serves pages from an in-memory url to content map instead of a
// real browser. Navigation re-parses the registered content, clicking an
// anchor follows its href, and inline style attributes stand in for computed
// styles. Used by the engine tests.
type MockSession struct {
	pages       map[string]string
	main        *MockPage
	OpenedPages int
	ClosedPages int
}

func NewMockSession(pages map[string]string) *MockSession {
	s := &MockSession{pages: pages}
	s.main = &MockPage{session: s}
	return s
}

// SetPage registers or replaces the content served for url. Pages that were
// already parsed keep their old document until they navigate again.
func (s *MockSession) SetPage(url, content string) {
	s.pages[url] = content
}

func (s *MockSession) MainPage() Page {
	return s.main
}

func (s *MockSession) OpenPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.OpenedPages++
	return &MockPage{session: s}, nil
}

func (s *MockSession) ClosePage(ctx context.Context, p Page) error {
	s.ClosedPages++
	return nil
}

func (s *MockSession) Close() error {
	return nil
}

// MockPage is a single mock browsing tab.
type MockPage struct {
	session *MockSession
	url     string
	doc     *goquery.Document
	// Navigations records every url the page was navigated to, including
	// navigations triggered by clicks.
	Navigations []string
}

func (p *MockPage) Navigate(ctx context.Context, urlStr string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, ok := p.session.pages[urlStr]
	if !ok {
		return fmt.Errorf("no page registered for %s", urlStr)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return err
	}
	p.url = urlStr
	p.doc = doc
	p.Navigations = append(p.Navigations, urlStr)
	return nil
}

func (p *MockPage) URL(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *MockPage) WaitLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	return ctx.Err()
}

func (p *MockPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.doc == nil || p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("timeout waiting for selector %s", selector)
	}
	return nil
}

func (p *MockPage) Query(ctx context.Context, selector string) (Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return nil, nil
	}
	return &mockElement{page: p, sel: sel.First()}, nil
}

func (p *MockPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	var elements []Element
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &mockElement{page: p, sel: s})
	})
	return elements, nil
}

type mockElement struct {
	page *MockPage
	sel  *goquery.Selection
}

func (e *mockElement) Query(ctx context.Context, selector string) (Element, error) {
	sel := e.sel.Find(selector)
	if sel.Length() == 0 {
		return nil, nil
	}
	return &mockElement{page: e.page, sel: sel.First()}, nil
}

func (e *mockElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var elements []Element
	e.sel.Find(selector).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &mockElement{page: e.page, sel: s})
	})
	return elements, nil
}

func (e *mockElement) Text(ctx context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *mockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

// StyleProperty reads the property from the inline style attribute. Absent
// properties fall back to browser-like defaults.
func (e *mockElement) StyleProperty(ctx context.Context, name string) (string, error) {
	if value, ok := e.inlineStyle(name); ok {
		return value, nil
	}
	switch name {
	case "opacity":
		return "1", nil
	case "pointer-events":
		return "auto", nil
	case "display":
		return "block", nil
	}
	return "", nil
}

func (e *mockElement) inlineStyle(name string) (string, bool) {
	style, ok := e.sel.Attr("style")
	if !ok {
		return "", false
	}
	for _, decl := range strings.Split(style, ";") {
		prop, value, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(prop) == name {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func (e *mockElement) Visible(ctx context.Context) (bool, error) {
	if _, hidden := e.sel.Attr("hidden"); hidden {
		return false, nil
	}
	if display, ok := e.inlineStyle("display"); ok && display == "none" {
		return false, nil
	}
	if visibility, ok := e.inlineStyle("visibility"); ok && visibility == "hidden" {
		return false, nil
	}
	return true, nil
}

// Click follows the element's href, if any, on the page owning the element.
// Elements without an href accept the click without any effect.
func (e *mockElement) Click(ctx context.Context) error {
	href, ok := e.sel.Attr("href")
	if !ok || href == "" {
		return nil
	}
	base, err := url.Parse(e.page.url)
	if err != nil {
		return err
	}
	target, err := url.Parse(href)
	if err != nil {
		return err
	}
	return e.page.Navigate(ctx, base.ResolveReference(target).String(), 10*time.Second)
}
