package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jfeld/crawlflow/internal/browser"
)

func testCrawler(t *testing.T, cfg *Config, session browser.Session) *Crawler {
	t.Helper()
	c, err := New(cfg, session, WithDelay(0), WithSettleDelay(0), WithWaitTimeout(time.Second))
	if err != nil {
		t.Fatalf("unexpected error creating crawler: %v", err)
	}
	return c
}

func TestRunPaginatedCrawl(t *testing.T) {
	pages := map[string]string{}
	for i := 1; i <= 3; i++ {
		body := ""
		for j := 1; j <= 5; j++ {
			body += fmt.Sprintf(`<div class="row"><span class="t">Item %d-%d</span></div>`, i, j)
		}
		if i < 3 {
			body += fmt.Sprintf(`<a class="next" href="/page/%d">Next</a>`, i+1)
		}
		pages[fmt.Sprintf("https://site.test/page/%d", i)] = fmt.Sprintf("<html><body>%s</body></html>", body)
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "paginated",
		BaseURL: "https://site.test/page/1",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
			{Name: "price", Selector: ".price", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
		},
		Pagination: &ElementSelection{
			Name:            "next",
			Selector:        ".next",
			ElementType:     ElementTypePagination,
			OriginalContent: "Next",
		},
		MaxPages: 10,
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 15 {
		t.Fatalf("expected 15 results, got %d", len(results))
	}
	if got := results[0].Data["title"]; got != "Item 1-1" {
		t.Errorf("expected first title 'Item 1-1', got %v", got)
	}
	if got := results[14].Data["title"]; got != "Item 3-5" {
		t.Errorf("expected last title 'Item 3-5', got %v", got)
	}
	// one entry per attempted field, nil included
	if v, ok := results[0].Data["price"]; !ok || v != nil {
		t.Errorf("expected price entry to be present and nil, got %v (present %t)", v, ok)
	}
	if results[0].SourceURL != "https://site.test/page/1" {
		t.Errorf("expected source url of page 1, got %s", results[0].SourceURL)
	}
	if results[14].SourceURL != "https://site.test/page/3" {
		t.Errorf("expected source url of page 3, got %s", results[14].SourceURL)
	}

	summary := c.Summary()
	if summary.PagesVisited != 3 {
		t.Errorf("expected 3 pages visited, got %d", summary.PagesVisited)
	}
	if summary.TotalItems != 15 {
		t.Errorf("expected 15 total items, got %d", summary.TotalItems)
	}
	if summary.UniqueSources != 3 {
		t.Errorf("expected 3 unique sources, got %d", summary.UniqueSources)
	}
	if summary.WorkflowUsage != 0 {
		t.Errorf("expected no workflow usage, got %d", summary.WorkflowUsage)
	}
}

func TestRunStopsAtMaxPages(t *testing.T) {
	pages := map[string]string{}
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprintf("https://site.test/page/%d", i)] = fmt.Sprintf(
			`<html><body><div class="row"><span class="t">Item %d</span></div><a class="next" href="/page/%d">Next</a></body></html>`, i, i+1)
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "bounded",
		BaseURL: "https://site.test/page/1",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
		},
		Pagination: &ElementSelection{Name: "next", Selector: ".next", ElementType: ElementTypePagination, OriginalContent: "Next"},
		MaxPages:   2,
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if c.Summary().PagesVisited != 2 {
		t.Errorf("expected exactly 2 pages visited, got %d", c.Summary().PagesVisited)
	}
}

func TestClickWorkflow(t *testing.T) {
	pages := map[string]string{
		"https://site.test/list": `<html><body>
			<div class="row"><span class="t">First</span><a class="more" href="/detail/1">More</a></div>
			<div class="row"><span class="t">Second</span><a class="more" href="/detail/2">More</a></div>
		</body></html>`,
		"https://site.test/detail/1": `<html><body><p id="desc">Details of first</p></body></html>`,
		"https://site.test/detail/2": `<html><body><p id="desc">Details of second</p></body></html>`,
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "click",
		BaseURL: "https://site.test/list",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
			{Name: "desc", Selector: "#desc", ElementType: ElementTypeDataField, ExtractionType: ExtractText, PageURL: "https://site.test/detail/1"},
		},
		Workflows: []WorkflowStep{
			{StepID: "open-detail", Action: ActionClick, TargetSelector: ".more", ExtractFields: []string{"desc"}, WaitCondition: WaitNetworkIdle},
		},
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, want := range []string{"Details of first", "Details of second"} {
		if got := results[i].Data["desc"]; got != want {
			t.Errorf("expected desc %q for item %d, got %v", want, i, got)
		}
		if len(results[i].WorkflowPath) != 1 || results[i].WorkflowPath[0] != "open-detail" {
			t.Errorf("expected workflow path [open-detail] for item %d, got %v", i, results[i].WorkflowPath)
		}
		if results[i].SourceURL != "https://site.test/list" {
			t.Errorf("expected listing source url for item %d, got %s", i, results[i].SourceURL)
		}
	}
	// the detail-only field must not be attempted during base extraction of
	// the second item after the first item's detour
	if got := results[0].Data["title"]; got != "First" {
		t.Errorf("expected base title 'First', got %v", got)
	}
	if c.Summary().WorkflowUsage != 2 {
		t.Errorf("expected workflow usage 2, got %d", c.Summary().WorkflowUsage)
	}

	// the main page must be back on the listing after every detour
	main := session.MainPage().(*browser.MockPage)
	if url, _ := main.URL(context.Background()); url != "https://site.test/list" {
		t.Errorf("expected main page to end on the listing, got %s", url)
	}
}

func TestClickWorkflowFailureIsolation(t *testing.T) {
	pages := map[string]string{
		"https://site.test/list": `<html><body>
			<div class="row"><span class="t">First</span><a class="more" href="/detail/1">More</a></div>
			<div class="row"><span class="t">Second</span><a class="more" href="/detail/2">More</a></div>
		</body></html>`,
		"https://site.test/detail/1": `<html><body><p id="desc">Details of first</p></body></html>`,
		"https://site.test/detail/2": `<html><body><p id="desc">Details of second</p></body></html>`,
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "click-timeout",
		BaseURL: "https://site.test/list",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
			{Name: "desc", Selector: "#desc", ElementType: ElementTypeDataField, ExtractionType: ExtractText, PageURL: "https://site.test/detail/1"},
		},
		Workflows: []WorkflowStep{
			{StepID: "open-detail", Action: ActionClick, TargetSelector: ".more", ExtractFields: []string{"desc"}, WaitCondition: WaitForSelector, WaitSelector: ".never"},
		},
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both items despite the failing step, got %d", len(results))
	}
	for i, want := range []string{"First", "Second"} {
		if got := results[i].Data["title"]; got != want {
			t.Errorf("expected base title %q for item %d, got %v", want, i, got)
		}
		if _, ok := results[i].Data["desc"]; ok {
			t.Errorf("expected no desc entry for item %d since the step failed before extraction, got %v", i, results[i].Data["desc"])
		}
		if len(results[i].WorkflowPath) != 0 {
			t.Errorf("expected empty workflow path for item %d, got %v", i, results[i].WorkflowPath)
		}
	}

	// return navigation must still have happened after the failed wait
	main := session.MainPage().(*browser.MockPage)
	if url, _ := main.URL(context.Background()); url != "https://site.test/list" {
		t.Errorf("expected main page to be restored to the listing, got %s", url)
	}
}

func TestClickWorkflowSkipsDisabledTarget(t *testing.T) {
	pages := map[string]string{
		"https://site.test/list": `<html><body>
			<div class="row"><span class="t">First</span><a class="more disabled" href="/detail/1">More</a></div>
		</body></html>`,
		"https://site.test/detail/1": `<html><body><p id="desc">Details</p></body></html>`,
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "click-disabled",
		BaseURL: "https://site.test/list",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
		},
		Workflows: []WorkflowStep{
			{StepID: "open-detail", Action: ActionClick, TargetSelector: ".more", ExtractFields: []string{"title"}, WaitCondition: WaitNetworkIdle},
		},
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0].WorkflowPath) != 0 {
		t.Errorf("expected the step to be skipped, got workflow path %v", results[0].WorkflowPath)
	}
	main := session.MainPage().(*browser.MockPage)
	if len(main.Navigations) != 1 {
		t.Errorf("expected no navigation besides the initial one, got %v", main.Navigations)
	}
}

func TestOpenNewTabWorkflow(t *testing.T) {
	pages := map[string]string{
		"https://site.test/list": `<html><body>
			<div class="row"><span class="t">First</span><a class="more" href="/detail/1">More</a></div>
			<div class="row"><span class="t">Second</span><a class="more" href="/detail/2">More</a></div>
		</body></html>`,
		// root-relative hrefs are appended to the current page url
		"https://site.test/list/detail/1": `<html><body><p id="desc">Tab first</p></body></html>`,
		"https://site.test/list/detail/2": `<html><body><p id="desc">Tab second</p></body></html>`,
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "new-tab",
		BaseURL: "https://site.test/list",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
			{Name: "desc", Selector: "#desc", ElementType: ElementTypeDataField, ExtractionType: ExtractText, PageURL: "https://site.test/list/detail/1"},
		},
		Workflows: []WorkflowStep{
			{StepID: "tab-detail", Action: ActionOpenNewTab, TargetSelector: ".more", ExtractFields: []string{"desc"}, WaitCondition: WaitNetworkIdle},
		},
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, want := range []string{"Tab first", "Tab second"} {
		if got := results[i].Data["desc"]; got != want {
			t.Errorf("expected desc %q for item %d, got %v", want, i, got)
		}
	}
	if session.OpenedPages != 2 {
		t.Errorf("expected 2 opened pages, got %d", session.OpenedPages)
	}
	if session.ClosedPages != 2 {
		t.Errorf("expected every opened page to be closed, got %d", session.ClosedPages)
	}
	// the main page never navigates during new tab steps
	main := session.MainPage().(*browser.MockPage)
	if len(main.Navigations) != 1 {
		t.Errorf("expected only the initial navigation on the main page, got %v", main.Navigations)
	}
}

func TestExtractWorkflowScopedToItem(t *testing.T) {
	pages := map[string]string{
		"https://site.test/list": `<html><body>
			<div class="row"><span class="t">First</span><span class="extra">A</span></div>
			<div class="row"><span class="t">Second</span><span class="extra">B</span></div>
		</body></html>`,
	}
	session := browser.NewMockSession(pages)

	cfg := &Config{
		Name:    "extract",
		BaseURL: "https://site.test/list",
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
			{Name: "extra", Selector: ".extra", ElementType: ElementTypeDataField, ExtractionType: ExtractText, PageURL: "https://site.test/list/detail"},
		},
		Workflows: []WorkflowStep{
			{StepID: "grab-extra", Action: ActionExtract, TargetSelector: ".row", ExtractFields: []string{"extra"}},
		},
	}
	c := testCrawler(t, cfg, session)

	results, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// scoped under the item, so each item sees its own value
	if got := results[0].Data["extra"]; got != "A" {
		t.Errorf("expected extra 'A' for the first item, got %v", got)
	}
	if got := results[1].Data["extra"]; got != "B" {
		t.Errorf("expected extra 'B' for the second item, got %v", got)
	}
}

func TestExtractPageStopsWhenItemSetShrinks(t *testing.T) {
	base := "https://site.test/list"
	fiveRows := `<html><body>
		<div class="row"><span class="t">1</span><a class="more" href="https://site.test/detail">More</a></div>
		<div class="row"><span class="t">2</span><a class="more" href="https://site.test/detail">More</a></div>
		<div class="row"><span class="t">3</span><a class="more" href="https://site.test/detail">More</a></div>
		<div class="row"><span class="t">4</span><a class="more" href="https://site.test/detail">More</a></div>
		<div class="row"><span class="t">5</span><a class="more" href="https://site.test/detail">More</a></div>
	</body></html>`
	twoRows := `<html><body>
		<div class="row"><span class="t">1</span></div>
		<div class="row"><span class="t">2</span></div>
	</body></html>`
	session := browser.NewMockSession(map[string]string{
		base:                       fiveRows,
		"https://site.test/detail": `<html><body><p id="desc">Detail</p></body></html>`,
	})

	cfg := &Config{
		Name:    "shrinking",
		BaseURL: base,
		Selections: []ElementSelection{
			{Name: "item", Selector: ".row", ElementType: ElementTypeItemsContainer},
			{Name: "title", Selector: ".t", ElementType: ElementTypeDataField, ExtractionType: ExtractText},
		},
		Workflows: []WorkflowStep{
			{StepID: "detour", Action: ActionClick, TargetSelector: ".more", WaitCondition: WaitNetworkIdle},
		},
	}
	c := testCrawler(t, cfg, session)

	ctx := context.Background()
	page := session.MainPage()
	if err := page.Navigate(ctx, base, time.Second); err != nil {
		t.Fatalf("unexpected navigation error: %v", err)
	}
	// the next navigation of the listing serves a shrunken item set
	session.SetPage(base, twoRows)

	c.extractPage(ctx, page)

	if len(c.results) != 2 {
		t.Fatalf("expected processing to stop after the surviving items, got %d results", len(c.results))
	}
}
