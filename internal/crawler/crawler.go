// Package crawler implements the workflow execution engine: it walks a
// paginated site, extracts configured fields per item and runs per-item
// workflow steps that click into, or open, detail pages. The engine is
// strictly sequential; every driver call is a suspension point and the
// caller cancels between them through the context.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/log"
	"github.com/jfeld/crawlflow/internal/metrics"
)

const (
	defaultWaitTimeout = 10 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
)

// ExtractionResult is one extracted item. Data carries one entry per
// attempted field, nil included. WorkflowPath lists the ids of the workflow
// steps that completed for this item, in execution order. Results are never
// mutated after creation.
type ExtractionResult struct {
	Data           map[string]any `json:"data"`
	SourceURL      string         `json:"source_url"`
	ExtractionTime time.Time      `json:"extraction_time"`
	WorkflowPath   []string       `json:"workflow_path"`
}

// Map flattens the result for output writers that consume generic records.
func (r ExtractionResult) Map() map[string]any {
	return map[string]any{
		"data":            r.Data,
		"source_url":      r.SourceURL,
		"extraction_time": r.ExtractionTime.Format(time.RFC3339),
		"workflow_path":   r.WorkflowPath,
	}
}

// Summary aggregates run statistics.
type Summary struct {
	TotalItems    int `json:"total_items"`
	UniqueSources int `json:"unique_sources"`
	WorkflowUsage int `json:"workflow_usage_count"`
	PagesVisited  int `json:"pages_visited"`
}

// Crawler drives one crawl run against a browser session.
type Crawler struct {
	cfg       *Config
	session   browser.Session
	container *ElementSelection

	maxPages    int
	delay       time.Duration
	waitTimeout time.Duration
	settleDelay time.Duration

	results      []ExtractionResult
	pagesVisited int
}

// Option adjusts run parameters beyond what the configuration carries.
type Option func(*Crawler)

// WithMaxPages overrides the configuration's page bound. Zero means
// unbounded.
func WithMaxPages(n int) Option {
	return func(c *Crawler) { c.maxPages = n }
}

// WithDelay overrides the politeness delay between page advances.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) { c.delay = d }
}

// WithWaitTimeout overrides the bound applied to every navigation and wait.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Crawler) { c.waitTimeout = d }
}

// WithSettleDelay overrides the fixed pause applied after a load condition
// is reported, before content is queried.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Crawler) { c.settleDelay = d }
}

// New validates cfg and prepares a crawler running against session. The
// configuration is copied; later changes by the caller do not affect the
// run. Validation errors are the only errors New returns and they are
// fatal, everything recoverable is handled during Run.
func New(cfg *Config, session browser.Session, opts ...Option) (*Crawler, error) {
	configCopy := *cfg
	c := &Crawler{
		cfg:         &configCopy,
		session:     session,
		maxPages:    configCopy.MaxPages,
		delay:       time.Duration(configCopy.DelayMS) * time.Millisecond,
		waitTimeout: defaultWaitTimeout,
		settleDelay: defaultSettleDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c.container = c.cfg.ItemsContainer()
	return c, nil
}

// Run executes the crawl and returns every result collected, in page-then-
// item order. Apart from a failed initial navigation, errors during the run
// are absorbed at field, step or page granularity; whatever was collected
// up to a stop is always returned.
func (c *Crawler) Run(ctx context.Context) ([]ExtractionResult, error) {
	logger := log.LoggerFromContext(ctx)
	logger.Info(fmt.Sprintf("starting crawl of %s", c.cfg.BaseURL))

	page := c.session.MainPage()
	if err := page.Navigate(ctx, c.cfg.BaseURL, c.waitTimeout); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.cfg.BaseURL, err)
	}
	if err := page.WaitLoadState(ctx, browser.LoadNetworkIdle, c.waitTimeout); err != nil {
		logger.Warn("initial load wait failed", slog.String("err", err.Error()))
	}

	pageNumber := 1
	for {
		if err := ctx.Err(); err != nil {
			return c.results, err
		}
		logger.Info(fmt.Sprintf("processing page %d", pageNumber))

		start := time.Now()
		before := len(c.results)
		c.extractPage(ctx, page)
		c.pagesVisited++
		metrics.PagesTotal.Inc()
		metrics.PageDuration.Observe(time.Since(start).Seconds())
		logger.Info(fmt.Sprintf("extracted %d items from page %d", len(c.results)-before, pageNumber))

		if c.maxPages > 0 && pageNumber >= c.maxPages {
			logger.Info(fmt.Sprintf("reached page limit of %d", c.maxPages))
			break
		}
		if !c.advancePage(ctx, page) {
			logger.Info("no more pages to crawl")
			break
		}
		pageNumber++
	}

	logger.Info(fmt.Sprintf("crawl completed, %d items total", len(c.results)))
	return c.results, ctx.Err()
}

// extractPage processes every item the container selector currently
// matches. Items are addressed by index and re-resolved on every access
// because any workflow step may navigate the page and invalidate handles
// obtained earlier. If the live item set shrinks below the index being
// processed, the remaining items of this page are skipped.
func (c *Crawler) extractPage(ctx context.Context, page browser.Page) {
	logger := log.LoggerFromContext(ctx)
	if c.container == nil {
		logger.Warn("no items container configured, nothing to extract")
		return
	}

	currentURL, err := page.URL(ctx)
	if err != nil {
		logger.Warn("failed to read page url", slog.String("err", err.Error()))
		currentURL = c.cfg.BaseURL
	}
	items, err := page.QueryAll(ctx, c.container.Selector)
	if err != nil {
		logger.Error("items query failed", slog.String("err", err.Error()))
		return
	}
	totalItems := len(items)
	logger.Info(fmt.Sprintf("found %d items to process", totalItems))

	for i := 0; i < totalItems; i++ {
		if ctx.Err() != nil {
			return
		}
		item, err := c.resolveItem(ctx, page, i)
		if err != nil {
			logger.Error("item query failed", slog.Int("item", i+1), slog.String("err", err.Error()))
			return
		}
		if item == nil {
			logger.Warn(fmt.Sprintf("item %d no longer exists, stopping this page", i+1))
			return
		}

		data := c.extractItemData(ctx, item, currentURL)

		var path []string
		if len(c.cfg.Workflows) > 0 {
			workflowData, workflowPath := c.runWorkflows(ctx, page, i)
			for k, v := range workflowData {
				data[k] = v
			}
			path = workflowPath
		}

		c.results = append(c.results, ExtractionResult{
			Data:           data,
			SourceURL:      currentURL,
			ExtractionTime: time.Now(),
			WorkflowPath:   path,
		})
		metrics.ItemsTotal.Inc()
	}
}

// resolveItem re-queries the container matches and returns the idx-th one.
// A nil element with a nil error means the live set has fewer items than
// idx, which callers treat as a defensive bound rather than an error.
func (c *Crawler) resolveItem(ctx context.Context, page browser.Page, idx int) (browser.Element, error) {
	items, err := page.QueryAll(ctx, c.container.Selector)
	if err != nil {
		return nil, err
	}
	if idx >= len(items) {
		return nil, nil
	}
	return items[idx], nil
}

// Summary returns aggregate statistics over everything collected so far.
func (c *Crawler) Summary() Summary {
	sources := map[string]bool{}
	withWorkflows := 0
	for _, r := range c.results {
		sources[r.SourceURL] = true
		if len(r.WorkflowPath) > 0 {
			withWorkflows++
		}
	}
	return Summary{
		TotalItems:    len(c.results),
		UniqueSources: len(sources),
		WorkflowUsage: withWorkflows,
		PagesVisited:  c.pagesVisited,
	}
}
