package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/log"
	"github.com/jfeld/crawlflow/internal/metrics"
)

type stepStatus string

const (
	stepOK      stepStatus = "ok"
	stepSkipped stepStatus = "skipped"
	stepFailed  stepStatus = "failed"
)

// querier is the common query surface of a page and an element. Workflow
// field extraction runs against either, depending on the step action.
type querier interface {
	Query(ctx context.Context, selector string) (browser.Element, error)
}

// runWorkflows executes the configured steps for the item at idx, in
// configuration order, and returns the merged field map plus the ids of the
// steps that completed their action. No step failure aborts the item; a
// failed or skipped step simply contributes no fields.
func (c *Crawler) runWorkflows(ctx context.Context, page browser.Page, idx int) (map[string]any, []string) {
	merged := map[string]any{}
	var path []string

	for i := range c.cfg.Workflows {
		step := &c.cfg.Workflows[i]
		var fields map[string]any
		var status stepStatus
		switch step.Action {
		case ActionClick:
			fields, status = c.runClickStep(ctx, page, idx, step)
		case ActionExtract:
			fields, status = c.runExtractStep(ctx, page, idx, step)
		case ActionOpenNewTab:
			fields, status = c.runNewTabStep(ctx, page, idx, step)
		default:
			continue
		}
		metrics.WorkflowStepsTotal.WithLabelValues(string(step.Action), string(status)).Inc()
		if status == stepOK {
			path = append(path, step.StepID)
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return merged, path
}

// runClickStep clicks the step target inside the item, waits for the step's
// load condition and extracts the requested fields from the page the click
// led to. Whatever happens after the click, the main page is navigated back
// to where it was before the next step runs.
func (c *Crawler) runClickStep(ctx context.Context, page browser.Page, idx int, step *WorkflowStep) (map[string]any, stepStatus) {
	logger := log.LoggerFromContext(ctx)

	item, err := c.resolveItem(ctx, page, idx)
	if err != nil || item == nil {
		return nil, stepSkipped
	}
	target, err := item.Query(ctx, step.TargetSelector)
	if err != nil || target == nil {
		logger.Warn("click target not found", slog.String("step", step.StepID), slog.String("selector", step.TargetSelector))
		return nil, stepSkipped
	}
	if !isClickable(ctx, target) {
		logger.Warn("click target not clickable", slog.String("step", step.StepID), slog.String("selector", step.TargetSelector))
		return nil, stepSkipped
	}

	originalURL, err := page.URL(ctx)
	if err != nil {
		logger.Error("failed to read current url", slog.String("step", step.StepID), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	defer c.returnTo(ctx, page, originalURL)

	logger.Debug(fmt.Sprintf("clicking %s for item %d", step.TargetSelector, idx+1))
	if err := target.Click(ctx); err != nil {
		logger.Error("click failed", slog.String("step", step.StepID), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	if err := c.awaitStep(ctx, page, step); err != nil {
		logger.Error("wait after click failed", slog.String("step", step.StepID), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	// Browsers report loaded slightly before content is queryable.
	_ = browser.Sleep(ctx, c.settleDelay)

	// The item handle is stale after navigation; fields resolve against the
	// whole page the click led to.
	return c.extractStepFields(ctx, page, step.ExtractFields), stepOK
}

// runExtractStep reads the requested fields scoped under the item itself.
// No navigation happens.
func (c *Crawler) runExtractStep(ctx context.Context, page browser.Page, idx int, step *WorkflowStep) (map[string]any, stepStatus) {
	item, err := c.resolveItem(ctx, page, idx)
	if err != nil || item == nil {
		return nil, stepSkipped
	}
	return c.extractStepFields(ctx, item, step.ExtractFields), stepOK
}

// runNewTabStep follows the item's link in a second page of the same
// session, extracts the requested fields there and closes the page again.
// The main page is never navigated, so no return trip is needed.
func (c *Crawler) runNewTabStep(ctx context.Context, page browser.Page, idx int, step *WorkflowStep) (map[string]any, stepStatus) {
	logger := log.LoggerFromContext(ctx)

	item, err := c.resolveItem(ctx, page, idx)
	if err != nil || item == nil {
		return nil, stepSkipped
	}
	link, err := item.Query(ctx, step.TargetSelector)
	if err != nil || link == nil {
		logger.Warn("link not found", slog.String("step", step.StepID), slog.String("selector", step.TargetSelector))
		return nil, stepSkipped
	}
	href, present, err := link.Attribute(ctx, "href")
	if err != nil || !present || href == "" {
		logger.Warn("link has no href", slog.String("step", step.StepID), slog.String("selector", step.TargetSelector))
		return nil, stepSkipped
	}
	if strings.HasPrefix(href, "/") {
		if current, err := page.URL(ctx); err == nil {
			href = joinURL(current, href)
		}
	}

	tab, err := c.session.OpenPage(ctx)
	if err != nil {
		logger.Error("failed to open page", slog.String("step", step.StepID), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	defer func() {
		if err := c.session.ClosePage(ctx, tab); err != nil {
			logger.Warn("failed to close page", slog.String("step", step.StepID), slog.String("err", err.Error()))
		}
	}()

	if err := tab.Navigate(ctx, href, c.waitTimeout); err != nil {
		logger.Error("navigation failed", slog.String("step", step.StepID), slog.String("url", href), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	if err := tab.WaitLoadState(ctx, browser.LoadNetworkIdle, c.waitTimeout); err != nil {
		logger.Error("wait after navigation failed", slog.String("step", step.StepID), slog.String("err", err.Error()))
		return nil, stepFailed
	}
	_ = browser.Sleep(ctx, c.settleDelay)

	return c.extractStepFields(ctx, tab, step.ExtractFields), stepOK
}

// extractStepFields resolves each requested field name to its configured
// selection and reads it from scope. A name without a configured selection,
// a missing element and a per-field error all resolve to nil.
func (c *Crawler) extractStepFields(ctx context.Context, scope querier, names []string) map[string]any {
	logger := log.LoggerFromContext(ctx)
	data := map[string]any{}

	for _, name := range names {
		sel := c.cfg.FindSelection(name)
		if sel == nil {
			logger.Warn("no selection configured for workflow field", slog.String("field", name))
			data[name] = nil
			continue
		}
		el, err := scope.Query(ctx, sel.Selector)
		if err != nil {
			logger.Warn("field query failed", slog.String("field", name), slog.String("err", err.Error()))
			metrics.FieldErrorsTotal.Inc()
			data[name] = nil
			continue
		}
		if el == nil {
			data[name] = nil
			continue
		}
		value, err := c.extractValue(ctx, el, sel)
		if err != nil {
			logger.Warn("field extraction failed", slog.String("field", name), slog.String("err", err.Error()))
			metrics.FieldErrorsTotal.Inc()
			data[name] = nil
			continue
		}
		data[name] = value
	}
	return data
}

// awaitStep waits for the step's configured load condition with the
// crawler's wait timeout.
func (c *Crawler) awaitStep(ctx context.Context, page browser.Page, step *WorkflowStep) error {
	if step.WaitCondition == WaitForSelector && step.WaitSelector != "" {
		return page.WaitSelector(ctx, step.WaitSelector, c.waitTimeout)
	}
	state := browser.LoadNetworkIdle
	if step.WaitCondition == WaitDOMContentLoaded {
		state = browser.LoadDOMContentLoaded
	}
	return page.WaitLoadState(ctx, state, c.waitTimeout)
}

// returnTo brings the main page back to originalURL. This is best-effort
// cleanup; a failure is logged but never escalated so the next item still
// gets its chance.
func (c *Crawler) returnTo(ctx context.Context, page browser.Page, originalURL string) {
	logger := log.LoggerFromContext(ctx)
	if err := page.Navigate(ctx, originalURL, c.waitTimeout); err != nil {
		logger.Error("failed to navigate back", slog.String("url", originalURL), slog.String("err", err.Error()))
		return
	}
	if err := page.WaitLoadState(ctx, browser.LoadNetworkIdle, c.waitTimeout); err != nil {
		logger.Error("wait after return navigation failed", slog.String("err", err.Error()))
	}
}

// joinURL appends a root-relative href to the current page url without
// producing a double slash.
func joinURL(base, rootRelative string) string {
	if strings.HasSuffix(base, "/") {
		return base + strings.TrimPrefix(rootRelative, "/")
	}
	return base + rootRelative
}
