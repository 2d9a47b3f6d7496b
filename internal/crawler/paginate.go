package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/log"
	"github.com/jfeld/crawlflow/internal/utils"
)

// advancePage locates the pagination control, verifies it and clicks it.
// It returns true when the crawl moved to the next page. Every other
// outcome, no candidates, no content match, a non-clickable control or a
// failed click, is a normal terminal condition and returns false.
func (c *Crawler) advancePage(ctx context.Context, page browser.Page) bool {
	if c.cfg.Pagination == nil {
		return false
	}
	logger := log.LoggerFromContext(ctx)

	candidates, err := page.QueryAll(ctx, c.cfg.Pagination.Selector)
	if err != nil {
		logger.Error("pagination query failed", slog.String("err", err.Error()))
		return false
	}
	if len(candidates) == 0 {
		logger.Info(fmt.Sprintf("no pagination element matches %s, assuming last page", c.cfg.Pagination.Selector))
		return false
	}

	control := c.matchPaginationContent(ctx, candidates)
	if control == nil {
		return false
	}
	if !isClickable(ctx, control) {
		logger.Info("pagination element is not clickable, assuming last page")
		return false
	}

	if text, err := control.Text(ctx); err == nil {
		logger.Info(fmt.Sprintf("advancing via pagination element '%s'", utils.ShortenString(strings.TrimSpace(text), 40)))
	}
	if err := control.Click(ctx); err != nil {
		logger.Error("pagination click failed", slog.String("err", err.Error()))
		return false
	}
	if err := page.WaitLoadState(ctx, browser.LoadNetworkIdle, c.waitTimeout); err != nil {
		logger.Error("wait after pagination failed", slog.String("err", err.Error()))
		return false
	}
	// Politeness throttle between page advances.
	_ = browser.Sleep(ctx, c.delay)
	return true
}

// matchPaginationContent picks the control among candidates. When the
// configuration recorded the control's text at authoring time, candidates
// are scanned in document order and the first whose normalized text equals,
// contains or is contained by the recorded text wins; no match means the
// control disappeared or changed and pagination ends. Without recorded text
// the first candidate is used unconditionally.
func (c *Crawler) matchPaginationContent(ctx context.Context, candidates []browser.Element) browser.Element {
	logger := log.LoggerFromContext(ctx)

	want := strings.ToLower(strings.TrimSpace(c.cfg.Pagination.OriginalContent))
	if want == "" {
		return candidates[0]
	}

	closest := ""
	closestDist := -1
	for _, cand := range candidates {
		text, err := cand.Text(ctx)
		if err != nil {
			continue
		}
		got := strings.ToLower(strings.TrimSpace(text))
		if got == "" {
			// an empty text would trivially satisfy the contained-by
			// predicate and hijack the match
			continue
		}
		if got == want || strings.Contains(got, want) || strings.Contains(want, got) {
			return cand
		}
		if d := levenshtein.ComputeDistance(got, want); closestDist < 0 || d < closestDist {
			closest, closestDist = got, d
		}
	}
	logger.Info(fmt.Sprintf("no pagination element matches content '%s' (closest candidate: '%s', distance %d), assuming last page",
		want, utils.ShortenString(closest, 40), closestDist))
	return nil
}
