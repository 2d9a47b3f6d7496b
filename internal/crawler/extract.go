package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/log"
	"github.com/jfeld/crawlflow/internal/metrics"
)

// extractItemData reads every data_field selection scoped under item and
// returns the field map. Fields authored on a different page are skipped
// without being queried. A missing sub-element or a per-field driver error
// resolves the field to nil; the map always carries one entry per attempted
// field.
func (c *Crawler) extractItemData(ctx context.Context, item browser.Element, currentURL string) map[string]any {
	logger := log.LoggerFromContext(ctx)
	data := map[string]any{}

	for i := range c.cfg.Selections {
		sel := &c.cfg.Selections[i]
		if sel.ElementType != ElementTypeDataField {
			continue
		}
		if sel.PageURL != "" && !fieldAppliesTo(sel.PageURL, currentURL) {
			logger.Debug(fmt.Sprintf("skipping field %s, authored on %s", sel.Name, sel.PageURL))
			continue
		}

		el, err := item.Query(ctx, sel.Selector)
		if err != nil {
			logger.Warn("field query failed", slog.String("field", sel.Name), slog.String("err", err.Error()))
			metrics.FieldErrorsTotal.Inc()
			data[sel.Name] = nil
			continue
		}
		if el == nil {
			data[sel.Name] = nil
			continue
		}
		value, err := c.extractValue(ctx, el, sel)
		if err != nil {
			logger.Warn("field extraction failed", slog.String("field", sel.Name), slog.String("err", err.Error()))
			metrics.FieldErrorsTotal.Inc()
			data[sel.Name] = nil
			continue
		}
		data[sel.Name] = value
	}
	return data
}

// extractValue reads one value from el according to the selection's
// extraction type. Absent attributes yield nil, not an empty string, so a
// consumer can tell "no href" apart from `href=""`.
func (c *Crawler) extractValue(ctx context.Context, el browser.Element, sel *ElementSelection) (any, error) {
	switch sel.ExtractionType {
	case ExtractHref:
		return attrOrNil(ctx, el, "href")
	case ExtractSrc:
		return attrOrNil(ctx, el, "src")
	case ExtractAttribute:
		if sel.AttributeName != "" {
			return attrOrNil(ctx, el, sel.AttributeName)
		}
		return el.Text(ctx)
	default:
		return el.Text(ctx)
	}
}

func attrOrNil(ctx context.Context, el browser.Element, name string) (any, error) {
	v, present, err := el.Attribute(ctx, name)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return v, nil
}
