package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jfeld/crawlflow/internal/browser"
	"github.com/jfeld/crawlflow/internal/log"
)

// Class substrings that mark a control as disabled without removing it from
// the DOM.
var disabledClassMarkers = []string{
	"disabled",
	"btn-disabled",
	"inactive",
	"not-clickable",
	"btn-inactive",
}

const minClickableOpacity = 0.1

// isClickable reports whether el can be safely activated. The checks
// short-circuit in order: disabled attribute, aria-disabled, disabling class
// substrings, visibility, pointer-events, opacity. Any driver error makes the
// element not clickable.
func isClickable(ctx context.Context, el browser.Element) bool {
	logger := log.LoggerFromContext(ctx)

	if _, present, err := el.Attribute(ctx, "disabled"); err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	} else if present {
		return false
	}

	if v, present, err := el.Attribute(ctx, "aria-disabled"); err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	} else if present && v == "true" {
		return false
	}

	if class, present, err := el.Attribute(ctx, "class"); err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	} else if present {
		lower := strings.ToLower(class)
		for _, marker := range disabledClassMarkers {
			if strings.Contains(lower, marker) {
				return false
			}
		}
	}

	visible, err := el.Visible(ctx)
	if err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	}
	if !visible {
		return false
	}

	pe, err := el.StyleProperty(ctx, "pointer-events")
	if err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	}
	if pe == "none" {
		return false
	}

	op, err := el.StyleProperty(ctx, "opacity")
	if err != nil {
		logger.Warn("clickability check failed", slog.String("err", err.Error()))
		return false
	}
	opacity, err := strconv.ParseFloat(strings.TrimSpace(op), 64)
	if err != nil {
		logger.Warn("clickability check failed", slog.String("err", fmt.Sprintf("cannot parse opacity %q", op)))
		return false
	}
	if opacity < minClickableOpacity {
		return false
	}

	return true
}
