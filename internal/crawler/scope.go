package crawler

import (
	"net/url"
	"strings"
)

// fieldAppliesTo reports whether a field selection authored on fieldPageURL
// is expected to resolve on currentURL. Fields authored on a deeper path
// (a detail page) are excluded while iterating a shallower listing page;
// fields authored at a broader scope still apply to more specific pages on
// the same host. Unparseable input resolves to true so that a malformed
// recorded url degrades to an attempted (and possibly null) field rather
// than a silently dropped one.
func fieldAppliesTo(fieldPageURL, currentURL string) bool {
	if fieldPageURL == "" {
		return true
	}
	fieldU, err := url.Parse(fieldPageURL)
	if err != nil {
		return true
	}
	currentU, err := url.Parse(currentURL)
	if err != nil {
		return true
	}
	if fieldU.Host != currentU.Host {
		return false
	}
	fieldPath := strings.TrimSuffix(fieldU.Path, "/")
	currentPath := strings.TrimSuffix(currentU.Path, "/")
	if fieldPath == currentPath {
		return true
	}
	if pathDepth(fieldPath) > pathDepth(currentPath) {
		return false
	}
	return strings.HasPrefix(currentPath, fieldPath)
}

func pathDepth(p string) int {
	count := 0
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			count++
		}
	}
	return count
}
