// Package markdown extracts wikilinks and inline tags from leaf content.
package markdown

import (
	"regexp"
	"strings"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Extraction holds the references found in a markdown body.
type Extraction struct {
	LinkNames []string
	Tags      []string
}

// Extract returns deduplicated wikilink target names and inline #tags from
// body. Link names are node names, not ids; resolving them against the tree
// is the caller's job, and names that resolve to nothing are simply skipped
// there (dangling references are tolerated).
func Extract(body string) Extraction {
	return Extraction{
		LinkNames: extractLinks(body),
		Tags:      extractTags(body),
	}
}

// extractLinks returns deduplicated wikilink targets, normalising aliases.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		raw := m[1]
		// Handle aliases: [[Target|Alias]] keeps Target.
		target := raw
		if i := strings.Index(raw, "|"); i >= 0 {
			target = raw[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects inline #tags in order of first occurrence.
func extractTags(body string) []string {
	matches := tagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
