// Package search provides the derived in-memory index used for name and path
// lookup. It is never the source of truth: the node store rebuilds it
// wholesale whenever names or structure change.
package search

import (
	"sort"
	"strings"

	"github.com/starford/eihwaz/internal/models"
)

// Entry is one indexed node. Name and Path keep the display casing handed
// back in results; name is the lowercased form matched against queries.
// ancestors holds the lowercased path without the node's own name; the path
// bonus is scored against it so an exact name hit is not also a path hit on
// itself.
type Entry struct {
	ID   string
	Name string
	Type models.NodeType
	Path string

	name      string
	ancestors string
}

// Result is one scored search hit.
type Result struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  models.NodeType `json:"type"`
	Path  string          `json:"path"`
	Score int             `json:"score"`
}

// Scoring tiers. Path matches add on top of whichever name tier applied.
const (
	scoreExact    = 100
	scorePrefix   = 50
	scoreContains = 20
	scorePath     = 10
)

// Index holds entries in insertion order so that equal-score results rank
// deterministically across rebuilds.
type Index struct {
	entries []Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Rebuild replaces all entries. pathNames must return the node names from
// root to the node inclusive; the display path joins them with " > ".
// Callers are expected to feed nodes in a stable order (root-order DFS).
func (ix *Index) Rebuild(nodes []*models.Node, pathNames func(id string) []string) {
	entries := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		names := pathNames(n.ID)
		entries = append(entries, Entry{
			ID:        n.ID,
			Name:      n.Name,
			Type:      n.Type,
			Path:      strings.Join(names, " > "),
			name:      strings.ToLower(n.Name),
			ancestors: strings.ToLower(strings.Join(names[:max(len(names)-1, 0)], " > ")),
		})
	}
	ix.entries = entries
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Search scores every entry against the trimmed, lowercased query and returns
// up to limit hits sorted by descending score. An empty query yields no
// results; callers substitute their own "recent items" view for that case.
// Ties keep index order (stable sort).
func (ix *Index) Search(query string, limit int) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}

	var out []Result
	for _, e := range ix.entries {
		score := 0
		switch {
		case e.name == query:
			score = scoreExact
		case strings.HasPrefix(e.name, query):
			score = scorePrefix
		case strings.Contains(e.name, query):
			score = scoreContains
		}
		if e.ancestors != "" && strings.Contains(e.ancestors, query) {
			score += scorePath
		}
		if score == 0 {
			continue
		}
		out = append(out, Result{ID: e.ID, Name: e.Name, Type: e.Type, Path: e.Path, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
