// Package store owns the canonical in-memory representation of the node tree
// and coordinates every mutation with the persistence port.
//
// Concurrency model: the store performs read-modify-write sequences with no
// internal locking. Operations must be issued one at a time; the surrounding
// application (api.Service, mcpserver) serializes calls.
package store

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/eihwaz/internal/bus"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/persist"
	"github.com/starford/eihwaz/internal/search"
)

// Store holds all nodes, the ordered root list, UI expansion state, the
// current selection, and the derived search index.
type Store struct {
	port      persist.Port
	events    *bus.Bus
	index     *search.Index
	templates map[string]models.Template

	nodes      map[string]*models.Node
	rootNodes  []string
	expanded   map[string]struct{}
	selectedID string
	current    *models.Content
}

// New constructs a store bound to a persistence port and event bus.
// Templates may be nil. The store is empty until Load is called.
func New(port persist.Port, events *bus.Bus, templates map[string]models.Template) *Store {
	return &Store{
		port:      port,
		events:    events,
		index:     search.New(),
		templates: templates,
		nodes:     make(map[string]*models.Node),
		expanded:  make(map[string]struct{}),
	}
}

// Load fetches all nodes from the port, rebuilds the root list and search
// index, and announces the change. A port failure is fatal to initialization
// and is returned to the caller untouched.
func (s *Store) Load() error {
	all, err := s.port.GetAllNodes()
	if err != nil {
		return err
	}
	s.nodes = make(map[string]*models.Node, len(all))
	for _, n := range all {
		s.nodes[n.ID] = n
	}
	s.rebuildRoots()
	s.rebuildIndex()
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return nil
}

// GetNode returns the node for id, or nil when unknown.
func (s *Store) GetNode(id string) *models.Node {
	return s.nodes[id]
}

// NodeCount returns the number of nodes held in memory.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// ContentCount returns the number of content records currently persisted.
// It is derived from the port's export, not tracked in memory.
func (s *Store) ContentCount() (int, error) {
	snap, err := s.port.ExportAll()
	if err != nil {
		return 0, err
	}
	return len(snap.Contents), nil
}

// GetChildren returns the nodes whose parent is parentID, sorted ascending by
// order index. An empty parentID selects the root-level nodes. Linear scan
// over all nodes; fine at the hundreds-to-low-thousands scale this targets.
func (s *Store) GetChildren(parentID string) []*models.Node {
	var out []*models.Node
	for _, n := range s.nodes {
		switch {
		case parentID == "" && n.ParentID == nil:
			out = append(out, n)
		case parentID != "" && n.ParentID != nil && *n.ParentID == parentID:
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// GetNodePath walks parent links from id up to a root and returns the nodes
// ordered root first, id last. Unknown ids yield an empty path. The visited
// set terminates the walk if corrupted records loaded from disk link a node
// back into its own ancestry.
func (s *Store) GetNodePath(id string) []*models.Node {
	var rev []*models.Node
	seen := make(map[string]struct{})
	for cur := s.nodes[id]; cur != nil; {
		if _, ok := seen[cur.ID]; ok {
			break
		}
		seen[cur.ID] = struct{}{}
		rev = append(rev, cur)
		if cur.ParentID == nil {
			break
		}
		cur = s.nodes[*cur.ParentID]
	}
	// Reverse to root-first order.
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// IsDescendant reports whether candidateID equals ancestorID or lies below it
// in the tree. Used to guard MoveNode against cycles.
func (s *Store) IsDescendant(candidateID, ancestorID string) bool {
	if candidateID == ancestorID {
		return true
	}
	seen := make(map[string]struct{})
	cur := s.nodes[candidateID]
	for cur != nil && cur.ParentID != nil {
		if *cur.ParentID == ancestorID {
			return true
		}
		if _, ok := seen[cur.ID]; ok {
			break
		}
		seen[cur.ID] = struct{}{}
		cur = s.nodes[*cur.ParentID]
	}
	return false
}

// RootNodes returns the root-level nodes in their stored order.
func (s *Store) RootNodes() []*models.Node {
	out := make([]*models.Node, 0, len(s.rootNodes))
	for _, id := range s.rootNodes {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// SelectedID returns the id of the selected node, or "" when none.
func (s *Store) SelectedID() string {
	return s.selectedID
}

// CurrentContent returns the content loaded for the selected leaf, or nil.
func (s *Store) CurrentContent() *models.Content {
	return s.current
}

// IsExpanded reports whether the folder id is expanded.
func (s *Store) IsExpanded(id string) bool {
	_, ok := s.expanded[id]
	return ok
}

// ToggleExpanded flips the expansion state of a folder. Expansion is UI
// state: held in memory only, never persisted. No-op for unknown ids and
// leaves.
func (s *Store) ToggleExpanded(id string) {
	n := s.nodes[id]
	if n == nil || n.Type != models.TypeFolder {
		return
	}
	if _, ok := s.expanded[id]; ok {
		delete(s.expanded, id)
	} else {
		s.expanded[id] = struct{}{}
	}
	s.events.Publish(bus.Event{Kind: bus.ExpansionChanged, ID: id})
}

// Search delegates to the derived index.
func (s *Store) Search(query string, limit int) []search.Result {
	return s.index.Search(query, limit)
}

// GetContent reads the stored content for a leaf id without touching the
// selection. Unknown ids and folders yield (nil, nil).
func (s *Store) GetContent(id string) (*models.Content, error) {
	n := s.nodes[id]
	if n == nil || n.Type != models.TypeLeaf {
		return nil, nil
	}
	return s.port.GetContent(id)
}

// ResolveName returns the id of a node whose name equals name
// case-insensitively, or "" when nothing matches. Exact name matches always
// outrank prefix and substring hits in the index, so the top result decides.
func (s *Store) ResolveName(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return ""
	}
	results := s.index.Search(trimmed, 1)
	if len(results) == 0 || !strings.EqualFold(results[0].Name, trimmed) {
		return ""
	}
	return results[0].ID
}

// pathNames returns the display names from root to id inclusive.
func (s *Store) pathNames(id string) []string {
	path := s.GetNodePath(id)
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.Name
	}
	return names
}

// rebuildRoots recomputes the ordered root id list from the node map.
func (s *Store) rebuildRoots() {
	roots := s.GetChildren("")
	s.rootNodes = make([]string, len(roots))
	for i, n := range roots {
		s.rootNodes[i] = n.ID
	}
}

// rebuildIndex rebuilds the search index wholesale. Nodes are fed in
// root-order depth-first traversal so equal-score search results rank the
// same across rebuilds; nodes unreachable from a root (orphaned parents in an
// imported snapshot) are appended afterwards sorted by id.
func (s *Store) rebuildIndex() {
	ordered := make([]*models.Node, 0, len(s.nodes))
	seen := make(map[string]struct{}, len(s.nodes))

	var walk func(parentID string)
	walk = func(parentID string) {
		for _, n := range s.GetChildren(parentID) {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			ordered = append(ordered, n)
			if n.Type == models.TypeFolder {
				walk(n.ID)
			}
		}
	}
	walk("")

	var orphans []*models.Node
	for id, n := range s.nodes {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, n)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	ordered = append(ordered, orphans...)

	s.index.Rebuild(ordered, s.pathNames)
}

// siblingCount counts the nodes currently under parentID. A node moved
// within its own parent is counted too: the moved node lands past the end
// and its old slot keeps its gap, matching the documented move semantics.
func (s *Store) siblingCount(parentID *string) int {
	key := ""
	if parentID != nil {
		key = *parentID
	}
	return len(s.GetChildren(key))
}

func now() time.Time {
	return time.Now().UTC()
}
