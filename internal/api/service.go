// Package api implements the Eihwaz REST API using chi.
package api

import (
	"sync"

	"github.com/starford/eihwaz/internal/markdown"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/search"
	"github.com/starford/eihwaz/internal/snapshot"
	"github.com/starford/eihwaz/internal/store"
)

// Service is the single-flight facade in front of the node store. The store
// itself performs unlocked read-modify-write sequences, so every call,
// reads included, is serialized behind one mutex here.
type Service struct {
	mu sync.Mutex
	st *store.Store

	snapshotDir string
	watcher     *snapshot.Watcher // may be nil when the watcher is disabled
}

// NewService wraps st. snapshotDir and watcher configure file exports; the
// watcher may be nil.
func NewService(st *store.Store, snapshotDir string, watcher *snapshot.Watcher) *Service {
	return &Service{st: st, snapshotDir: snapshotDir, watcher: watcher}
}

// TreeNode is a node with its resolved children, for outline responses.
type TreeNode struct {
	*models.Node
	Expanded bool        `json:"expanded"`
	Children []*TreeNode `json:"children"`
}

// Suggestion pairs an extracted wikilink name with the node id it resolves
// to; unresolved names carry an empty id.
type Suggestion struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Tree returns the full outline, roots in stored order, children sorted by
// order index.
func (s *Service) Tree() []*TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtrees("")
}

func (s *Service) subtrees(parentID string) []*TreeNode {
	children := s.st.GetChildren(parentID)
	out := make([]*TreeNode, len(children))
	for i, n := range children {
		t := &TreeNode{Node: n, Expanded: s.st.IsExpanded(n.ID), Children: []*TreeNode{}}
		if n.Type == models.TypeFolder {
			t.Children = s.subtrees(n.ID)
		}
		out[i] = t
	}
	return out
}

// GetNode returns the node for id, or nil.
func (s *Service) GetNode(id string) *models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetNode(id)
}

// Children returns the nodes under parentID ("" for roots).
func (s *Service) Children(parentID string) []*models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetChildren(parentID)
}

// Path returns the nodes from root to id inclusive.
func (s *Service) Path(id string) []*models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetNodePath(id)
}

// CreateNode creates a node.
func (s *Service) CreateNode(p store.CreateParams) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateNode(p)
}

// UpdateNode applies a partial node update.
func (s *Service) UpdateNode(id string, upd store.NodeUpdate) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateNode(id, upd)
}

// DeleteNode cascades a delete.
func (s *Service) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteNode(id)
}

// MoveNode re-parents a node.
func (s *Service) MoveNode(id string, newParentID *string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MoveNode(id, newParentID)
}

// ReorderNode repositions a node among its siblings.
func (s *Service) ReorderNode(id string, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReorderNode(id, newIndex)
}

// DuplicateNode copies a subtree.
func (s *Service) DuplicateNode(id string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DuplicateNode(id)
}

// ToggleActive flips a leaf's active flag.
func (s *Service) ToggleActive(id string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ToggleActive(id)
}

// ToggleExpanded flips a folder's expansion state.
func (s *Service) ToggleExpanded(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.ToggleExpanded(id)
}

// Select sets (or with "" clears) the selection.
func (s *Service) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SelectNode(id)
}

// Selection returns the selected id ("" for none) and its loaded content.
func (s *Service) Selection() (string, *models.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SelectedID(), s.st.CurrentContent()
}

// UpdateContent applies a partial update to the selected leaf's content.
func (s *Service) UpdateContent(upd store.ContentUpdate) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateContent(upd)
}

// GetContent reads a leaf's content by id without touching selection.
func (s *Service) GetContent(id string) (*models.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetContent(id)
}

// Search runs a scored index query.
func (s *Service) Search(query string, limit int) []search.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Search(query, limit)
}

// Suggestions extracts wikilinks and tags from a leaf's markdown and resolves
// link names against the tree. Names that resolve to nothing are returned
// with an empty id; dangling references are tolerated, not errors.
func (s *Service) Suggestions(id string) ([]Suggestion, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.st.GetContent(id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, nil
	}

	ex := markdown.Extract(c.Markdown)
	links := make([]Suggestion, len(ex.LinkNames))
	for i, name := range ex.LinkNames {
		links[i] = Suggestion{Name: name, ID: s.st.ResolveName(name)}
	}
	return links, ex.Tags, nil
}

// Export returns a full snapshot.
func (s *Service) Export() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Export()
}

// Import atomically replaces everything with the snapshot.
func (s *Service) Import(snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Import(snap)
}

// ExportToFile writes a snapshot file into the snapshots directory and
// registers its checksum with the watcher so it is not re-imported.
func (s *Service) ExportToFile(path string) error {
	s.mu.Lock()
	snap, err := s.st.Export()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	sum, err := snapshot.WriteFile(path, snap)
	if err != nil {
		return err
	}
	if s.watcher != nil {
		s.watcher.MarkWritten(sum)
	}
	return nil
}

// SnapshotDir returns the configured snapshots directory.
func (s *Service) SnapshotDir() string {
	return s.snapshotDir
}
