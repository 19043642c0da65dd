package store

import (
	"github.com/google/uuid"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/bus"
	"github.com/starford/eihwaz/internal/models"
)

// defaultLeafIcon is used when neither the caller nor a template supplies one.
const defaultLeafIcon = "📄"

// CreateParams describes a node to create.
type CreateParams struct {
	Name     string
	Type     models.NodeType
	ParentID *string
	Template string // optional template name for leaf content seeding
	Icon     string // optional icon override
	Active   bool
}

// NodeUpdate is a partial node mutation; nil fields are left unchanged.
type NodeUpdate struct {
	Name   *string
	Active *bool
}

// ContentUpdate is a partial content mutation; nil fields are left unchanged.
type ContentUpdate struct {
	Icon     *string
	Markdown *string
	Fields   *[]models.Field
	Tags     *[]string
	Links    *[]string
}

// CreateNode creates a node at the end of its sibling group, persisting the
// node (and, for leaves, a default content record) before updating memory.
// An unknown parent fails with ErrNotFound; a leaf parent reduces to
// placement beside that leaf, the same policy MoveNode applies.
func (s *Store) CreateNode(p CreateParams) (*models.Node, error) {
	if p.ParentID != nil {
		parent := s.nodes[*p.ParentID]
		if parent == nil {
			return nil, apperr.ErrNotFound
		}
		if parent.Type == models.TypeLeaf {
			p.ParentID = parent.ParentID
		}
	}

	ts := now()
	n := &models.Node{
		ID:         uuid.NewString(),
		ParentID:   p.ParentID,
		Type:       p.Type,
		Name:       p.Name,
		OrderIndex: s.siblingCount(p.ParentID),
		Active:     p.Active && p.Type == models.TypeLeaf,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if err := s.port.SaveNode(n); err != nil {
		return nil, err
	}

	if n.Type == models.TypeLeaf {
		c := s.seedContent(n.ID, p)
		if err := s.port.SaveContent(c); err != nil {
			return nil, err
		}
	}

	s.nodes[n.ID] = n
	if n.IsRoot() {
		s.rootNodes = append(s.rootNodes, n.ID)
	}
	s.rebuildIndex()
	s.events.Publish(bus.Event{Kind: bus.NodeCreated, Node: n})
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return n, nil
}

// seedContent builds the initial content for a new leaf: empty fields, tags
// and links, icon from the explicit override, then the template, then the
// generic fallback; fields optionally seeded from the template.
func (s *Store) seedContent(nodeID string, p CreateParams) *models.Content {
	c := &models.Content{
		NodeID:    nodeID,
		Icon:      defaultLeafIcon,
		Fields:    []models.Field{},
		Tags:      []string{},
		Links:     []string{},
		UpdatedAt: now(),
	}
	if tpl, ok := s.templates[p.Template]; ok {
		if tpl.Icon != "" {
			c.Icon = tpl.Icon
		}
		c.Fields = append(c.Fields, tpl.Fields...)
	}
	if p.Icon != "" {
		c.Icon = p.Icon
	}
	return c
}

// UpdateNode merges upd into the node, persists, and updates memory. Unknown
// ids are a benign no-op returning (nil, nil): callers treat that as nothing
// to update. The search index is rebuilt only when the name changed.
func (s *Store) UpdateNode(id string, upd NodeUpdate) (*models.Node, error) {
	cur := s.nodes[id]
	if cur == nil {
		return nil, nil
	}

	n := cur.Clone()
	nameChanged := false
	if upd.Name != nil && *upd.Name != n.Name {
		n.Name = *upd.Name
		nameChanged = true
	}
	if upd.Active != nil {
		n.Active = *upd.Active
	}
	n.UpdatedAt = now()

	if err := s.port.SaveNode(n); err != nil {
		return nil, err
	}
	s.nodes[id] = n

	if nameChanged {
		s.rebuildIndex()
	}
	s.events.Publish(bus.Event{Kind: bus.NodeUpdated, Node: n})
	if nameChanged {
		s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	}
	return n, nil
}

// DeleteNode removes a node and all descendants depth-first, children before
// the node itself, cascading each leaf's content. Unknown ids are a no-op.
//
// A port failure mid-cascade aborts and propagates: memory may then be ahead
// of durable storage for the completed steps, and callers should reload.
func (s *Store) DeleteNode(id string) error {
	n := s.nodes[id]
	if n == nil {
		return nil
	}
	if err := s.deleteRecursive(n); err != nil {
		return err
	}
	s.rebuildIndex()
	s.events.Publish(bus.Event{Kind: bus.NodeDeleted, ID: id})
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return nil
}

func (s *Store) deleteRecursive(n *models.Node) error {
	for _, child := range s.GetChildren(n.ID) {
		if err := s.deleteRecursive(child); err != nil {
			return err
		}
	}
	if err := s.port.DeleteNodeAndContent(n.ID); err != nil {
		return err
	}
	delete(s.nodes, n.ID)
	if n.IsRoot() {
		s.removeRoot(n.ID)
	}
	if s.selectedID == n.ID {
		s.selectedID = ""
		s.current = nil
		s.events.Publish(bus.Event{Kind: bus.SelectionChanged, ID: ""})
	}
	return nil
}

// MoveNode re-parents a node, appending it at the end of the target sibling
// group. Moving a node into itself or one of its descendants fails with
// ErrCycle and changes nothing. Moving onto a leaf reduces to placement
// beside that leaf. The source sibling group keeps its order index gap; a
// later ReorderNode renumbers the group.
func (s *Store) MoveNode(id string, newParentID *string) (*models.Node, error) {
	cur := s.nodes[id]
	if cur == nil {
		return nil, nil
	}

	if newParentID != nil {
		target := s.nodes[*newParentID]
		if target == nil {
			return nil, nil
		}
		if target.Type == models.TypeLeaf {
			newParentID = target.ParentID
		}
	}
	if newParentID != nil && s.IsDescendant(*newParentID, id) {
		return nil, apperr.ErrCycle
	}

	n := cur.Clone()
	n.ParentID = newParentID
	n.OrderIndex = s.siblingCount(newParentID)
	n.UpdatedAt = now()

	if err := s.port.SaveNode(n); err != nil {
		return nil, err
	}

	wasRoot := cur.IsRoot()
	s.nodes[id] = n
	if wasRoot && !n.IsRoot() {
		s.removeRoot(id)
	} else if !wasRoot && n.IsRoot() {
		s.rootNodes = append(s.rootNodes, id)
		s.rebuildRoots()
	}

	s.rebuildIndex()
	s.events.Publish(bus.Event{Kind: bus.NodeMoved, Node: n})
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return n, nil
}

// ReorderNode repositions a node within its current sibling group and
// renumbers the whole group to a contiguous 0..n-1 sequence, persisting only
// the siblings whose index actually changed. Out-of-range target indexes and
// unknown ids are a no-op.
func (s *Store) ReorderNode(id string, newIndex int) error {
	n := s.nodes[id]
	if n == nil {
		return nil
	}

	parentKey := ""
	if n.ParentID != nil {
		parentKey = *n.ParentID
	}
	group := s.GetChildren(parentKey)
	if newIndex < 0 || newIndex >= len(group) {
		return nil
	}

	pos := -1
	for i, sib := range group {
		if sib.ID == id {
			pos = i
			break
		}
	}
	if pos == -1 {
		return nil
	}

	// Even a same-position reorder renumbers the group: this is what restores
	// a contiguous 0..n-1 sequence after moves left gaps behind.

	reordered := make([]*models.Node, 0, len(group))
	reordered = append(reordered, group[:pos]...)
	reordered = append(reordered, group[pos+1:]...)
	reordered = append(reordered[:newIndex], append([]*models.Node{group[pos]}, reordered[newIndex:]...)...)

	for i, sib := range reordered {
		if sib.OrderIndex == i {
			continue
		}
		upd := sib.Clone()
		upd.OrderIndex = i
		upd.UpdatedAt = now()
		if err := s.port.SaveNode(upd); err != nil {
			return err
		}
		s.nodes[upd.ID] = upd
	}

	if parentKey == "" {
		s.rebuildRoots()
	}
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return nil
}

// DuplicateNode copies a node as "<name> (Copy)" at the end of its sibling
// group, content verbatim for leaves, recursing over children so the whole
// subtree is reproduced under the duplicate. Returns the top-level copy.
func (s *Store) DuplicateNode(id string) (*models.Node, error) {
	src := s.nodes[id]
	if src == nil {
		return nil, nil
	}
	dup, err := s.duplicateSubtree(src, src.ParentID, src.Name+" (Copy)")
	if err != nil {
		return nil, err
	}
	s.rebuildIndex()
	s.events.Publish(bus.Event{Kind: bus.NodeCreated, Node: dup})
	s.events.Publish(bus.Event{Kind: bus.NodesChanged})
	return dup, nil
}

func (s *Store) duplicateSubtree(src *models.Node, parentID *string, name string) (*models.Node, error) {
	ts := now()
	n := &models.Node{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Type:       src.Type,
		Name:       name,
		OrderIndex: s.siblingCount(parentID),
		Active:     src.Active,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if err := s.port.SaveNode(n); err != nil {
		return nil, err
	}

	if src.Type == models.TypeLeaf {
		c, err := s.port.GetContent(src.ID)
		if err != nil {
			return nil, err
		}
		cp := c.Clone()
		cp.NodeID = n.ID
		cp.UpdatedAt = ts
		if err := s.port.SaveContent(cp); err != nil {
			return nil, err
		}
	}

	s.nodes[n.ID] = n
	if n.IsRoot() {
		s.rootNodes = append(s.rootNodes, n.ID)
	}

	for _, child := range s.GetChildren(src.ID) {
		if _, err := s.duplicateSubtree(child, &n.ID, child.Name); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// ToggleActive flips the active flag of a leaf. Folders and unknown ids are a
// no-op returning (nil, nil).
func (s *Store) ToggleActive(id string) (*models.Node, error) {
	n := s.nodes[id]
	if n == nil || n.Type != models.TypeLeaf {
		return nil, nil
	}
	flipped := !n.Active
	updated, err := s.UpdateNode(id, NodeUpdate{Active: &flipped})
	if err != nil {
		return nil, err
	}
	s.events.Publish(bus.Event{Kind: bus.ActiveChanged, ID: id})
	return updated, nil
}

// SelectNode sets the selection and, for leaves, loads the content record
// into memory. An empty id clears selection and content. Unknown ids are a
// no-op.
func (s *Store) SelectNode(id string) error {
	if id == "" {
		s.selectedID = ""
		s.current = nil
		s.events.Publish(bus.Event{Kind: bus.SelectionChanged, ID: ""})
		return nil
	}
	n := s.nodes[id]
	if n == nil {
		return nil
	}

	var content *models.Content
	if n.Type == models.TypeLeaf {
		c, err := s.port.GetContent(id)
		if err != nil {
			return err
		}
		content = c
	}
	s.selectedID = id
	s.current = content
	s.events.Publish(bus.Event{Kind: bus.SelectionChanged, ID: id})
	return nil
}

// UpdateContent applies a partial update to the selected leaf's content.
// With nothing selected (or a folder selected) it is a no-op returning
// (nil, nil). Tag changes deliberately do not rebuild the search index: tags
// are outside the search contract, which covers names and paths only.
func (s *Store) UpdateContent(upd ContentUpdate) (*models.Content, error) {
	if s.selectedID == "" || s.current == nil {
		return nil, nil
	}

	c := s.current.Clone()
	if upd.Icon != nil {
		c.Icon = *upd.Icon
	}
	if upd.Markdown != nil {
		c.Markdown = *upd.Markdown
	}
	if upd.Fields != nil {
		c.Fields = append([]models.Field{}, (*upd.Fields)...)
	}
	if upd.Tags != nil {
		c.Tags = append([]string{}, (*upd.Tags)...)
	}
	if upd.Links != nil {
		c.Links = append([]string{}, (*upd.Links)...)
	}
	c.UpdatedAt = now()

	if err := s.port.SaveContent(c); err != nil {
		return nil, err
	}
	s.current = c
	s.events.Publish(bus.Event{Kind: bus.ContentChanged, Content: c})
	return c, nil
}

// removeRoot drops id from the root list, preserving order.
func (s *Store) removeRoot(id string) {
	for i, rid := range s.rootNodes {
		if rid == id {
			s.rootNodes = append(s.rootNodes[:i], s.rootNodes[i+1:]...)
			return
		}
	}
}
