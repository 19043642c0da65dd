package store

import (
	"errors"
	"os"
	"testing"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/bus"
	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/persist"
)

func testPort(t *testing.T) *persist.DB {
	t.Helper()
	f, err := os.CreateTemp("", "eihwaz-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := persist.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) (*Store, *bus.Bus) {
	t.Helper()
	events := bus.New()
	s := New(testPort(t), events, map[string]models.Template{
		"npc": {Name: "npc", Icon: "🧌", Fields: []models.Field{{Key: "Race", Value: ""}}},
	})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, events
}

func mustCreate(t *testing.T, s *Store, name string, typ models.NodeType, parentID *string) *models.Node {
	t.Helper()
	n, err := s.CreateNode(CreateParams{Name: name, Type: typ, ParentID: parentID})
	if err != nil {
		t.Fatalf("CreateNode %s: %v", name, err)
	}
	return n
}

func orderIndexes(nodes []*models.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.OrderIndex
	}
	return out
}

func TestCreateNode_ContiguousOrdering(t *testing.T) {
	s, _ := testStore(t)

	for _, name := range []string{"Quests", "NPCs", "Locations"} {
		mustCreate(t, s, name, models.TypeFolder, nil)
	}

	roots := s.GetChildren("")
	if len(roots) != 3 {
		t.Fatalf("roots = %d, want 3", len(roots))
	}
	for i, n := range roots {
		if n.OrderIndex != i {
			t.Errorf("roots order = %v, want contiguous 0..2", orderIndexes(roots))
			break
		}
	}
}

func TestCreateNode_LeafGetsDefaultContent(t *testing.T) {
	s, _ := testStore(t)
	n := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)

	c, err := s.GetContent(n.ID)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if c == nil {
		t.Fatal("leaf should have content")
	}
	if c.Icon == "" {
		t.Error("leaf content should carry a default icon")
	}
	if c.Fields == nil || c.Tags == nil || c.Links == nil {
		t.Error("content slices should be non-nil")
	}
}

func TestCreateNode_TemplateSeedsContent(t *testing.T) {
	s, _ := testStore(t)
	n, err := s.CreateNode(CreateParams{Name: "Grahda", Type: models.TypeLeaf, Template: "npc"})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := s.GetContent(n.ID)
	if c.Icon != "🧌" {
		t.Errorf("icon = %q, want template icon", c.Icon)
	}
	if len(c.Fields) != 1 || c.Fields[0].Key != "Race" {
		t.Errorf("fields = %+v, want template fields", c.Fields)
	}
}

func TestCreateNode_ExplicitIconOverridesTemplate(t *testing.T) {
	s, _ := testStore(t)
	n, err := s.CreateNode(CreateParams{Name: "Grahda", Type: models.TypeLeaf, Template: "npc", Icon: "👑"})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := s.GetContent(n.ID)
	if c.Icon != "👑" {
		t.Errorf("icon = %q, want explicit override", c.Icon)
	}
}

func TestCreateNode_RejectsUnknownParent(t *testing.T) {
	s, _ := testStore(t)
	ghost := "ghost"

	n, err := s.CreateNode(CreateParams{Name: "Stray", Type: models.TypeLeaf, ParentID: &ghost})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n != nil {
		t.Errorf("node = %+v, want nil", n)
	}
	if s.NodeCount() != 0 {
		t.Errorf("node count = %d, want 0", s.NodeCount())
	}

	// Nothing reached the port either.
	snap, err := s.Export()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 0 {
		t.Errorf("persisted nodes = %d, want 0", len(snap.Nodes))
	}
}

func TestCreateNode_LeafParentPlacesBeside(t *testing.T) {
	s, _ := testStore(t)
	folder := mustCreate(t, s, "Quests", models.TypeFolder, nil)
	first := mustCreate(t, s, "First", models.TypeLeaf, &folder.ID)

	second := mustCreate(t, s, "Second", models.TypeLeaf, &first.ID)
	if second.ParentID == nil || *second.ParentID != folder.ID {
		t.Errorf("parent = %v, want placement beside the leaf under %s", second.ParentID, folder.ID)
	}
	if got := len(s.GetChildren(first.ID)); got != 0 {
		t.Errorf("leaf children = %d, leaves must stay childless", got)
	}
	if second.OrderIndex != 1 {
		t.Errorf("order index = %d, want 1", second.OrderIndex)
	}

	// A root-level leaf parent reduces to root placement.
	loose := mustCreate(t, s, "Loose", models.TypeLeaf, nil)
	beside := mustCreate(t, s, "Beside", models.TypeLeaf, &loose.ID)
	if beside.ParentID != nil {
		t.Errorf("parent = %q, want root", *beside.ParentID)
	}
}

func TestGetContent_FolderIsNil(t *testing.T) {
	s, _ := testStore(t)
	f := mustCreate(t, s, "Quests", models.TypeFolder, nil)

	c, err := s.GetContent(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("folders must not have content")
	}
}

func TestMoveNode_CycleRejected(t *testing.T) {
	s, _ := testStore(t)
	a := mustCreate(t, s, "A", models.TypeFolder, nil)
	b := mustCreate(t, s, "B", models.TypeFolder, &a.ID)
	c := mustCreate(t, s, "C", models.TypeFolder, &b.ID)

	// Moving A under its grandchild C must fail and change nothing.
	_, err := s.MoveNode(a.ID, &c.ID)
	if !errors.Is(err, apperr.ErrCycle) {
		t.Fatalf("err = %v, want ErrCycle", err)
	}
	if got := s.GetNode(a.ID); got.ParentID != nil {
		t.Error("A should still be a root")
	}

	// Moving a node into itself is also a cycle.
	if _, err := s.MoveNode(a.ID, &a.ID); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("self-move err = %v, want ErrCycle", err)
	}
}

func TestMoveNode_AppendsAndLeavesGap(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	q := mustCreate(t, s, "Q", models.TypeFolder, nil)

	mustCreate(t, s, "P0", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "P1", models.TypeLeaf, &p.ID)
	x := mustCreate(t, s, "X", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "Q0", models.TypeLeaf, &q.ID)
	mustCreate(t, s, "Q1", models.TypeLeaf, &q.ID)

	moved, err := s.MoveNode(x.ID, &q.ID)
	if err != nil {
		t.Fatalf("MoveNode: %v", err)
	}
	if moved.OrderIndex != 2 {
		t.Errorf("moved orderIndex = %d, want 2", moved.OrderIndex)
	}

	// The source group keeps its original indexes 0 and 1; the gap at 2 is
	// not compacted.
	remaining := s.GetChildren(p.ID)
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d, want 2", len(remaining))
	}
	if remaining[0].OrderIndex != 0 || remaining[1].OrderIndex != 1 {
		t.Errorf("source indexes = %v, want [0 1]", orderIndexes(remaining))
	}
}

func TestMoveNode_OntoLeafPlacesBeside(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	target := mustCreate(t, s, "Target", models.TypeLeaf, &p.ID)
	x := mustCreate(t, s, "X", models.TypeLeaf, nil)

	moved, err := s.MoveNode(x.ID, &target.ID)
	if err != nil {
		t.Fatalf("MoveNode: %v", err)
	}
	if moved.ParentID == nil || *moved.ParentID != p.ID {
		t.Errorf("parent = %v, want %s (the leaf's parent)", moved.ParentID, p.ID)
	}
}

func TestMoveNode_ToRootAndBack(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	x := mustCreate(t, s, "X", models.TypeLeaf, &p.ID)

	moved, err := s.MoveNode(x.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !moved.IsRoot() {
		t.Fatal("X should be a root after moving to nil parent")
	}
	found := false
	for _, r := range s.RootNodes() {
		if r.ID == x.ID {
			found = true
		}
	}
	if !found {
		t.Error("root list should contain X")
	}

	if _, err := s.MoveNode(x.ID, &p.ID); err != nil {
		t.Fatal(err)
	}
	for _, r := range s.RootNodes() {
		if r.ID == x.ID {
			t.Error("root list should no longer contain X")
		}
	}
}

func TestMoveNode_UnknownIDsAreNoop(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)

	if n, err := s.MoveNode("ghost", &p.ID); n != nil || err != nil {
		t.Errorf("unknown id = (%v, %v), want (nil, nil)", n, err)
	}
	ghost := "ghost"
	if n, err := s.MoveNode(p.ID, &ghost); n != nil || err != nil {
		t.Errorf("unknown target = (%v, %v), want (nil, nil)", n, err)
	}
}

func TestReorderNode_RenumbersGroup(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	a := mustCreate(t, s, "A", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "B", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "C", models.TypeLeaf, &p.ID)

	if err := s.ReorderNode(a.ID, 2); err != nil {
		t.Fatalf("ReorderNode: %v", err)
	}
	group := s.GetChildren(p.ID)
	names := []string{group[0].Name, group[1].Name, group[2].Name}
	if names[0] != "B" || names[1] != "C" || names[2] != "A" {
		t.Errorf("order = %v, want [B C A]", names)
	}
	for i, n := range group {
		if n.OrderIndex != i {
			t.Errorf("indexes = %v, want contiguous", orderIndexes(group))
			break
		}
	}
}

func TestReorderNode_RestoresContiguityAfterMoveGap(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	a := mustCreate(t, s, "A", models.TypeLeaf, &p.ID)
	b := mustCreate(t, s, "B", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "C", models.TypeLeaf, &p.ID)

	// Move the first sibling away: B and C keep indexes 1 and 2, leaving a
	// gap at 0.
	if _, err := s.MoveNode(a.ID, nil); err != nil {
		t.Fatal(err)
	}
	group := s.GetChildren(p.ID)
	if group[0].OrderIndex != 1 || group[1].OrderIndex != 2 {
		t.Fatalf("indexes after move = %v, want the gap preserved", orderIndexes(group))
	}

	// Even a same-position reorder renumbers the whole group.
	if err := s.ReorderNode(b.ID, 0); err != nil {
		t.Fatal(err)
	}
	group = s.GetChildren(p.ID)
	for i, n := range group {
		if n.OrderIndex != i {
			t.Fatalf("indexes = %v, want contiguous 0..%d", orderIndexes(group), len(group)-1)
		}
	}
}

func TestReorderNode_OutOfRangeIsNoop(t *testing.T) {
	s, _ := testStore(t)
	p := mustCreate(t, s, "P", models.TypeFolder, nil)
	a := mustCreate(t, s, "A", models.TypeLeaf, &p.ID)
	mustCreate(t, s, "B", models.TypeLeaf, &p.ID)

	if err := s.ReorderNode(a.ID, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.ReorderNode(a.ID, -1); err != nil {
		t.Fatal(err)
	}
	group := s.GetChildren(p.ID)
	if group[0].ID != a.ID {
		t.Error("out-of-range reorder should not move anything")
	}
}

func TestDeleteNode_CascadeDepth3(t *testing.T) {
	s, _ := testStore(t)
	top := mustCreate(t, s, "Top", models.TypeFolder, nil)
	mid := mustCreate(t, s, "Mid", models.TypeFolder, &top.ID)
	deep := mustCreate(t, s, "Deep", models.TypeFolder, &mid.ID)
	leafA := mustCreate(t, s, "LeafA", models.TypeLeaf, &mid.ID)
	leafB := mustCreate(t, s, "LeafB", models.TypeLeaf, &deep.ID)
	sibling := mustCreate(t, s, "Sibling", models.TypeFolder, nil)

	if err := s.DeleteNode(top.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	for _, id := range []string{top.ID, mid.ID, deep.ID, leafA.ID, leafB.ID} {
		if s.GetNode(id) != nil {
			t.Errorf("node %s survived cascade", id)
		}
	}
	if s.GetNode(sibling.ID) == nil {
		t.Error("unrelated sibling was deleted")
	}
	roots := s.GetChildren("")
	for _, r := range roots {
		if r.ID == top.ID {
			t.Error("deleted node still listed at root")
		}
	}
	// Descendant contents are gone from durable storage too.
	count, err := s.ContentCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("content records = %d, want 0 after cascade", count)
	}
}

func TestDeleteNode_ClearsSelection(t *testing.T) {
	s, events := testStore(t)
	leaf := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)
	if err := s.SelectNode(leaf.ID); err != nil {
		t.Fatal(err)
	}

	var cleared bool
	events.Subscribe(bus.SelectionChanged, func(ev bus.Event) {
		if ev.ID == "" {
			cleared = true
		}
	})

	if err := s.DeleteNode(leaf.ID); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != "" || s.CurrentContent() != nil {
		t.Error("selection should be cleared when the selected node is deleted")
	}
	if !cleared {
		t.Error("expected a selection-cleared event")
	}
}

func TestDeleteNode_UnknownIDIsNoop(t *testing.T) {
	s, _ := testStore(t)
	if err := s.DeleteNode("ghost"); err != nil {
		t.Errorf("unknown delete = %v, want nil", err)
	}
}

func TestDuplicateThenDelete_Idempotent(t *testing.T) {
	s, _ := testStore(t)
	top := mustCreate(t, s, "Top", models.TypeFolder, nil)
	mustCreate(t, s, "Child", models.TypeLeaf, &top.ID)

	nodesBefore := s.NodeCount()
	contentsBefore, err := s.ContentCount()
	if err != nil {
		t.Fatal(err)
	}

	dup, err := s.DuplicateNode(top.ID)
	if err != nil {
		t.Fatalf("DuplicateNode: %v", err)
	}
	if err := s.DeleteNode(dup.ID); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	if got := s.NodeCount(); got != nodesBefore {
		t.Errorf("node count = %d, want %d", got, nodesBefore)
	}
	contentsAfter, err := s.ContentCount()
	if err != nil {
		t.Fatal(err)
	}
	if contentsAfter != contentsBefore {
		t.Errorf("content count = %d, want %d", contentsAfter, contentsBefore)
	}
}

func TestDuplicateNode_CopiesSubtreeAndContent(t *testing.T) {
	s, _ := testStore(t)
	top := mustCreate(t, s, "Top", models.TypeFolder, nil)
	child := mustCreate(t, s, "Child", models.TypeLeaf, &top.ID)

	if err := s.SelectNode(child.ID); err != nil {
		t.Fatal(err)
	}
	body := "# original"
	if _, err := s.UpdateContent(ContentUpdate{Markdown: &body}); err != nil {
		t.Fatal(err)
	}

	dup, err := s.DuplicateNode(top.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dup.Name != "Top (Copy)" {
		t.Errorf("name = %q, want \"Top (Copy)\"", dup.Name)
	}

	kids := s.GetChildren(dup.ID)
	if len(kids) != 1 {
		t.Fatalf("duplicate children = %d, want 1", len(kids))
	}
	if kids[0].Name != "Child" {
		t.Errorf("child name = %q, children keep their names", kids[0].Name)
	}
	c, err := s.GetContent(kids[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Markdown != "# original" {
		t.Errorf("duplicated content markdown = %q", c.Markdown)
	}
}

func TestRoundTrip_ImportOfExport(t *testing.T) {
	s, _ := testStore(t)
	top := mustCreate(t, s, "Top", models.TypeFolder, nil)
	leaf := mustCreate(t, s, "Leaf", models.TypeLeaf, &top.ID)
	if err := s.SelectNode(leaf.ID); err != nil {
		t.Fatal(err)
	}
	body := "round trip body"
	if _, err := s.UpdateContent(ContentUpdate{Markdown: &body}); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if err := s.Import(snap); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if s.NodeCount() != 2 {
		t.Errorf("node count = %d, want 2", s.NodeCount())
	}
	reloaded := s.GetNode(leaf.ID)
	if reloaded == nil || reloaded.ParentID == nil || *reloaded.ParentID != top.ID {
		t.Errorf("leaf after round trip = %+v", reloaded)
	}
	c, err := s.GetContent(leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Markdown != body {
		t.Errorf("content after round trip = %q, want %q", c.Markdown, body)
	}
}

func TestImport_ClearsSelection(t *testing.T) {
	s, _ := testStore(t)
	leaf := mustCreate(t, s, "Leaf", models.TypeLeaf, nil)
	if err := s.SelectNode(leaf.ID); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Export()
	if err := s.Import(snap); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != "" {
		t.Error("selection should be cleared by import")
	}
}

func TestImport_RejectsCyclicParentLinks(t *testing.T) {
	s, _ := testStore(t)
	keep := mustCreate(t, s, "Keep", models.TypeFolder, nil)

	a, b := "a", "b"
	snap := &models.Snapshot{
		Version: models.SnapshotVersion,
		Nodes: []*models.Node{
			{ID: a, ParentID: &b, Type: models.TypeFolder, Name: "A"},
			{ID: b, ParentID: &a, Type: models.TypeFolder, Name: "B"},
		},
	}
	if err := s.Import(snap); !errors.Is(err, apperr.ErrCycle) {
		t.Fatalf("Import = %v, want ErrCycle", err)
	}

	// Rejected before anything was replaced.
	if s.NodeCount() != 1 || s.GetNode(keep.ID) == nil {
		t.Errorf("store changed by rejected import: %d nodes", s.NodeCount())
	}
}

func TestImport_RejectsSelfParent(t *testing.T) {
	s, _ := testStore(t)
	id := "loop"
	snap := &models.Snapshot{
		Version: models.SnapshotVersion,
		Nodes:   []*models.Node{{ID: id, ParentID: &id, Type: models.TypeFolder, Name: "Loop"}},
	}
	if err := s.Import(snap); !errors.Is(err, apperr.ErrCycle) {
		t.Fatalf("Import = %v, want ErrCycle", err)
	}
}

func TestImport_ToleratesDanglingParent(t *testing.T) {
	s, _ := testStore(t)
	ghost := "ghost"
	snap := &models.Snapshot{
		Version: models.SnapshotVersion,
		Nodes:   []*models.Node{{ID: "orphan", ParentID: &ghost, Type: models.TypeLeaf, Name: "Orphan"}},
	}
	if err := s.Import(snap); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if s.GetNode("orphan") == nil {
		t.Error("orphan should survive import")
	}
}

func TestGetNodePath_TerminatesOnCorruptLinks(t *testing.T) {
	s, _ := testStore(t)
	a, b := "a", "b"
	s.nodes[a] = &models.Node{ID: a, ParentID: &b, Type: models.TypeFolder, Name: "A"}
	s.nodes[b] = &models.Node{ID: b, ParentID: &a, Type: models.TypeFolder, Name: "B"}

	path := s.GetNodePath(a)
	if len(path) != 2 {
		t.Errorf("path = %d nodes, walk should visit each node once", len(path))
	}
	if s.IsDescendant(a, "elsewhere") {
		t.Error("IsDescendant should terminate and report false")
	}
}

func TestUpdateNode_Rename(t *testing.T) {
	s, _ := testStore(t)
	n := mustCreate(t, s, "Old Name", models.TypeLeaf, nil)

	newName := "Grahda"
	updated, err := s.UpdateNode(n.ID, NodeUpdate{Name: &newName})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Grahda" {
		t.Errorf("name = %q", updated.Name)
	}

	// The search index follows renames.
	if results := s.Search("grahda", 5); len(results) == 0 || results[0].ID != n.ID {
		t.Errorf("search after rename = %+v", results)
	}
	if results := s.Search("old name", 5); len(results) != 0 {
		t.Errorf("stale name still indexed: %+v", results)
	}
}

func TestUpdateNode_UnknownIDIsNoop(t *testing.T) {
	s, _ := testStore(t)
	name := "x"
	n, err := s.UpdateNode("ghost", NodeUpdate{Name: &name})
	if n != nil || err != nil {
		t.Errorf("unknown update = (%v, %v), want (nil, nil)", n, err)
	}
}

func TestToggleActive(t *testing.T) {
	s, _ := testStore(t)
	leaf := mustCreate(t, s, "Quest", models.TypeLeaf, nil)
	folder := mustCreate(t, s, "Folder", models.TypeFolder, nil)

	n, err := s.ToggleActive(leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !n.Active {
		t.Error("toggle should activate the leaf")
	}
	n, err = s.ToggleActive(leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n.Active {
		t.Error("second toggle should deactivate")
	}

	if n, err := s.ToggleActive(folder.ID); n != nil || err != nil {
		t.Errorf("folder toggle = (%v, %v), want (nil, nil)", n, err)
	}
}

func TestSelectNode_LoadsLeafContent(t *testing.T) {
	s, _ := testStore(t)
	leaf := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)
	folder := mustCreate(t, s, "NPCs", models.TypeFolder, nil)

	if err := s.SelectNode(leaf.ID); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != leaf.ID || s.CurrentContent() == nil {
		t.Error("selecting a leaf should load its content")
	}

	if err := s.SelectNode(folder.ID); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != folder.ID || s.CurrentContent() != nil {
		t.Error("selecting a folder should not load content")
	}

	if err := s.SelectNode(""); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != "" || s.CurrentContent() != nil {
		t.Error("empty id should clear the selection")
	}
}

func TestSelectNode_UnknownIDIsNoop(t *testing.T) {
	s, _ := testStore(t)
	leaf := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)
	_ = s.SelectNode(leaf.ID)

	if err := s.SelectNode("ghost"); err != nil {
		t.Fatal(err)
	}
	if s.SelectedID() != leaf.ID {
		t.Error("unknown id should leave the selection untouched")
	}
}

func TestUpdateContent_NoSelectionIsNoop(t *testing.T) {
	s, _ := testStore(t)
	body := "x"
	c, err := s.UpdateContent(ContentUpdate{Markdown: &body})
	if c != nil || err != nil {
		t.Errorf("no-selection update = (%v, %v), want (nil, nil)", c, err)
	}
}

func TestUpdateContent_PersistsAndEmits(t *testing.T) {
	s, events := testStore(t)
	leaf := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)
	_ = s.SelectNode(leaf.ID)

	var emitted *models.Content
	events.Subscribe(bus.ContentChanged, func(ev bus.Event) { emitted = ev.Content })

	body := "## Lair"
	tags := []string{"npc", "troll"}
	c, err := s.UpdateContent(ContentUpdate{Markdown: &body, Tags: &tags})
	if err != nil {
		t.Fatal(err)
	}
	if c.Markdown != body || len(c.Tags) != 2 {
		t.Errorf("content = %+v", c)
	}
	if emitted == nil || emitted.Markdown != body {
		t.Error("content change should be announced with the new content")
	}

	// Survives a reload from the port.
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetContent(leaf.ID)
	if got.Markdown != body {
		t.Errorf("reloaded markdown = %q", got.Markdown)
	}
}

func TestToggleExpanded_FoldersOnly(t *testing.T) {
	s, _ := testStore(t)
	folder := mustCreate(t, s, "NPCs", models.TypeFolder, nil)
	leaf := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)

	s.ToggleExpanded(folder.ID)
	if !s.IsExpanded(folder.ID) {
		t.Error("folder should be expanded after toggle")
	}
	s.ToggleExpanded(folder.ID)
	if s.IsExpanded(folder.ID) {
		t.Error("second toggle should collapse")
	}

	s.ToggleExpanded(leaf.ID)
	if s.IsExpanded(leaf.ID) {
		t.Error("leaves have no expansion state")
	}
}

func TestGetNodePath(t *testing.T) {
	s, _ := testStore(t)
	a := mustCreate(t, s, "NPCs", models.TypeFolder, nil)
	b := mustCreate(t, s, "Trolls", models.TypeFolder, &a.ID)
	c := mustCreate(t, s, "Grahda", models.TypeLeaf, &b.ID)

	path := s.GetNodePath(c.ID)
	if len(path) != 3 {
		t.Fatalf("path length = %d, want 3", len(path))
	}
	if path[0].ID != a.ID || path[2].ID != c.ID {
		t.Errorf("path = [%s %s %s], want root first", path[0].Name, path[1].Name, path[2].Name)
	}

	if got := s.GetNodePath("ghost"); len(got) != 0 {
		t.Errorf("unknown path = %v, want empty", got)
	}
}

func TestResolveName(t *testing.T) {
	s, _ := testStore(t)
	n := mustCreate(t, s, "Grahda", models.TypeLeaf, nil)
	mustCreate(t, s, "Grahda's Lair", models.TypeLeaf, nil)

	if got := s.ResolveName("grahda"); got != n.ID {
		t.Errorf("ResolveName = %q, want exact match id", got)
	}
	if got := s.ResolveName("  Grahda  "); got != n.ID {
		t.Errorf("ResolveName should trim, got %q", got)
	}
	if got := s.ResolveName("grah"); got != "" {
		t.Errorf("prefix should not resolve, got %q", got)
	}
	if got := s.ResolveName(""); got != "" {
		t.Errorf("empty name resolved to %q", got)
	}
}

func TestCreateNode_EventOrder(t *testing.T) {
	s, events := testStore(t)

	var kinds []bus.EventKind
	events.SubscribeAll(func(ev bus.Event) { kinds = append(kinds, ev.Kind) })

	mustCreate(t, s, "Quests", models.TypeFolder, nil)
	if len(kinds) != 2 || kinds[0] != bus.NodeCreated || kinds[1] != bus.NodesChanged {
		t.Errorf("event order = %v, want [node.created nodes.changed]", kinds)
	}
}

func TestRename_EmitsUpdatedThenChanged(t *testing.T) {
	s, events := testStore(t)
	n := mustCreate(t, s, "Old", models.TypeLeaf, nil)

	var kinds []bus.EventKind
	events.SubscribeAll(func(ev bus.Event) { kinds = append(kinds, ev.Kind) })

	newName := "New"
	if _, err := s.UpdateNode(n.ID, NodeUpdate{Name: &newName}); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0] != bus.NodeUpdated || kinds[1] != bus.NodesChanged {
		t.Errorf("event order = %v, want [node.updated nodes.changed]", kinds)
	}

	// A non-name update does not announce a tree change.
	kinds = nil
	active := true
	if _, err := s.UpdateNode(n.ID, NodeUpdate{Active: &active}); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 1 || kinds[0] != bus.NodeUpdated {
		t.Errorf("events = %v, want [node.updated] only", kinds)
	}
}

func TestLoad_SurvivesRestart(t *testing.T) {
	f, err := os.CreateTemp("", "eihwaz-reload-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := persist.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	s := New(db, bus.New(), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	top := mustCreate(t, s, "Top", models.TypeFolder, nil)
	mustCreate(t, s, "Child", models.TypeLeaf, &top.ID)
	db.Close()

	db2, err := persist.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db2.Close() })
	s2 := New(db2, bus.New(), nil)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	if s2.NodeCount() != 2 {
		t.Errorf("node count after restart = %d, want 2", s2.NodeCount())
	}
	if len(s2.GetChildren(top.ID)) != 1 {
		t.Error("parent link lost across restart")
	}
}
