package persist

import (
	"os"
	"testing"
	"time"

	"github.com/starford/eihwaz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "eihwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func leaf(id string, parentID *string, name string, order int) *models.Node {
	now := time.Now().UTC()
	return &models.Node{
		ID: id, ParentID: parentID, Type: models.TypeLeaf,
		Name: name, OrderIndex: order, CreatedAt: now, UpdatedAt: now,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM nodes`).Scan(&count); err != nil {
		t.Fatalf("nodes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM contents`).Scan(&count); err != nil {
		t.Fatalf("contents table missing: %v", err)
	}
}

func TestSaveAndGetAllNodes(t *testing.T) {
	db := testDB(t)

	root := &models.Node{ID: "f1", Type: models.TypeFolder, Name: "Quests",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := db.SaveNode(root); err != nil {
		t.Fatalf("SaveNode: %v", err)
	}
	if err := db.SaveNode(leaf("l1", &root.ID, "Dragon Hunt", 0)); err != nil {
		t.Fatalf("SaveNode leaf: %v", err)
	}

	all, err := db.GetAllNodes()
	if err != nil {
		t.Fatalf("GetAllNodes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("nodes = %d, want 2", len(all))
	}
	byID := map[string]*models.Node{all[0].ID: all[0], all[1].ID: all[1]}
	if byID["f1"].ParentID != nil {
		t.Error("root parent should be nil")
	}
	if byID["l1"].ParentID == nil || *byID["l1"].ParentID != "f1" {
		t.Errorf("leaf parent = %v, want f1", byID["l1"].ParentID)
	}
}

func TestSaveNodeUpsert(t *testing.T) {
	db := testDB(t)
	n := leaf("l1", nil, "Old", 0)
	_ = db.SaveNode(n)

	n2 := n.Clone()
	n2.Name = "New"
	n2.OrderIndex = 3
	if err := db.SaveNode(n2); err != nil {
		t.Fatalf("SaveNode update: %v", err)
	}

	all, _ := db.GetAllNodes()
	if len(all) != 1 {
		t.Fatalf("nodes = %d, want 1", len(all))
	}
	if all[0].Name != "New" || all[0].OrderIndex != 3 {
		t.Errorf("node = %+v, want updated name and order", all[0])
	}
}

func TestGetContent_DefaultWhenAbsent(t *testing.T) {
	db := testDB(t)
	c, err := db.GetContent("missing")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if c == nil {
		t.Fatal("expected default content, got nil")
	}
	if c.NodeID != "missing" {
		t.Errorf("node_id = %q", c.NodeID)
	}
	if c.Fields == nil || c.Tags == nil || c.Links == nil {
		t.Error("default content slices should be non-nil")
	}
}

func TestSaveAndGetContent(t *testing.T) {
	db := testDB(t)
	c := &models.Content{
		NodeID:    "l1",
		Icon:      "🐉",
		Markdown:  "# Dragon Hunt\nSee [[Grahda]]",
		Fields:    []models.Field{{Key: "Status", Value: "active"}},
		Tags:      []string{"quest"},
		Links:     []string{"n-grahda"},
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.SaveContent(c); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}

	got, err := db.GetContent("l1")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if got.Icon != "🐉" || got.Markdown != c.Markdown {
		t.Errorf("content = %+v", got)
	}
	if len(got.Fields) != 1 || got.Fields[0].Key != "Status" {
		t.Errorf("fields = %+v", got.Fields)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "quest" {
		t.Errorf("tags = %+v", got.Tags)
	}
	if len(got.Links) != 1 || got.Links[0] != "n-grahda" {
		t.Errorf("links = %+v", got.Links)
	}
}

func TestDeleteNodeAndContent(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNode(leaf("l1", nil, "Doomed", 0))
	_ = db.SaveContent(&models.Content{NodeID: "l1", UpdatedAt: time.Now().UTC()})

	if err := db.DeleteNodeAndContent("l1"); err != nil {
		t.Fatalf("DeleteNodeAndContent: %v", err)
	}

	all, _ := db.GetAllNodes()
	if len(all) != 0 {
		t.Errorf("nodes = %d, want 0", len(all))
	}
	var count int
	_ = db.conn.QueryRow(`SELECT count(*) FROM contents WHERE node_id = 'l1'`).Scan(&count)
	if count != 0 {
		t.Error("content row survived delete")
	}
}

func TestDeleteNodeAndContent_UnknownID(t *testing.T) {
	db := testDB(t)
	if err := db.DeleteNodeAndContent("ghost"); err != nil {
		t.Errorf("deleting unknown id should succeed, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	db := testDB(t)
	root := &models.Node{ID: "f1", Type: models.TypeFolder, Name: "Quests",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	_ = db.SaveNode(root)
	_ = db.SaveNode(leaf("l1", &root.ID, "Dragon Hunt", 0))
	_ = db.SaveContent(&models.Content{NodeID: "l1", Markdown: "body",
		Fields: []models.Field{}, Tags: []string{"quest"}, Links: []string{},
		UpdatedAt: time.Now().UTC()})

	snap, err := db.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if snap.Version != models.SnapshotVersion {
		t.Errorf("version = %d", snap.Version)
	}
	if len(snap.Nodes) != 2 || len(snap.Contents) != 1 {
		t.Fatalf("snapshot = %d nodes, %d contents", len(snap.Nodes), len(snap.Contents))
	}

	// Import into a second database.
	db2 := testDB(t)
	if err := db2.ImportAll(snap); err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	all, _ := db2.GetAllNodes()
	if len(all) != 2 {
		t.Errorf("imported nodes = %d, want 2", len(all))
	}
	c, _ := db2.GetContent("l1")
	if c.Markdown != "body" || len(c.Tags) != 1 {
		t.Errorf("imported content = %+v", c)
	}
}

func TestImportAll_FullReplace(t *testing.T) {
	db := testDB(t)
	_ = db.SaveNode(leaf("old", nil, "Old", 0))
	_ = db.SaveContent(&models.Content{NodeID: "old", UpdatedAt: time.Now().UTC()})

	snap := &models.Snapshot{
		Version:    models.SnapshotVersion,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Nodes:      []*models.Node{leaf("new", nil, "New", 0)},
		Contents:   []*models.Content{{NodeID: "new", UpdatedAt: time.Now().UTC()}},
	}
	if err := db.ImportAll(snap); err != nil {
		t.Fatalf("ImportAll: %v", err)
	}

	all, _ := db.GetAllNodes()
	if len(all) != 1 || all[0].ID != "new" {
		t.Errorf("nodes after import = %+v, want only 'new'", all)
	}
	var count int
	_ = db.conn.QueryRow(`SELECT count(*) FROM contents WHERE node_id = 'old'`).Scan(&count)
	if count != 0 {
		t.Error("old content survived full replace")
	}
}

func TestImportAll_RejectsNewerVersion(t *testing.T) {
	db := testDB(t)
	snap := &models.Snapshot{Version: models.SnapshotVersion + 1}
	if err := db.ImportAll(snap); err == nil {
		t.Error("newer snapshot version should be rejected")
	}
}
