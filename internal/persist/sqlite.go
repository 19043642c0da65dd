package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id          TEXT PRIMARY KEY,
	parent_id   TEXT,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	order_index INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contents (
	node_id    TEXT PRIMARY KEY,
	icon       TEXT NOT NULL DEFAULT '',
	markdown   TEXT NOT NULL DEFAULT '',
	fields     TEXT NOT NULL DEFAULT '[]',
	tags       TEXT NOT NULL DEFAULT '[]',
	links      TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
`

// DB wraps a sql.DB with node and content operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Persistence("open db", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, apperr.Persistence("ping", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, apperr.Persistence("apply schema", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetAllNodes returns every stored node.
func (db *DB) GetAllNodes() ([]*models.Node, error) {
	rows, err := db.conn.Query(`
		SELECT id, parent_id, type, name, order_index, active, created_at, updated_at
		FROM nodes
	`)
	if err != nil {
		return nil, apperr.Persistence("get all nodes", err)
	}
	defer rows.Close()

	var out []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, apperr.Persistence("scan node", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("get all nodes", err)
	}
	return out, nil
}

// SaveNode inserts or replaces a node record.
func (db *DB) SaveNode(n *models.Node) error {
	_, err := db.conn.Exec(`
		INSERT INTO nodes (id, parent_id, type, name, order_index, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id   = excluded.parent_id,
			type        = excluded.type,
			name        = excluded.name,
			order_index = excluded.order_index,
			active      = excluded.active,
			updated_at  = excluded.updated_at
	`, n.ID, n.ParentID, string(n.Type), n.Name, n.OrderIndex, n.Active, n.CreatedAt, n.UpdatedAt)
	return apperr.Persistence("save node", err)
}

// DeleteNodeAndContent removes a node row and its content row in one
// transaction. Unknown ids delete nothing and succeed.
func (db *DB) DeleteNodeAndContent(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM contents WHERE node_id = ?`, id); err != nil {
		return apperr.Persistence("delete content", err)
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return apperr.Persistence("delete node", err)
	}
	return apperr.Persistence("commit delete", tx.Commit())
}

// GetContent returns the content for id, or an empty default when absent.
func (db *DB) GetContent(id string) (*models.Content, error) {
	row := db.conn.QueryRow(`
		SELECT node_id, icon, markdown, fields, tags, links, updated_at
		FROM contents WHERE node_id = ?
	`, id)
	c, err := scanContent(row)
	if err == sql.ErrNoRows {
		return defaultContent(id), nil
	}
	if err != nil {
		return nil, apperr.Persistence("get content", err)
	}
	return c, nil
}

// SaveContent inserts or replaces a content record.
func (db *DB) SaveContent(c *models.Content) error {
	fields, tags, links, err := marshalContentColumns(c)
	if err != nil {
		return apperr.Persistence("encode content", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO contents (node_id, icon, markdown, fields, tags, links, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			icon       = excluded.icon,
			markdown   = excluded.markdown,
			fields     = excluded.fields,
			tags       = excluded.tags,
			links      = excluded.links,
			updated_at = excluded.updated_at
	`, c.NodeID, c.Icon, c.Markdown, fields, tags, links, c.UpdatedAt)
	return apperr.Persistence("save content", err)
}

// ExportAll reads every node and content record into a snapshot.
func (db *DB) ExportAll() (*models.Snapshot, error) {
	nodes, err := db.GetAllNodes()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`
		SELECT node_id, icon, markdown, fields, tags, links, updated_at
		FROM contents
	`)
	if err != nil {
		return nil, apperr.Persistence("export contents", err)
	}
	defer rows.Close()

	var contents []*models.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, apperr.Persistence("scan content", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("export contents", err)
	}

	return &models.Snapshot{
		Version:    models.SnapshotVersion,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Nodes:      nodes,
		Contents:   contents,
	}, nil
}

// ImportAll wipes both tables and loads the snapshot's records in a single
// transaction: full replace, not merge.
func (db *DB) ImportAll(snap *models.Snapshot) error {
	if snap.Version > models.SnapshotVersion {
		return apperr.Persistence("import", fmt.Errorf("unsupported snapshot version %d", snap.Version))
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return apperr.Persistence("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM contents`); err != nil {
		return apperr.Persistence("clear contents", err)
	}
	if _, err := tx.Exec(`DELETE FROM nodes`); err != nil {
		return apperr.Persistence("clear nodes", err)
	}

	nodeStmt, err := tx.Prepare(`
		INSERT INTO nodes (id, parent_id, type, name, order_index, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperr.Persistence("prepare node insert", err)
	}
	defer nodeStmt.Close()
	for _, n := range snap.Nodes {
		if _, err := nodeStmt.Exec(n.ID, n.ParentID, string(n.Type), n.Name,
			n.OrderIndex, n.Active, n.CreatedAt, n.UpdatedAt); err != nil {
			return apperr.Persistence("insert node", err)
		}
	}

	contentStmt, err := tx.Prepare(`
		INSERT INTO contents (node_id, icon, markdown, fields, tags, links, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperr.Persistence("prepare content insert", err)
	}
	defer contentStmt.Close()
	for _, c := range snap.Contents {
		fields, tags, links, err := marshalContentColumns(c)
		if err != nil {
			return apperr.Persistence("encode content", err)
		}
		if _, err := contentStmt.Exec(c.NodeID, c.Icon, c.Markdown,
			fields, tags, links, c.UpdatedAt); err != nil {
			return apperr.Persistence("insert content", err)
		}
	}

	return apperr.Persistence("commit import", tx.Commit())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (*models.Node, error) {
	var (
		n      models.Node
		parent sql.NullString
		typ    string
	)
	if err := r.Scan(&n.ID, &parent, &typ, &n.Name, &n.OrderIndex, &n.Active,
		&n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	n.Type = models.NodeType(typ)
	return &n, nil
}

func scanContent(r rowScanner) (*models.Content, error) {
	var (
		c                   models.Content
		fields, tags, links string
	)
	if err := r.Scan(&c.NodeID, &c.Icon, &c.Markdown, &fields, &tags, &links,
		&c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(links), &c.Links); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalContentColumns(c *models.Content) (fields, tags, links string, err error) {
	fb, err := json.Marshal(nonNil(c.Fields))
	if err != nil {
		return "", "", "", err
	}
	tb, err := json.Marshal(nonNil(c.Tags))
	if err != nil {
		return "", "", "", err
	}
	lb, err := json.Marshal(nonNil(c.Links))
	if err != nil {
		return "", "", "", err
	}
	return string(fb), string(tb), string(lb), nil
}

func defaultContent(id string) *models.Content {
	return &models.Content{
		NodeID: id,
		Fields: []models.Field{},
		Tags:   []string{},
		Links:  []string{},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
