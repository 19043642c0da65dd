// Package models defines the domain types for Eihwaz.
package models

import "time"

// NodeType discriminates folders from leaf documents.
type NodeType string

// Node types.
const (
	TypeFolder NodeType = "folder"
	TypeLeaf   NodeType = "leaf"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	return t == TypeFolder || t == TypeLeaf
}

// Node is a folder or leaf document in the hierarchy. ParentID is nil for
// root-level nodes and is a back-reference only; children are resolved by
// lookup, never held as pointers.
type Node struct {
	ID         string    `json:"id"`
	ParentID   *string   `json:"parent_id"`
	Type       NodeType  `json:"type"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsRoot reports whether the node sits at the top level.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Clone returns a copy of the node with its own ParentID pointer.
func (n *Node) Clone() *Node {
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

// Field is one ordered key/value entry of a leaf's structured content.
// Keys are unique within a Content; order is insertion order.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Content is the structured body attached to exactly one leaf node, keyed by
// that node's id. Folders never have Content. Links may reference nodes that
// were deleted later; dangling ids are tolerated.
type Content struct {
	NodeID    string    `json:"node_id"`
	Icon      string    `json:"icon"`
	Markdown  string    `json:"markdown"`
	Fields    []Field   `json:"fields"`
	Tags      []string  `json:"tags"`
	Links     []string  `json:"links"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the content.
func (c *Content) Clone() *Content {
	out := *c
	out.Fields = append([]Field(nil), c.Fields...)
	out.Tags = append([]string(nil), c.Tags...)
	out.Links = append([]string(nil), c.Links...)
	return &out
}

// SnapshotVersion is the current export format version.
const SnapshotVersion = 1

// Snapshot is the self-contained export format. Import replaces all nodes and
// contents atomically; records absent from the snapshot are discarded.
type Snapshot struct {
	Version    int        `json:"version"`
	ExportDate string     `json:"export_date"`
	Nodes      []*Node    `json:"nodes"`
	Contents   []*Content `json:"contents"`
}

// Template seeds icon and fields for newly created leaves.
type Template struct {
	Name   string  `yaml:"name" json:"name"`
	Icon   string  `yaml:"icon" json:"icon"`
	Fields []Field `yaml:"fields" json:"fields"`
}
