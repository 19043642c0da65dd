// Package persist implements the durable storage port for nodes and leaf
// content, backed by SQLite.
package persist

import "github.com/starford/eihwaz/internal/models"

// Port is the narrow interface the node store depends on for durability.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
//
// Every method may fail with an *apperr.PersistenceError; callers propagate
// such failures rather than retrying. Only DeleteNodeAndContent and ImportAll
// are atomic at the storage boundary.
type Port interface {
	// GetAllNodes returns every stored node in no particular order.
	GetAllNodes() ([]*models.Node, error)
	// SaveNode inserts or replaces a node record.
	SaveNode(n *models.Node) error
	// DeleteNodeAndContent removes a node and its content record in one
	// transaction: both gone or neither. Unknown ids are a no-op.
	DeleteNodeAndContent(id string) error
	// GetContent returns the content for a leaf id, or an empty default
	// content keyed by id when none is stored.
	GetContent(id string) (*models.Content, error)
	// SaveContent inserts or replaces a content record.
	SaveContent(c *models.Content) error
	// ExportAll returns a snapshot of every node and content record.
	ExportAll() (*models.Snapshot, error)
	// ImportAll atomically replaces all stored records with the snapshot's.
	ImportAll(snap *models.Snapshot) error
	Close() error
}

// Verify *DB satisfies Port at compile time.
var _ Port = (*DB)(nil)
