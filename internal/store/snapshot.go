package store

import (
	"fmt"

	"github.com/starford/eihwaz/internal/apperr"
	"github.com/starford/eihwaz/internal/models"
)

// Export returns a self-contained snapshot of every node and content record.
func (s *Store) Export() (*models.Snapshot, error) {
	return s.port.ExportAll()
}

// Import atomically replaces all durable records with the snapshot's arrays
// (full replace, not merge), then reloads memory from the port and rebuilds
// the search index. Snapshots whose parent links form a cycle are rejected
// with ErrCycle before anything is replaced. Selection and expansion state
// cannot survive a full replace and are cleared.
func (s *Store) Import(snap *models.Snapshot) error {
	if err := validateParentLinks(snap.Nodes); err != nil {
		return err
	}
	if err := s.port.ImportAll(snap); err != nil {
		return err
	}
	s.selectedID = ""
	s.current = nil
	s.expanded = make(map[string]struct{})
	return s.Load()
}

// validateParentLinks walks every node's parent chain and rejects chains that
// revisit a node, including a node that is its own parent. Dangling parent
// ids are tolerated; those nodes surface as orphans after the reload.
func validateParentLinks(nodes []*models.Node) error {
	byID := make(map[string]*models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	safe := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		chain := make(map[string]struct{})
		for cur := n; cur != nil; {
			if _, ok := safe[cur.ID]; ok {
				break
			}
			if _, ok := chain[cur.ID]; ok {
				return fmt.Errorf("snapshot node %s: parent links form a cycle: %w", cur.ID, apperr.ErrCycle)
			}
			chain[cur.ID] = struct{}{}
			if cur.ParentID == nil {
				break
			}
			cur = byID[*cur.ParentID]
		}
		for id := range chain {
			safe[id] = struct{}{}
		}
	}
	return nil
}
