package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const replicaFileName = "replica.bin"

func (t *Table) replicaPath() string {
	return filepath.Join(t.dir, replicaFileName)
}

// loadReplicas reads the persisted placement map, tolerating a missing
// file on first open
func (t *Table) loadReplicas() error {
	data, err := os.ReadFile(t.replicaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	replicas := make(map[string]Placement)
	if err := json.Unmarshal(data, &replicas); err != nil {
		return err
	}

	t.mu.Lock()
	t.replicas = replicas
	t.mu.Unlock()
	return nil
}

// saveReplicas atomically persists the placement map
func (t *Table) saveReplicas() error {
	data, err := json.Marshal(t.Placements())
	if err != nil {
		return err
	}
	tmp := t.replicaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, t.replicaPath())
}

// setPlacement records the holders of a row
func (t *Table) setPlacement(rowID string, p Placement) {
	t.mu.Lock()
	t.replicas[rowID] = p
	t.mu.Unlock()
}

func (t *Table) removePlacement(rowID string) {
	t.mu.Lock()
	delete(t.replicas, rowID)
	t.mu.Unlock()
}

// PlacementOf returns the holders of a row
func (t *Table) PlacementOf(rowID string) (Placement, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.replicas[rowID]
	return p, ok
}

// Placements returns a copy of the full placement map
func (t *Table) Placements() map[string]Placement {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Placement, len(t.replicas))
	for id, p := range t.replicas {
		out[id] = p
	}
	return out
}

// RowsHeldBy returns the row ids for which the node is a holder
func (t *Table) RowsHeldBy(nodeID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0)
	for id, p := range t.replicas {
		if p.Primary == nodeID || p.Secondary == nodeID {
			ids = append(ids, id)
		}
	}
	return ids
}
