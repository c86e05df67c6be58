package query

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ao/serengeti/pkg/storage"
	"github.com/golang/snappy"
)

// spillFile names carry the query id, operation id, and a monotonic
// counter so concurrent queries never collide in the spill directory.
func spillFile(dir, queryID, opID string, counter int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s-%06d.spill", queryID, opID, counter))
}

// writeSpill snappy-compresses the JSON-encoded rows into path
func writeSpill(path string, rows []*storage.Row) (int64, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return 0, err
	}
	compressed := snappy.Encode(nil, raw)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

// readSpill loads rows back from a spill file
func readSpill(path string) ([]*storage.Row, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}
	var rows []*storage.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func rowsBytes(rows []*storage.Row) int64 {
	var total int64
	for _, r := range rows {
		total += int64(len(r.ID))
		for name, v := range r.Columns {
			total += int64(len(name)) + int64(len(fmt.Sprintf("%v", v.Data))) + 16
		}
	}
	return total
}
