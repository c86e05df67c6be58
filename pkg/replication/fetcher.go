package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// FetchRow pulls one row from a holder by querying its /query endpoint
// with an _id filter. A miss or any transport failure returns false;
// the caller falls back to the other holder or skips the row.
func (t *Transport) FetchRow(db, table, rowID, holderID string) (*storage.Row, bool) {
	ip := t.IPFromNodeID(holderID)
	if ip == "" {
		return nil, false
	}

	script := fmt.Sprintf("SELECT * FROM %s.%s WHERE _id = '%s'",
		db, table, strings.ReplaceAll(rowID, "'", "''"))
	url := fmt.Sprintf("http://%s:%d/query", ip, t.port)

	resp, err := t.client.Post(url, "text/plain", bytes.NewBufferString(script))
	if err != nil {
		return nil, false
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var results []struct {
		Executed bool             `json:"executed"`
		List     []map[string]any `json:"list"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&results); err != nil {
		return nil, false
	}
	if len(results) == 0 || !results[0].Executed || len(results[0].List) == 0 {
		return nil, false
	}

	raw := results[0].List[0]
	row := &storage.Row{ID: rowID, Columns: make(map[string]storage.Value, len(raw))}
	for name, v := range raw {
		if name == "_id" {
			continue
		}
		row.Columns[name] = storage.FromNative(v)
	}
	return row, true
}
