package replication

import (
	"fmt"
	"time"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage"
)

// Applier lands inbound replication messages in the local catalog.
// The HTTP server feeds it from POST /post.
type Applier struct {
	catalog    *catalog.Catalog
	membership *cluster.Membership
	log        logging.Logger
}

// NewApplier wires the inbound side of replication
func NewApplier(cat *catalog.Catalog, m *cluster.Membership, log logging.Logger) *Applier {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Applier{catalog: cat, membership: m, log: log}
}

// Apply dispatches one message. Replicated writes land without
// re-replicating, so messages never echo around the cluster. The
// returned reply is non-nil only for MetaRequest.
func (a *Applier) Apply(msg *Message) (*Message, error) {
	switch NormalizeType(msg.Type) {
	case TypeReplicateInsert, TypeReplicateUpdate:
		if msg.Row == nil {
			return nil, fmt.Errorf("%s without a row", msg.Type)
		}
		if err := a.catalog.ApplyReplicatedInsert(msg.Database, msg.Table, msg.Row); err != nil {
			return nil, err
		}
		// TableReplicaObjectInsertOrReplace carries placement too.
		if msg.Primary != "" {
			return nil, a.catalog.ApplyPlacement(msg.Database, msg.Table, msg.Row.ID, msg.Primary, msg.Secondary)
		}
		return nil, nil

	case TypeReplicateDelete:
		return nil, a.catalog.ApplyReplicatedDelete(msg.Database, msg.Table, msg.RowID)

	case TypePlacementUpdate:
		return nil, a.catalog.ApplyPlacement(msg.Database, msg.Table, msg.RowID, msg.Primary, msg.Secondary)

	case TypeJoinCluster:
		if msg.NodeID == "" || msg.IP == "" {
			return nil, fmt.Errorf("JoinCluster without identity")
		}
		a.membership.Upsert(msg.NodeID, msg.IP, time.Now())
		return nil, nil

	case TypeMetaSync:
		if msg.Meta == nil {
			return nil, fmt.Errorf("MetaSync without a snapshot")
		}
		return nil, a.applyMeta(msg.Meta)

	case TypeMetaRequest:
		return &Message{Type: TypeMetaSync, Meta: BuildMetaSnapshot(a.catalog)}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// applyMeta mirrors missing databases and tables from a peer's
// snapshot. Existing objects are left alone.
func (a *Applier) applyMeta(meta *MetaSnapshot) error {
	for _, db := range meta.Databases {
		if !a.catalog.DatabaseExists(db.Name) {
			if err := a.catalog.CreateDatabase(db.Name); err != nil {
				return err
			}
		}
		for _, tbl := range db.Tables {
			if a.catalog.TableExists(db.Name, tbl.Name) {
				continue
			}
			if err := a.catalog.CreateTable(db.Name, tbl.Name, storage.NewSchema(tbl.Columns)); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildMetaSnapshot captures the catalog's schema for a MetaSync
func BuildMetaSnapshot(cat *catalog.Catalog) *MetaSnapshot {
	snap := &MetaSnapshot{}
	for _, db := range cat.ListDatabases() {
		dbMeta := DatabaseMeta{Name: db}
		tables, err := cat.ListTables(db)
		if err != nil {
			continue
		}
		for _, name := range tables {
			tbl, ok := cat.Table(db, name)
			if !ok {
				continue
			}
			cols := make(map[string]string)
			if tbl.Schema != nil {
				for _, c := range tbl.Schema.Columns {
					cols[c.Name] = c.Type.String()
				}
			}
			dbMeta.Tables = append(dbMeta.Tables, TableMeta{Name: name, Columns: cols})
		}
		snap.Databases = append(snap.Databases, dbMeta)
	}
	return snap
}
