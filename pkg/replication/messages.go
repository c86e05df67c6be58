// Package replication ships rows and placement decisions between
// cluster members. The transport is HTTP: every message is a JSON
// object with a type tag, POSTed to the peer's /post endpoint.
// Delivery is best-effort; failures are counted and swallowed, the
// caller decides whether to retry.
package replication

import "github.com/ao/serengeti/pkg/storage"

// MessageType tags the wire format of a replication message
type MessageType string

const (
	TypeReplicateInsert MessageType = "ReplicateInsert"
	TypeReplicateUpdate MessageType = "ReplicateUpdate"
	TypeReplicateDelete MessageType = "ReplicateDelete"
	TypePlacementUpdate MessageType = "PlacementUpdate"
	TypeMetaSync        MessageType = "MetaSync"
	TypeMetaRequest     MessageType = "MetaRequest"
	TypeJoinCluster     MessageType = "JoinCluster"
)

// Wire aliases kept for compatibility with the original protocol.
// NormalizeType folds them onto the canonical constants.
const (
	aliasInsertObject       MessageType = "ReplicateInsertObject"
	aliasUpdateObject       MessageType = "ReplicateUpdateObject"
	aliasDeleteObject       MessageType = "ReplicateDeleteObject"
	aliasTableReplica       MessageType = "TableReplicaObject"
	aliasTableReplicaInsert MessageType = "TableReplicaObjectInsertOrReplace"
)

// NormalizeType maps wire aliases onto canonical message types
func NormalizeType(t MessageType) MessageType {
	switch t {
	case aliasInsertObject, aliasTableReplicaInsert:
		return TypeReplicateInsert
	case aliasUpdateObject:
		return TypeReplicateUpdate
	case aliasDeleteObject:
		return TypeReplicateDelete
	case aliasTableReplica:
		return TypePlacementUpdate
	default:
		return t
	}
}

// Message is the single envelope for all replication traffic. Fields
// are populated per type; unused fields are omitted on the wire.
type Message struct {
	Type MessageType `json:"type"`

	Database string       `json:"db,omitempty"`
	Table    string       `json:"table,omitempty"`
	RowID    string       `json:"row_id,omitempty"`
	Row      *storage.Row `json:"row,omitempty"`

	// Placement fields, used by PlacementUpdate
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`

	// Sender identity, used by JoinCluster
	NodeID string `json:"node_id,omitempty"`
	IP     string `json:"ip,omitempty"`

	// Catalog snapshot, used by MetaSync
	Meta *MetaSnapshot `json:"meta,omitempty"`
}

// MetaSnapshot carries the schema portion of the catalog so a joining
// node can mirror databases and tables before rows arrive.
type MetaSnapshot struct {
	Databases []DatabaseMeta `json:"databases"`
}

// DatabaseMeta is one database in a MetaSync payload
type DatabaseMeta struct {
	Name   string      `json:"name"`
	Tables []TableMeta `json:"tables"`
}

// TableMeta is one table definition in a MetaSync payload
type TableMeta struct {
	Name    string            `json:"name"`
	Columns map[string]string `json:"columns"`
}
