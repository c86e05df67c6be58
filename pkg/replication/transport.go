package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

// DefaultSendTimeout bounds one point-to-point send
const DefaultSendTimeout = 2500 * time.Millisecond

// Transport sends replication messages over HTTP. It satisfies the
// catalog's ReplicationSink so row writes replicate as they happen.
type Transport struct {
	membership *cluster.Membership
	client     *http.Client
	port       int

	rngMu sync.Mutex
	rng   *rand.Rand

	log     logging.Logger
	metrics *metrics.Registry
}

// Options configures a Transport
type Options struct {
	HTTPPort    int
	SendTimeout time.Duration
	Logger      logging.Logger
	Metrics     *metrics.Registry
}

// NewTransport creates the HTTP replication transport
func NewTransport(m *cluster.Membership, opts Options) *Transport {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	return &Transport{
		membership: m,
		client:     &http.Client{Timeout: opts.SendTimeout},
		port:       opts.HTTPPort,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

// SelfID returns the local node's id
func (t *Transport) SelfID() string { return t.membership.SelfID() }

// IPFromNodeID resolves a member id to its last known IP. Returns ""
// when the node is not a current member.
func (t *Transport) IPFromNodeID(id string) string {
	ip, err := t.membership.IPOf(id)
	if err != nil {
		return ""
	}
	return ip
}

// SendToNode delivers one message to one member. Returns true on a
// 2xx reply. Network errors are recorded in metrics and reported as
// false, never propagated.
func (t *Transport) SendToNode(nodeID string, msg *Message) bool {
	ip := t.IPFromNodeID(nodeID)
	if ip == "" {
		t.metrics.RecordReplicationSend(string(msg.Type), false)
		return false
	}
	ok := t.post(ip, msg)
	t.metrics.RecordReplicationSend(string(msg.Type), ok)
	if !ok {
		t.log.Warn("replication send failed",
			logging.Node(nodeID), logging.String("type", string(msg.Type)))
	}
	return ok
}

// BroadcastAllNodes fans a message out to every member except self.
// Fire-and-forget: sends run concurrently and failures are only
// counted.
func (t *Transport) BroadcastAllNodes(msg *Message) {
	self := t.membership.SelfID()
	for _, n := range t.membership.Members() {
		if n.ID == self {
			continue
		}
		go func(id string) {
			t.SendToNode(id, msg)
		}(n.ID)
	}
}

// PickPrimarySecondary chooses replica holders for a new row: two
// distinct members when the cluster has at least two, self-only
// otherwise. The pick is shuffled so load spreads across members.
func (t *Transport) PickPrimarySecondary() (string, string, bool) {
	members := t.membership.Members()
	if len(members) < 2 {
		return t.membership.SelfID(), "", false
	}

	ids := make([]string, len(members))
	for i, n := range members {
		ids[i] = n.ID
	}

	t.rngMu.Lock()
	t.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	t.rngMu.Unlock()

	return ids[0], ids[1], true
}

// SendInsert ships a row to a replica holder
func (t *Transport) SendInsert(nodeID, db, table string, row *storage.Row) bool {
	return t.SendToNode(nodeID, &Message{
		Type:     TypeReplicateInsert,
		Database: db,
		Table:    table,
		RowID:    row.ID,
		Row:      row,
	})
}

// SendUpdate ships an updated row to a replica holder
func (t *Transport) SendUpdate(nodeID, db, table string, row *storage.Row) bool {
	return t.SendToNode(nodeID, &Message{
		Type:     TypeReplicateUpdate,
		Database: db,
		Table:    table,
		RowID:    row.ID,
		Row:      row,
	})
}

// SendDelete tells a replica holder to drop a row
func (t *Transport) SendDelete(nodeID, db, table, rowID string) bool {
	return t.SendToNode(nodeID, &Message{
		Type:     TypeReplicateDelete,
		Database: db,
		Table:    table,
		RowID:    rowID,
	})
}

// BroadcastPlacement announces a row's holders to the whole cluster
func (t *Transport) BroadcastPlacement(db, table, rowID, primary, secondary string) {
	t.BroadcastAllNodes(&Message{
		Type:      TypePlacementUpdate,
		Database:  db,
		Table:     table,
		RowID:     rowID,
		Primary:   primary,
		Secondary: secondary,
	})
}

// AnnounceJoin tells every member this node exists, ahead of their
// next sweep.
func (t *Transport) AnnounceJoin() {
	self := t.membership.Self()
	t.BroadcastAllNodes(&Message{
		Type:   TypeJoinCluster,
		NodeID: self.ID,
		IP:     self.IP,
	})
}

func (t *Transport) post(ip string, msg *Message) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	url := fmt.Sprintf("http://%s:%d/post", ip, t.port)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
