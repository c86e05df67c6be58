// Package cluster tracks the set of live nodes on the local subnet.
// Membership is fed by the discovery sweeper, elects the member with
// the numerically smallest IP as coordinator, and emits lost-node
// events for the reshuffle worker.
package cluster

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
)

// Node is one cluster member as seen by the local node
type Node struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	LastChecked time.Time `json:"last_checked"`
	Coordinator bool      `json:"coordinator"`
}

// Membership is the thread-safe map of currently visible nodes. The
// local node is always a member and is never evicted.
type Membership struct {
	self Node

	mu            sync.RWMutex
	nodes         map[string]*Node
	coordinatorID string

	online atomic.Bool

	lostChan chan Node

	log     logging.Logger
	metrics *metrics.Registry
}

// NewMembership creates a membership containing only the local node
func NewMembership(selfID, selfIP string, log logging.Logger, reg *metrics.Registry) *Membership {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	self := Node{ID: selfID, IP: selfIP, LastChecked: time.Now()}
	m := &Membership{
		self:     self,
		nodes:    map[string]*Node{selfID: &self},
		lostChan: make(chan Node, 64),
		log:      log,
		metrics:  reg,
	}
	m.electLocked()
	reg.ClusterSize.Set(1)
	return m
}

// Self returns the local node's identity
func (m *Membership) Self() Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.nodes[m.self.ID]
}

// SelfID returns the local node's id
func (m *Membership) SelfID() string { return m.self.ID }

// Upsert records a probe reply, stamping the node with the sweep start
// time so it survives the post-sweep eviction.
func (m *Membership) Upsert(id, ip string, checkedAt time.Time) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.nodes[id]; ok {
		n.IP = ip
		n.LastChecked = checkedAt
		return
	}
	m.nodes[id] = &Node{ID: id, IP: ip, LastChecked: checkedAt}
	m.metrics.ClusterSize.Set(float64(len(m.nodes)))
	m.log.Info("node joined", logging.Node(id), logging.String("ip", ip))
}

// EvictStale removes every node, except self, whose LastChecked
// predates sweepStart. Evicted nodes are returned and queued on the
// lost-node channel for the reshuffle worker.
func (m *Membership) EvictStale(sweepStart time.Time) []Node {
	m.mu.Lock()

	var lost []Node
	for id, n := range m.nodes {
		if id == m.self.ID {
			continue
		}
		if n.LastChecked.Before(sweepStart) {
			lost = append(lost, *n)
			delete(m.nodes, id)
		}
	}
	m.metrics.ClusterSize.Set(float64(len(m.nodes)))
	m.electLocked()
	m.mu.Unlock()

	for _, n := range lost {
		m.metrics.ClusterNodesLost.Inc()
		m.log.Warn("node lost", logging.Node(n.ID), logging.String("ip", n.IP))
		select {
		case m.lostChan <- n:
		default:
			m.log.Error("lost-node queue full, dropping event", logging.Node(n.ID))
		}
	}
	return lost
}

// Members returns a snapshot of all nodes, sorted by id
func (m *Membership) Members() []Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Member looks up a node by id
func (m *Membership) Member(id string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// IPOf resolves a node id to its last known IP
func (m *Membership) IPOf(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return "", ErrNodeNotFound
	}
	return n.IP, nil
}

// Size returns the number of visible members, including self
func (m *Membership) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Coordinator returns the currently elected coordinator
func (m *Membership) Coordinator() (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[m.coordinatorID]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// IsCoordinator reports whether the local node holds the coordinator role
func (m *Membership) IsCoordinator() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coordinatorID == m.self.ID
}

// Elect re-runs coordinator election over the current members
func (m *Membership) Elect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.electLocked()
}

// electLocked picks the member with the numerically smallest IP.
// Caller holds mu.
func (m *Membership) electLocked() {
	var winner *Node
	var winnerOrd uint64
	for _, n := range m.nodes {
		ord, ok := ipOrdinal(n.IP)
		if !ok {
			continue
		}
		if winner == nil || ord < winnerOrd {
			winner, winnerOrd = n, ord
		}
	}
	for _, n := range m.nodes {
		n.Coordinator = false
	}
	if winner == nil {
		m.coordinatorID = ""
		return
	}
	winner.Coordinator = true
	if m.coordinatorID != winner.ID {
		m.log.Info("coordinator elected",
			logging.Node(winner.ID), logging.String("ip", winner.IP))
	}
	m.coordinatorID = winner.ID
}

// TouchSelf refreshes the local node's liveness stamp
func (m *Membership) TouchSelf(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[m.self.ID].LastChecked = at
}

// Online reports whether the node considers itself connected to a
// usable network. The flag is owned here and set by the sweeper.
func (m *Membership) Online() bool { return m.online.Load() }

// SetOnline flips the online flag and its gauge
func (m *Membership) SetOnline(v bool) {
	m.online.Store(v)
	m.metrics.SetOnline(v)
}

// Lost exposes the lost-node event stream consumed by the reshuffler
func (m *Membership) Lost() <-chan Node { return m.lostChan }

// ipOrdinal maps a dotted-quad IPv4 address onto its numeric value so
// addresses compare the way their concatenated octets do.
func ipOrdinal(ip string) (uint64, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, false
	}
	ip4 := parsed.To4()
	if ip4 == nil {
		return 0, false
	}
	return uint64(ip4[0])<<24 | uint64(ip4[1])<<16 | uint64(ip4[2])<<8 | uint64(ip4[3]), true
}
