package cluster

import (
	"sync"
	"time"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
)

// DefaultReshuffleDebounce is how long a node must stay gone before
// its replicas are moved. Transient unreachability within the window
// causes no data movement.
const DefaultReshuffleDebounce = 10 * time.Second

// Reshuffler re-places replicas held by lost nodes. It consumes the
// membership's lost-node stream, debounces it, and for every affected
// row picks a new holder, ships the row there, and broadcasts the new
// placement.
type Reshuffler struct {
	membership *Membership
	catalog    *catalog.Catalog
	sink       catalog.ReplicationSink
	debounce   time.Duration

	log     logging.Logger
	metrics *metrics.Registry

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReshuffler wires the reshuffle worker. sink carries the outbound
// replication sends; it is the same sink the catalog writes through.
func NewReshuffler(m *Membership, cat *catalog.Catalog, sink catalog.ReplicationSink,
	debounce time.Duration, log logging.Logger, reg *metrics.Registry) *Reshuffler {
	if debounce <= 0 {
		debounce = DefaultReshuffleDebounce
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Reshuffler{
		membership: m,
		catalog:    cat,
		sink:       sink,
		debounce:   debounce,
		log:        log,
		metrics:    reg,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the worker
func (r *Reshuffler) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop halts the worker. Pending lost-node events are dropped; the
// nodes will be detected as lost again on the next run.
func (r *Reshuffler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

func (r *Reshuffler) loop() {
	defer r.wg.Done()

	pending := make(map[string]Node)
	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case n := <-r.membership.Lost():
			if len(pending) == 0 {
				timer.Reset(r.debounce)
			}
			pending[n.ID] = n

		case <-timer.C:
			for _, n := range pending {
				// A node that rejoined during the debounce window
				// needs no reshuffle.
				if _, back := r.membership.Member(n.ID); back {
					continue
				}
				r.reshuffleNode(n)
			}
			pending = make(map[string]Node)

		case <-r.stopChan:
			timer.Stop()
			return
		}
	}
}

// reshuffleNode moves every replica the lost node held onto a live
// member, preserving the surviving holder's role.
func (r *Reshuffler) reshuffleNode(lost Node) {
	start := time.Now()
	moved := 0

	for _, db := range r.catalog.ListDatabases() {
		tables, err := r.catalog.ListTables(db)
		if err != nil {
			continue
		}
		for _, tbl := range tables {
			table, ok := r.catalog.Table(db, tbl)
			if !ok {
				continue
			}
			for _, rowID := range table.RowsHeldBy(lost.ID) {
				if r.replaceRow(db, tbl, table, rowID, lost.ID) {
					moved++
				}
			}
		}
	}

	r.metrics.ClusterReshuffles.Inc()
	r.log.Info("reshuffle complete",
		logging.Node(lost.ID),
		logging.Int("rows_moved", moved),
		logging.Duration("elapsed", time.Since(start)))
}

// replaceRow swaps the lost node out of one row's placement
func (r *Reshuffler) replaceRow(db, tbl string, table *catalog.Table, rowID, lostID string) bool {
	old, ok := table.PlacementOf(rowID)
	if !ok {
		return false
	}

	survivor := old.Primary
	if survivor == lostID {
		survivor = old.Secondary
	}

	replacement, ok := r.pickReplacement(lostID, survivor)
	if !ok {
		// Single-node remainder: fold the row back onto self.
		replacement = r.membership.SelfID()
	}

	primary, secondary := old.Primary, old.Secondary
	if primary == lostID {
		primary = replacement
	} else {
		secondary = replacement
	}

	row, err := r.catalog.Get(db, tbl, rowID)
	if err != nil {
		r.log.Error("reshuffle read failed",
			logging.Database(db), logging.Table(tbl), logging.Err(err))
		return false
	}
	if row != nil && replacement != r.membership.SelfID() {
		r.sink.SendInsert(replacement, db, tbl, row)
	}

	if err := r.catalog.ApplyPlacement(db, tbl, rowID, primary, secondary); err != nil {
		r.log.Error("reshuffle placement update failed",
			logging.Database(db), logging.Table(tbl), logging.Err(err))
		return false
	}
	r.sink.BroadcastPlacement(db, tbl, rowID, primary, secondary)
	return true
}

// pickReplacement chooses the first live member, by id order, that is
// neither the lost node nor already a holder of the row.
func (r *Reshuffler) pickReplacement(lostID, survivorID string) (string, bool) {
	for _, n := range r.membership.Members() {
		if n.ID == lostID || n.ID == survivorID {
			continue
		}
		return n.ID, true
	}
	return "", false
}
