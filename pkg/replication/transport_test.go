package replication

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

// peerServer records every message POSTed to /post
type peerServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	messages []Message
}

func newPeerServer(t *testing.T) *peerServer {
	t.Helper()
	p := &peerServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.messages = append(p.messages, msg)
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peerServer) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(p.srv.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func (p *peerServer) received() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

func testRow() *storage.Row {
	return &storage.Row{
		ID: "row-1",
		Columns: map[string]storage.Value{
			"name": storage.StringValue("A"),
		},
	}
}

func TestSendToNodeDeliversMessage(t *testing.T) {
	peer := newPeerServer(t)

	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	m.Upsert("n2", "127.0.0.1", time.Now())

	tr := NewTransport(m, Options{HTTPPort: peer.port(t), Metrics: metrics.NewRegistry()})

	if !tr.SendInsert("n2", "app", "users", testRow()) {
		t.Fatal("send reported failure")
	}

	msgs := peer.received()
	if len(msgs) != 1 {
		t.Fatalf("peer received %d messages", len(msgs))
	}
	got := msgs[0]
	if got.Type != TypeReplicateInsert || got.Database != "app" || got.Table != "users" {
		t.Errorf("message = %+v", got)
	}
	if got.Row == nil || got.Row.ID != "row-1" {
		t.Errorf("row did not survive the wire: %+v", got.Row)
	}
	if name, _ := got.Row.Get("name").AsString(); name != "A" {
		t.Errorf("column value = %q", name)
	}
}

func TestSendToUnknownNodeFails(t *testing.T) {
	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	tr := NewTransport(m, Options{HTTPPort: 1985, Metrics: metrics.NewRegistry()})

	if tr.SendDelete("ghost", "app", "users", "row-1") {
		t.Error("send to unknown node reported success")
	}
}

func TestSendSwallowsNetworkErrors(t *testing.T) {
	peer := newPeerServer(t)
	port := peer.port(t)
	peer.srv.Close()

	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	m.Upsert("n2", "127.0.0.1", time.Now())
	tr := NewTransport(m, Options{
		HTTPPort:    port,
		SendTimeout: 200 * time.Millisecond,
		Metrics:     metrics.NewRegistry(),
	})

	if tr.SendInsert("n2", "app", "users", testRow()) {
		t.Error("send to dead peer reported success")
	}
}

func TestBroadcastSkipsSelf(t *testing.T) {
	peer := newPeerServer(t)

	m := cluster.NewMembership("n1", "127.0.0.1", nil, metrics.NewRegistry())
	m.Upsert("n2", "127.0.0.1", time.Now())
	tr := NewTransport(m, Options{HTTPPort: peer.port(t), Metrics: metrics.NewRegistry()})

	tr.BroadcastPlacement("app", "users", "row-1", "n1", "n2")

	deadline := time.After(2 * time.Second)
	for len(peer.received()) < 1 {
		select {
		case <-deadline:
			t.Fatal("broadcast never arrived")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Self shares the peer's IP here, so one message, not two, proves
	// the sender excluded itself.
	time.Sleep(50 * time.Millisecond)
	msgs := peer.received()
	if len(msgs) != 1 {
		t.Fatalf("broadcast produced %d sends, want 1", len(msgs))
	}
	if msgs[0].Type != TypePlacementUpdate || msgs[0].Primary != "n1" || msgs[0].Secondary != "n2" {
		t.Errorf("placement message = %+v", msgs[0])
	}
}

func TestPickPrimarySecondary(t *testing.T) {
	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	tr := NewTransport(m, Options{HTTPPort: 1985, Metrics: metrics.NewRegistry()})

	// Alone: self-only placement.
	p, s, clustered := tr.PickPrimarySecondary()
	if clustered || p != "n1" || s != "" {
		t.Errorf("solo pick = %q, %q, %v", p, s, clustered)
	}

	now := time.Now()
	m.Upsert("n2", "10.0.0.2", now)
	m.Upsert("n3", "10.0.0.3", now)

	valid := map[string]bool{"n1": true, "n2": true, "n3": true}
	for i := 0; i < 50; i++ {
		p, s, clustered = tr.PickPrimarySecondary()
		if !clustered {
			t.Fatal("clustered pick reported solo")
		}
		if p == s {
			t.Fatalf("primary == secondary: %q", p)
		}
		if !valid[p] || !valid[s] {
			t.Fatalf("pick outside membership: %q, %q", p, s)
		}
	}
}

func TestIPFromNodeID(t *testing.T) {
	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	m.Upsert("n2", "10.0.0.2", time.Now())
	tr := NewTransport(m, Options{HTTPPort: 1985, Metrics: metrics.NewRegistry()})

	if ip := tr.IPFromNodeID("n2"); ip != "10.0.0.2" {
		t.Errorf("ip = %q", ip)
	}
	if ip := tr.IPFromNodeID("ghost"); ip != "" {
		t.Errorf("unknown node resolved to %q", ip)
	}
}
