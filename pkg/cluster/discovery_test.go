package cluster

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ao/serengeti/pkg/metrics"
)

func identityHandler(id, ip string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"this":{"id":%q,"ip":%q}}`, id, ip)
	}
}

func newTestSweeper(m *Membership, addrs func() []string) *Sweeper {
	return NewSweeper(m, SweeperOptions{
		PingInterval: 50 * time.Millisecond,
		ProbeTimeout: 500 * time.Millisecond,
		Metrics:      metrics.NewRegistry(),
		Addrs:        addrs,
	})
}

func TestSubnetAddrs(t *testing.T) {
	addrs := SubnetAddrs("192.168.1.42", 1985)
	if len(addrs) != 253 {
		t.Fatalf("len = %d, want 253", len(addrs))
	}
	for _, a := range addrs {
		if !strings.HasPrefix(a, "192.168.1.") {
			t.Fatalf("address outside subnet: %s", a)
		}
		if a == "192.168.1.42:1985" {
			t.Fatal("self address included")
		}
	}
	if addrs[0] != "192.168.1.1:1985" || addrs[len(addrs)-1] != "192.168.1.254:1985" {
		t.Errorf("range ends = %s .. %s", addrs[0], addrs[len(addrs)-1])
	}

	if SubnetAddrs("garbage", 1985) != nil {
		t.Error("unparseable self IP produced addresses")
	}
}

func TestSweepDiscoversPeer(t *testing.T) {
	peer := httptest.NewServer(identityHandler("peer1", "10.0.0.9"))
	defer peer.Close()

	m := NewMembership("self", "127.0.0.1", nil, metrics.NewRegistry())
	addr := strings.TrimPrefix(peer.URL, "http://")
	s := newTestSweeper(m, func() []string { return []string{addr} })

	s.SweepOnce()

	if !m.Online() {
		t.Error("node offline after successful sweep")
	}
	n, ok := m.Member("peer1")
	if !ok {
		t.Fatal("peer not discovered")
	}
	if n.IP != "10.0.0.9" {
		t.Errorf("peer ip = %q", n.IP)
	}
}

func TestSweepEvictsUnreachablePeer(t *testing.T) {
	peer := httptest.NewServer(identityHandler("peer1", "10.0.0.9"))

	m := NewMembership("self", "127.0.0.1", nil, metrics.NewRegistry())
	addr := strings.TrimPrefix(peer.URL, "http://")
	s := newTestSweeper(m, func() []string { return []string{addr} })

	s.SweepOnce()
	if _, ok := m.Member("peer1"); !ok {
		t.Fatal("peer not discovered")
	}

	peer.Close()
	s.SweepOnce()

	if _, ok := m.Member("peer1"); ok {
		t.Error("unreachable peer survived the sweep")
	}
	select {
	case n := <-m.Lost():
		if n.ID != "peer1" {
			t.Errorf("lost event for %q", n.ID)
		}
	default:
		t.Error("eviction produced no lost event")
	}
}

func TestSweepIgnoresSelfReply(t *testing.T) {
	// A probe that loops back to our own listener must not register a
	// phantom member.
	self := httptest.NewServer(identityHandler("self", "127.0.0.1"))
	defer self.Close()

	m := NewMembership("self", "127.0.0.1", nil, metrics.NewRegistry())
	addr := strings.TrimPrefix(self.URL, "http://")
	s := newTestSweeper(m, func() []string { return []string{addr} })

	s.SweepOnce()
	if m.Size() != 1 {
		t.Errorf("size = %d after self-probe, want 1", m.Size())
	}
}

func TestSweepGoesOfflineWithoutNetwork(t *testing.T) {
	m := NewMembership("self", "127.0.0.1", nil, metrics.NewRegistry())
	m.SetOnline(true)
	s := newTestSweeper(m, func() []string { return nil })

	s.SweepOnce()
	if m.Online() {
		t.Error("node online with no usable addresses")
	}
}

func TestSweeperStartStop(t *testing.T) {
	peer := httptest.NewServer(identityHandler("peer1", "10.0.0.9"))
	defer peer.Close()

	m := NewMembership("self", "127.0.0.1", nil, metrics.NewRegistry())
	addr := strings.TrimPrefix(peer.URL, "http://")
	s := newTestSweeper(m, func() []string { return []string{addr} })

	s.Start()
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := m.Member("peer1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("peer never discovered by the loop")
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop()
}
