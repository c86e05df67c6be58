package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/health"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/query"
	"github.com/ao/serengeti/pkg/replication"
	"github.com/ao/serengeti/pkg/storage"
)

type testNode struct {
	server     *httptest.Server
	catalog    *catalog.Catalog
	membership *cluster.Membership
	checker    *health.Checker
	shutdown   bool
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	reg := metrics.NewRegistry()
	cat, err := catalog.New(catalog.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	membership := cluster.NewMembership("self", "10.0.0.5", nil, reg)
	applier := replication.NewApplier(cat, membership, nil)
	executor := query.NewExecutor(cat, query.Options{SpillDir: t.TempDir(), Metrics: reg})
	checker := health.NewChecker()

	node := &testNode{catalog: cat, membership: membership, checker: checker}
	srv := New(Options{
		Membership: membership,
		Catalog:    cat,
		Applier:    applier,
		Executor:   executor,
		Checker:    checker,
		AdminToken: "sekrit",
		Shutdown:   func() bool { return node.shutdown },
		Metrics:    reg,
	})
	node.server = httptest.NewServer(srv.Router())
	t.Cleanup(node.server.Close)
	return node
}

func (n *testNode) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(n.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func (n *testNode) query(t *testing.T, script string) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := http.Post(n.server.URL+"/query", "text/plain", strings.NewReader(script))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var results []map[string]any
	json.NewDecoder(resp.Body).Decode(&results)
	return resp, results
}

func TestIdentityEndpoint(t *testing.T) {
	n := newTestNode(t)
	resp, body := n.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	this := body["this"].(map[string]any)
	if this["id"] != "self" || this["ip"] != "10.0.0.5" {
		t.Fatalf("this = %v", this)
	}
	clusterInfo := body["cluster"].(map[string]any)
	if clusterInfo["size"] != float64(1) {
		t.Fatalf("cluster = %v", clusterInfo)
	}
}

func TestHealthEndpoint(t *testing.T) {
	n := newTestNode(t)
	resp, body := n.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "UP" {
		t.Fatalf("health = %v", body["status"])
	}

	n.checker.Register("broken", func() health.Check {
		return health.Check{Status: health.StatusDown, Message: "disk gone"}
	})
	resp, body = n.get(t, "/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d with DOWN component", resp.StatusCode)
	}
	if body["status"] != "DOWN" {
		t.Fatalf("health = %v", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	n := newTestNode(t)
	resp, body := n.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, section := range []string{"system", "runtime", "server", "network"} {
		if _, ok := body[section]; !ok {
			t.Errorf("section %q missing: %v", section, body)
		}
	}
}

func TestAdminRequiresBearerToken(t *testing.T) {
	n := newTestNode(t)

	resp, _ := n.get(t, "/admin")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, n.server.URL+"/admin", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d", authed.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(authed.Body).Decode(&body)
	if _, ok := body["commands"]; !ok {
		t.Fatalf("admin body = %v", body)
	}
}

func TestQueryEndpoint(t *testing.T) {
	n := newTestNode(t)

	resp, results := n.query(t, "create database app; create table app.users (id int, name varchar)")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(results) != 2 || results[0]["executed"] != true {
		t.Fatalf("results = %v", results)
	}

	n.query(t, "insert into app.users (id, name) values (1, 'ada')")
	_, results = n.query(t, "select * from app.users")
	list := results[0]["list"].([]any)
	if len(list) != 1 {
		t.Fatalf("list = %v", list)
	}
}

func TestQueryRejectsEmptyBody(t *testing.T) {
	n := newTestNode(t)
	resp, err := http.Post(n.server.URL+"/query", "text/plain", strings.NewReader("  \n "))
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestQueryRefusedDuringShutdown(t *testing.T) {
	n := newTestNode(t)
	n.shutdown = true
	resp, _ := n.query(t, "show databases")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d while shutting down", resp.StatusCode)
	}
}

func TestPostAppliesReplicationMessage(t *testing.T) {
	n := newTestNode(t)
	n.query(t, "create database app; create table app.users (id int, name varchar)")

	msg := replication.Message{
		Type:     replication.TypeReplicateInsert,
		Database: "app",
		Table:    "users",
		Row: &storage.Row{
			ID: "r1",
			Columns: map[string]storage.Value{
				"id":   storage.FromNative(int64(1)),
				"name": storage.FromNative("ada"),
			},
		},
	}
	raw, _ := json.Marshal(msg)
	resp, err := http.Post(n.server.URL+"/post", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	row, err := n.catalog.Get("app", "users", "r1")
	if err != nil || row == nil {
		t.Fatalf("replicated row missing: %v", err)
	}
}

func TestPostMetaRequestRepliesWithSnapshot(t *testing.T) {
	n := newTestNode(t)
	n.query(t, "create database app; create table app.users (id int)")

	raw, _ := json.Marshal(replication.Message{Type: replication.TypeMetaRequest})
	resp, err := http.Post(n.server.URL+"/post", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var reply replication.Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != replication.TypeMetaSync || reply.Meta == nil {
		t.Fatalf("reply = %+v", reply)
	}
	if len(reply.Meta.Databases) != 1 || reply.Meta.Databases[0].Name != "app" {
		t.Fatalf("meta = %+v", reply.Meta)
	}
}

func TestPostRejectsGarbage(t *testing.T) {
	n := newTestNode(t)
	resp, err := http.Post(n.server.URL+"/post", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMetaEndpoint(t *testing.T) {
	n := newTestNode(t)
	n.query(t, "create database app; create table app.users (id int); create table app.orders (id int)")

	resp, body := n.get(t, "/meta")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	tables, ok := body["app"].([]any)
	if !ok || len(tables) != 2 {
		t.Fatalf("meta = %v", body)
	}
}
