// Package server is the HTTP boundary: node identity, health,
// metrics, the replication endpoint, and the query endpoint.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/health"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/query"
	"github.com/ao/serengeti/pkg/replication"
)

// Version is reported by GET /
const Version = "0.1.0"

const maxQueryBodyBytes = 4 << 20

// Server wires the HTTP routes over the node's subsystems
type Server struct {
	membership *cluster.Membership
	catalog    *catalog.Catalog
	applier    *replication.Applier
	executor   *query.Executor
	checker    *health.Checker

	adminToken string
	shutdown   func() bool // reports whether shutdown started

	log     logging.Logger
	metrics *metrics.Registry
}

// Options configures a Server
type Options struct {
	Membership *cluster.Membership
	Catalog    *catalog.Catalog
	Applier    *replication.Applier
	Executor   *query.Executor
	Checker    *health.Checker
	AdminToken string
	Shutdown   func() bool
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// New creates a Server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	if opts.Shutdown == nil {
		opts.Shutdown = func() bool { return false }
	}
	if opts.Checker == nil {
		opts.Checker = health.NewChecker()
	}
	return &Server{
		membership: opts.Membership,
		catalog:    opts.Catalog,
		applier:    opts.Applier,
		executor:   opts.Executor,
		checker:    opts.Checker,
		adminToken: opts.AdminToken,
		shutdown:   opts.Shutdown,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Router builds the chi router with all routes and middleware
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverPanics)
	r.Use(s.recordRequests)

	r.Get("/", s.handleIdentity)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/admin", s.handleAdmin)
	r.Get("/meta", s.handleMeta)
	r.Post("/post", s.handlePost)
	r.Post("/query", s.handleQuery)

	return r
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	self, _ := s.membership.Member(s.membership.SelfID())
	coordinatorID := ""
	if coord, ok := s.membership.Coordinator(); ok {
		coordinatorID = coord.ID
	}
	resp := map[string]any{
		"this": map[string]any{
			"id":      self.ID,
			"ip":      self.IP,
			"version": Version,
		},
		"cluster": map[string]any{
			"size":        s.membership.Size(),
			"coordinator": coordinatorID,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.checker.Check()
	code := http.StatusOK
	if resp.Status == health.StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if s.adminToken == "" || token != s.adminToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": []string{
			"optimization enable", "optimization disable", "optimization status",
			"optimization level <n>", "cache enable", "cache disable",
			"cache clear", "cache stats", "statistics collect", "delete everything",
		},
	})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	meta := make(map[string][]string)
	for _, db := range s.catalog.ListDatabases() {
		tables, err := s.catalog.ListTables(db)
		if err != nil {
			continue
		}
		meta[db] = tables
	}
	writeJSON(w, http.StatusOK, meta)
}

// handlePost applies one replication message. MetaRequest gets the
// node's MetaSync snapshot back; everything else acks.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var msg replication.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes)).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message body"})
		return
	}

	reply, err := s.applier.Apply(&msg)
	if err != nil {
		s.log.Warn("replication message rejected",
			logging.String("type", string(msg.Type)), logging.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if reply != nil {
		writeJSON(w, http.StatusOK, reply)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.shutdown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	script := strings.TrimSpace(string(body))
	if script == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty query"})
		return
	}

	results := s.executor.ExecuteScript(script)
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
