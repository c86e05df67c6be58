// Command serengeti runs one database node. A node discovers peers on
// its /24 subnet, replicates rows to a primary and a secondary holder,
// and serves queries over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/config"
	"github.com/ao/serengeti/pkg/health"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/persistence"
	"github.com/ao/serengeti/pkg/query"
	"github.com/ao/serengeti/pkg/replication"
	"github.com/ao/serengeti/pkg/server"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitDiskError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		port          = flag.Int("port", 0, "HTTP port (default 1985)")
		discoveryPort = flag.Int("discovery-port", 0, "discovery port, reserved (default 1986)")
		dataPath      = flag.String("data-path", "", "data directory (default ./data)")
		logLevel      = flag.String("log-level", "", "debug, info, warn, or error")
		configPath    = flag.String("config", "", "path to YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *discoveryPort != 0 {
		cfg.DiscoveryPort = *discoveryPort
	}
	if *dataPath != "" {
		cfg.DataPath = *dataPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.ApplyEnv()

	log := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	reg := metrics.DefaultRegistry()

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		log.Error("data path not writable", logging.Err(err))
		return exitDiskError
	}

	nodeID, err := cluster.LoadOrCreateNodeID(cfg.DataPath)
	if err != nil {
		log.Error("node identity unavailable", logging.Err(err))
		return exitDiskError
	}
	selfIP, err := cluster.DetectSelfIP()
	if err != nil {
		// No network is a degraded state, not a fatal one. The node
		// serves local queries until an interface appears.
		log.Warn("no usable network interface", logging.Err(err))
		selfIP = "127.0.0.1"
	}
	log.Info("node starting",
		logging.Node(nodeID),
		logging.String("ip", selfIP),
		logging.Int("port", cfg.Port))

	membership := cluster.NewMembership(nodeID, selfIP, log, reg)

	transport := replication.NewTransport(membership, replication.Options{
		HTTPPort:    cfg.Port,
		SendTimeout: cfg.NetworkTimeout,
		Logger:      log,
		Metrics:     reg,
	})

	cat, err := catalog.New(catalog.Options{
		DataPath:          cfg.DataPath,
		Sink:              transport,
		Logger:            log,
		MemTableMaxBytes:  cfg.MemTableMaxBytes,
		CompactionTrigger: cfg.CompactionTrigger,
		WALEnabled:        cfg.WALEnabled,
	})
	if err != nil {
		log.Error("catalog open failed", logging.Err(err))
		return exitDiskError
	}
	defer cat.Close()

	applier := replication.NewApplier(cat, membership, log)

	executor := query.NewExecutor(cat, query.Options{
		SelfID:        nodeID,
		Fetcher:       transport,
		MemoryBudget:  cfg.MemoryBudgetBytes,
		SpillDir:      os.TempDir(),
		Timeout:       cfg.QueryTimeout,
		CacheCapacity: cfg.CacheMaxEntries,
		CacheTTL:      cfg.CacheTTL,
		Logger:        log,
		Metrics:       reg,
	})

	sweeper := cluster.NewSweeper(membership, cluster.SweeperOptions{
		HTTPPort:     cfg.Port,
		PingInterval: cfg.PingInterval,
		ProbeTimeout: cfg.NetworkTimeout,
		Logger:       log,
		Metrics:      reg,
	})
	sweeper.Start()
	defer sweeper.Stop()

	reshuffler := cluster.NewReshuffler(membership, cat, transport,
		cfg.ReshuffleDelay, log, reg)
	reshuffler.Start()
	defer reshuffler.Stop()

	scheduler := persistence.NewScheduler(cat, membership.Online,
		cfg.PersistInterval, log, reg)
	scheduler.Start()
	defer scheduler.Stop()

	checker := health.NewChecker()
	checker.Register("storage", health.StorageCheck(cfg.DataPath))
	checker.Register("cluster", health.ClusterCheck(membership))
	checker.Register("persistence", health.SchedulerCheck(scheduler))

	var gs *server.GracefulServer
	srv := server.New(server.Options{
		Membership: membership,
		Catalog:    cat,
		Applier:    applier,
		Executor:   executor,
		Checker:    checker,
		AdminToken: cfg.AdminToken,
		Shutdown:   func() bool { return gs.IsShuttingDown() },
		Logger:     log,
		Metrics:    reg,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	gs = server.NewGracefulServer(addr, srv.Router(), cfg.ShutdownTimeout, log)

	// Tell whoever is already out there that we exist; the sweep picks
	// up the rest.
	go func() {
		time.Sleep(time.Second)
		transport.AnnounceJoin()
	}()

	if err := gs.Start(); err != nil {
		log.Error("server failed", logging.Err(err))
		return exitFatal
	}

	log.Info("node stopped", logging.Node(nodeID))
	return exitOK
}
