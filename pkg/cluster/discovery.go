package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
)

const (
	// DefaultPingInterval is the pause between discovery sweeps
	DefaultPingInterval = 5 * time.Second

	// DefaultProbeTimeout bounds a single probe of one address
	DefaultProbeTimeout = 2500 * time.Millisecond

	probeWorkers = 64
)

// SweeperOptions configures the discovery sweeper
type SweeperOptions struct {
	HTTPPort     int
	PingInterval time.Duration
	ProbeTimeout time.Duration
	Logger       logging.Logger
	Metrics      *metrics.Registry

	// Addrs overrides the /24 expansion of the local IP. Used by tests
	// and single-host setups.
	Addrs func() []string
}

// Sweeper probes the local /24 for peers and feeds the membership.
// One sweep runs at a time; a sweep obeys a global deadline of
// interval + probe timeout so a dead subnet cannot stall the loop.
type Sweeper struct {
	membership *Membership
	client     *http.Client
	opts       SweeperOptions

	log     logging.Logger
	metrics *metrics.Registry

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// probeReply is the identity envelope peers serve at GET /
type probeReply struct {
	This struct {
		ID string `json:"id"`
		IP string `json:"ip"`
	} `json:"this"`
}

// NewSweeper creates a sweeper over the given membership
func NewSweeper(m *Membership, opts SweeperOptions) *Sweeper {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	return &Sweeper{
		membership: m,
		client: &http.Client{
			Timeout: opts.ProbeTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				DisableKeepAlives:   false,
			},
		},
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels outstanding probes and waits for the loop to exit
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	s.SweepOnce()
	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-s.stopChan:
			return
		}
	}
}

// SweepOnce probes every candidate address, merges replies into the
// membership, evicts members that missed the sweep, and re-elects the
// coordinator.
func (s *Sweeper) SweepOnce() {
	sweepStart := time.Now()

	addrs := s.candidateAddrs()
	if addrs == nil {
		// No usable network. Keep the membership but mark us offline.
		s.membership.SetOnline(false)
		return
	}
	s.membership.SetOnline(true)
	s.membership.TouchSelf(sweepStart)

	ctx, cancel := context.WithDeadline(
		context.Background(),
		sweepStart.Add(s.opts.PingInterval+s.opts.ProbeTimeout),
	)
	defer cancel()

	// Stop cancels the sweep-wide context so probes end promptly.
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < probeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range work {
				s.probe(ctx, addr, sweepStart)
			}
		}()
	}
	for _, addr := range addrs {
		select {
		case work <- addr:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(work)
	wg.Wait()

	s.membership.EvictStale(sweepStart)
	s.membership.Elect()
	s.metrics.ClusterSweepsTotal.Inc()

	s.log.Debug("sweep complete",
		logging.Int("members", s.membership.Size()),
		logging.Duration("elapsed", time.Since(sweepStart)))
}

// probe fetches a peer's identity and upserts it into the membership
func (s *Sweeper) probe(ctx context.Context, addr string, sweepStart time.Time) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
	if err != nil {
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return
	}

	var reply probeReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&reply); err != nil {
		return
	}
	if reply.This.ID == "" || reply.This.ID == s.membership.SelfID() {
		return
	}
	ip := reply.This.IP
	if ip == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			ip = host
		}
	}
	s.membership.Upsert(reply.This.ID, ip, sweepStart)
}

// candidateAddrs returns the host:port list to probe this sweep, or
// nil when the local address cannot be determined.
func (s *Sweeper) candidateAddrs() []string {
	if s.opts.Addrs != nil {
		return s.opts.Addrs()
	}
	self := s.membership.Self()
	return SubnetAddrs(self.IP, s.opts.HTTPPort)
}

// SubnetAddrs expands an IPv4 address into its /24 neighborhood,
// host:port form, excluding the address itself, network, and broadcast.
func SubnetAddrs(selfIP string, port int) []string {
	ip := net.ParseIP(selfIP)
	if ip == nil {
		return nil
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}

	prefix := fmt.Sprintf("%d.%d.%d.", ip4[0], ip4[1], ip4[2])
	addrs := make([]string, 0, 253)
	for host := 1; host <= 254; host++ {
		if int(ip4[3]) == host {
			continue
		}
		addrs = append(addrs, fmt.Sprintf("%s%d:%d", prefix, host, port))
	}
	return addrs
}
