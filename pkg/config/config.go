package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the full node configuration. Everything has a working
// default; operators normally set only the port and data path.
type Config struct {
	// Server
	Port          int    `yaml:"port" validate:"required,min=1,max=65535"`
	DiscoveryPort int    `yaml:"discovery_port" validate:"required,min=1,max=65535"`
	DataPath      string `yaml:"data_path" validate:"required"`
	LogLevel      string `yaml:"log_level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	AdminToken    string `yaml:"admin_token"`

	// Cluster
	PingInterval    time.Duration `yaml:"ping_interval" validate:"min=100ms"`
	NetworkTimeout  time.Duration `yaml:"network_timeout" validate:"min=10ms"`
	ReshuffleDelay  time.Duration `yaml:"reshuffle_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Persistence
	PersistInterval time.Duration `yaml:"persist_interval" validate:"min=1s"`

	// Storage
	MemTableMaxBytes  int  `yaml:"memtable_max_bytes" validate:"min=1024"`
	CompactionTrigger int  `yaml:"compaction_trigger" validate:"min=2"`
	WALEnabled        bool `yaml:"wal_enabled"`

	// Query
	MemoryBudgetBytes   int64         `yaml:"memory_budget_bytes" validate:"min=1048576"`
	QueryMemoryFraction float64       `yaml:"query_memory_fraction" validate:"gt=0,lte=1"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries     int           `yaml:"cache_max_entries" validate:"min=0"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		Port:                1985,
		DiscoveryPort:       1986,
		DataPath:            "./data",
		LogLevel:            "info",
		PingInterval:        5 * time.Second,
		NetworkTimeout:      2500 * time.Millisecond,
		ReshuffleDelay:      10 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		PersistInterval:     60 * time.Second,
		MemTableMaxBytes:    4 * 1024 * 1024,
		CompactionTrigger:   3,
		WALEnabled:          true,
		MemoryBudgetBytes:   256 * 1024 * 1024,
		QueryMemoryFraction: 0.7,
		QueryTimeout:        0, // unbounded unless set per request
		CacheTTL:            60 * time.Second,
		CacheMaxEntries:     1024,
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides. SERENGETI_DATA_PATH wins over
// both the file and the --data-path flag.
func (c *Config) ApplyEnv() {
	if p := os.Getenv("SERENGETI_DATA_PATH"); p != "" {
		c.DataPath = p
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QueryPoolBytes returns the slice of the memory budget available to queries.
func (c *Config) QueryPoolBytes() int64 {
	return int64(float64(c.MemoryBudgetBytes) * c.QueryMemoryFraction)
}
