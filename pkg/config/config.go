package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the startup configuration of an objectd node.
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Repository RepositoryConfig `yaml:"repository"`
	Helpers    HelperConfig     `yaml:"helpers"`
	Timing     TimingConfig     `yaml:"timing"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// NodeConfig identifies the node and holds the admission budget.
type NodeConfig struct {
	ID            string `yaml:"id" validate:"required,max=64"`
	ExpectedNodes int    `yaml:"expected_nodes" validate:"min=1,max=1024"`
	WaitSeconds   int    `yaml:"wait_seconds" validate:"min=0,max=3600"`
	StateDir      string `yaml:"state_dir" validate:"required"`
}

// ClusterConfig covers the messaging bus and the coordinator source.
type ClusterConfig struct {
	Listen      string          `yaml:"listen" validate:"required"`
	Peers       []string        `yaml:"peers" validate:"dive,required"`
	Coordinator string          `yaml:"coordinator"`
	ZooKeeper   ZooKeeperConfig `yaml:"zookeeper"`
}

// ZooKeeperConfig enables ZooKeeper-based coordinator election when Servers is set.
type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers" validate:"dive,hostname_port"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// RepositoryConfig describes the model repository and its durable export.
type RepositoryConfig struct {
	Dir         string `yaml:"dir" validate:"required"`
	File        string `yaml:"file" validate:"required"`
	Durable     bool   `yaml:"durable"`
	BackendFile string `yaml:"backend_file"`
}

// HelperConfig names the helper executables. Dir defaults to the directory of
// the running binary.
type HelperConfig struct {
	Dir       string `yaml:"dir"`
	Loader    string `yaml:"loader" validate:"required"`
	SyncAgent string `yaml:"sync_agent" validate:"required"`
	Backend   string `yaml:"backend" validate:"required"`
}

// TimingConfig holds the tick period and per-state guards and ceilings.
type TimingConfig struct {
	Tick                  time.Duration `yaml:"tick" validate:"required"`
	IntroduceInterval     time.Duration `yaml:"introduce_interval" validate:"required"`
	ClusterWaitCeiling    time.Duration `yaml:"cluster_wait_ceiling" validate:"required"`
	SyncRequestGuard      time.Duration `yaml:"sync_request_guard" validate:"required"`
	LoadingPendingCeiling time.Duration `yaml:"loading_pending_ceiling" validate:"required"`
	LoadingCeiling        time.Duration `yaml:"loading_ceiling" validate:"required"`
	SyncRequestInterval   time.Duration `yaml:"sync_request_interval" validate:"required"`
	SyncPendingCeiling    time.Duration `yaml:"sync_pending_ceiling" validate:"required"`
	SyncClientCeiling     time.Duration `yaml:"sync_client_ceiling" validate:"required"`
	SyncBarrierTimeout    time.Duration `yaml:"sync_barrier_timeout" validate:"required"`
	SyncServerCeiling     time.Duration `yaml:"sync_server_ceiling" validate:"required"`
	NonCriticalEvery      uint64        `yaml:"non_critical_every" validate:"min=1"`
}

// StatusConfig configures the HTTP status surface.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `yaml:"format" validate:"omitempty,oneof=json console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

// Configuration errors
var (
	ErrCeilingBelowBudget  = errors.New("cluster_wait_ceiling must exceed wait_seconds")
	ErrBackendFileMissing  = errors.New("repository.backend_file is required when durable export is enabled")
	ErrNoCoordinatorSource = errors.New("either cluster.coordinator or cluster.zookeeper.servers must be set")
)

var validate = validator.New()

// Default returns a baseline single-node development config.
func Default() Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node-1"
	}
	return Config{
		Node: NodeConfig{
			ID:            host,
			ExpectedNodes: 1,
			WaitSeconds:   10,
			StateDir:      "./data",
		},
		Cluster: ClusterConfig{
			Listen:      "tcp://127.0.0.1:6700",
			Coordinator: host,
			ZooKeeper: ZooKeeperConfig{
				Root:           "/objectd",
				SessionTimeout: 5 * time.Second,
			},
		},
		Repository: RepositoryConfig{
			Dir:         "./data/repository",
			File:        "model.xml",
			BackendFile: "model.db",
		},
		Helpers: HelperConfig{
			Loader:    "objectd-loader",
			SyncAgent: "objectd-sync",
			Backend:   "objectd-pbe",
		},
		Timing: TimingConfig{
			Tick:                  100 * time.Millisecond,
			IntroduceInterval:     2 * time.Second,
			ClusterWaitCeiling:    60 * time.Second,
			SyncRequestGuard:      3 * time.Second,
			LoadingPendingCeiling: 120 * time.Second,
			LoadingCeiling:        time.Hour,
			SyncRequestInterval:   10 * time.Second,
			SyncPendingCeiling:    10 * time.Minute,
			SyncClientCeiling:     time.Hour,
			SyncBarrierTimeout:    20 * time.Second,
			SyncServerCeiling:     time.Hour,
			NonCriticalEvery:      50,
		},
		Status: StatusConfig{Listen: "127.0.0.1:6780"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file on top of Default() and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WaitBudget is the coordinator's node-count wait budget.
func (c *Config) WaitBudget() time.Duration {
	return time.Duration(c.Node.WaitSeconds) * time.Second
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Timing.ClusterWaitCeiling <= c.WaitBudget() {
		return ErrCeilingBelowBudget
	}
	if c.Repository.Durable && c.Repository.BackendFile == "" {
		return ErrBackendFileMissing
	}
	if c.Cluster.Coordinator == "" && len(c.Cluster.ZooKeeper.Servers) == 0 {
		return ErrNoCoordinatorSource
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
