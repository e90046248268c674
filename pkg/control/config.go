package control

import (
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-objectd/pkg/config"
)

// Config holds the guards and ceilings of every state.
type Config struct {
	TickInterval  time.Duration
	ExpectedNodes int
	WaitBudget    time.Duration

	IntroduceInterval     time.Duration
	ClusterWaitCeiling    time.Duration
	SyncRequestGuard      time.Duration
	LoadingPendingCeiling time.Duration
	LoadingCeiling        time.Duration
	SyncRequestInterval   time.Duration
	SyncPendingCeiling    time.Duration
	SyncClientCeiling     time.Duration
	SyncBarrierTimeout    time.Duration
	SyncServerCeiling     time.Duration

	RepositoryDir  string
	RepositoryFile string
}

// ConfigFrom extracts the state machine settings from the daemon config.
func ConfigFrom(c *config.Config) Config {
	dir, err := filepath.Abs(c.Repository.Dir)
	if err != nil {
		dir = c.Repository.Dir
	}
	t := c.Timing
	return Config{
		TickInterval:          t.Tick,
		ExpectedNodes:         c.Node.ExpectedNodes,
		WaitBudget:            c.WaitBudget(),
		IntroduceInterval:     t.IntroduceInterval,
		ClusterWaitCeiling:    t.ClusterWaitCeiling,
		SyncRequestGuard:      t.SyncRequestGuard,
		LoadingPendingCeiling: t.LoadingPendingCeiling,
		LoadingCeiling:        t.LoadingCeiling,
		SyncRequestInterval:   t.SyncRequestInterval,
		SyncPendingCeiling:    t.SyncPendingCeiling,
		SyncClientCeiling:     t.SyncClientCeiling,
		SyncBarrierTimeout:    t.SyncBarrierTimeout,
		SyncServerCeiling:     t.SyncServerCeiling,
		RepositoryDir:         dir,
		RepositoryFile:        c.Repository.File,
	}
}

// DefaultConfig returns the settings of config.Default.
func DefaultConfig() Config {
	c := config.Default()
	return ConfigFrom(&c)
}
