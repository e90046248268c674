package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-objectd/pkg/announce"
	"github.com/dd0wney/cluso-objectd/pkg/backend"
	"github.com/dd0wney/cluso-objectd/pkg/cluster"
	"github.com/dd0wney/cluso-objectd/pkg/config"
	"github.com/dd0wney/cluso-objectd/pkg/control"
	"github.com/dd0wney/cluso-objectd/pkg/epoch"
	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/metrics"
	"github.com/dd0wney/cluso-objectd/pkg/model"
	"github.com/dd0wney/cluso-objectd/pkg/reconcile"
	"github.com/dd0wney/cluso-objectd/pkg/status"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
	"github.com/dd0wney/cluso-objectd/pkg/transport"
)

var initMode string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Join the cluster and run the control loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mode, err := model.ParseRepositoryMode(initMode)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, mode)
	},
}

func init() {
	startCmd.Flags().StringVar(&initMode, "repository-mode", model.InitFromFile.String(),
		"initial repository mode (init_from_file or keep_repository)")
}

func run(ctx context.Context, cfg config.Config, mode model.RepositoryMode) error {
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	log := logger.With(logging.Node(cfg.Node.ID))

	reg := metrics.NewRegistry()

	epochs, err := epoch.Open(cfg.Node.StateDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("open epoch store: %w", err)
	}

	sock, err := transport.NewBusSocket()
	if err != nil {
		return fmt.Errorf("open bus socket: %w", err)
	}
	bus := transport.NewBus(sock, logger)
	defer bus.Close()

	announcer := announce.New(bus, cfg.Node.ID, cfg.Repository.Durable, logger, reg)

	elector, err := newElector(ctx, cfg, logger)
	if err != nil {
		return err
	}
	view, err := cluster.NewView(cfg.Node.ID, elector, logger)
	if err != nil {
		return err
	}
	store := model.NewStore(mode, logger)

	// The model must see SyncDone before the view drops the announcement.
	bus.Subscribe(store)
	bus.Subscribe(view)

	launcher, err := transfer.NewExecLauncher(cfg.Helpers.Dir)
	if err != nil {
		return err
	}
	helpers := transfer.NewSupervisor(launcher, transfer.Names{
		Loader:    cfg.Helpers.Loader,
		SyncAgent: cfg.Helpers.SyncAgent,
		Backend:   cfg.Helpers.Backend,
	}, logger, reg)

	registry := reconcile.NewRegistry()
	reconciler := reconcile.New(registry, store, announcer, reconcile.LogReplier{Logger: logger},
		cfg.Timing.NonCriticalEvery, logger, reg)

	exporter := backend.New(helpers, store, announcer, backend.Options{
		Enabled: cfg.Repository.Durable,
		Path:    filepath.Join(cfg.Repository.Dir, cfg.Repository.BackendFile),
		Daemon:  true,
	}, logger)

	node := control.NewNode(control.ConfigFrom(&cfg), control.Deps{
		Roles:     view,
		Announcer: announcer,
		Model:     store,
		Helpers:   helpers,
		Epochs:    epochs,
		Sweeper:   reconciler,
		Backend:   exporter,
		Logger:    logger,
		Metrics:   reg,
	})

	if cfg.Status.Listen != "" {
		srv := status.NewServer(cfg.Status.Listen, status.Deps{
			Node:      node,
			Members:   view,
			Announcer: announcer,
			Modes:     store,
			Clients:   registry,
			Metrics:   reg,
			Logger:    logger,

			ExpectedNodes: cfg.Node.ExpectedNodes,
		})
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(); err != nil {
				log.Warn("status server stop failed", logging.Error(err))
			}
		}()
	}

	if err := bus.Start(cfg.Cluster.Listen, cfg.Cluster.Peers); err != nil {
		return fmt.Errorf("start bus: %w", err)
	}
	log.Info("node started",
		logging.String("listen", cfg.Cluster.Listen),
		logging.Int("peers", len(cfg.Cluster.Peers)),
		logging.String("incarnation", announcer.Incarnation()),
		logging.Epoch(epochs.Load()))

	if err := control.Run(ctx, node, sdNotifier{}); err != nil {
		log.Error("node stopped on fatal error", logging.Error(err))
		return err
	}
	return nil
}

// newElector picks ZooKeeper election when servers are configured and the
// static coordinator otherwise.
func newElector(ctx context.Context, cfg config.Config, logger logging.Logger) (cluster.Elector, error) {
	zkCfg := cfg.Cluster.ZooKeeper
	if len(zkCfg.Servers) == 0 {
		return cluster.NewStaticElector(cfg.Node.ID, cfg.Cluster.Coordinator)
	}
	elector, err := cluster.NewZKElector(zkCfg.Servers, zkCfg.Root, cfg.Node.ID, zkCfg.SessionTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("zookeeper elector: %w", err)
	}
	go func() {
		elector.Run(ctx)
		_ = elector.Close()
	}()
	return elector, nil
}
