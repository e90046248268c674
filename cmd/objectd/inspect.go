package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-objectd/pkg/epoch"
)

var epochCmd = &cobra.Command{
	Use:   "epoch",
	Short: "Print the persisted node epoch",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := epoch.Open(cfg.Node.StateDir, cfg.Node.ID)
		if err != nil {
			return err
		}
		rec, err := epoch.ReadFile(store.FilePath())
		if err != nil {
			return fmt.Errorf("read epoch record: %w", err)
		}
		out, err := yaml.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
