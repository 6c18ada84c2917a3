package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"insight/internal/bootstrap"
	"insight/internal/config"
	"insight/internal/preview"
)

func historyCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Storage.RunLog {
				fmt.Fprintln(cmd.OutOrStdout(), "run log is disabled (storage.run_log=false)")
				return nil
			}
			ledger, err := bootstrap.OpenLedger(cfg.Storage)
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read run log: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), preview.RenderHistory(preview.DarkTheme(), records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum runs to show")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a project config template to ./.insight/config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.InitProjectConfigScaffold()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", path)
			return nil
		},
	}
}
