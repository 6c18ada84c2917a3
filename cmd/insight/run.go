package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"insight/internal/bootstrap"
	"insight/internal/config"
	"insight/internal/logging"
	"insight/internal/preview"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		date   string
		dryRun bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Gather signals, compose the insight and upsert the block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := logging.New(cfg.Storage, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			res, err := bootstrap.Build(cfg, logger, bootstrap.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer res.Close()

			ref, err := parseRunDate(date, res.Location, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, runErr := res.Orch.Run(ctx, ref)
			out := cmd.OutOrStdout()
			theme := preview.DarkTheme()
			if dryRun {
				fmt.Fprintln(out, preview.RenderBody(report.Body, cfg.Block.Icon, width))
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, preview.RenderReport(theme, report))
			return runErr
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Reference day (YYYY-MM-DD) in the configured timezone; defaults to today")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compose and preview without writing to Notion")
	cmd.Flags().IntVar(&width, "width", 80, "Preview wrap width")
	return cmd
}

// parseRunDate 解析参考日；为空时取 loc 中的当前时间
// parseRunDate resolves the reference day; empty means now in loc
func parseRunDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now.In(loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", value)
	}
	return day, nil
}

