package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/pkg/reports"
)

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and prune archived failure reports",
	}
	cmd.AddCommand(reportsShowCmd(), reportsCleanupCmd())
	return cmd
}

func openSink() (*config.Config, reports.Sink, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	sink, err := cfg.ReportSink()
	if err != nil {
		return nil, nil, err
	}
	if sink == nil {
		return nil, nil, errors.New("S140").
			WithDetail("Failure reports are not archived").
			WithSuggestion(`Set reports.sink to "disk" or "s3"`)
	}
	return cfg, sink, nil
}

func reportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Print an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sink, err := openSink()
			if err != nil {
				return err
			}
			r, err := sink.Load(cmd.Context(), args[0])
			if err != nil {
				return errors.Classify(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
}

func reportsCleanupCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete reports older than a maximum age",
		Long: `Delete archived reports older than --max-age, or reports.maxAge
from the configuration.

Examples:
  srasm reports cleanup --max-age=720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sink, err := openSink()
			if err != nil {
				return err
			}
			if maxAge == 0 {
				maxAge = cfg.ReportMaxAge()
			}
			if maxAge <= 0 {
				return errors.New("S190").
					WithDetail("No maximum age given").
					WithSuggestion("Pass --max-age or set reports.maxAge")
			}
			if err := sink.Cleanup(cmd.Context(), maxAge); err != nil {
				return errors.New("S140").Wrap(err)
			}
			success(cmd.OutOrStdout(), "Deleted reports older than %s", maxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Delete reports older than this")

	return cmd
}
