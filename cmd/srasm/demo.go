package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/demo"
	"github.com/vango-dev/srasm/pkg/middleware"
	"github.com/vango-dev/srasm/pkg/scope"
	"github.com/vango-dev/srasm/pkg/store"
)

func demoCmd() *cobra.Command {
	var offload bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the scripted store demo",
		Long: `Run the demo slices through every kind of update.

The demo declares four slices (blog, user, demoA, demoB), subscribes a
listener to each, applies replace, merge, compute and offloaded
updates, and then triggers a failure that the root scope catches and
explains. The listener counts show that each update only notified its
own slice.

Examples:
  srasm demo
  srasm demo --offload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if offload {
				cfg.Offload.Enabled = true
			}
			return runDemo(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&offload, "offload", false, "Offload heavy updates to worker goroutines")

	return cmd
}

func runDemo(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	logger := cfg.Logger(cmd.ErrOrStderr())

	s, err := demo.NewStore(
		store.WithDefaultEquality(cfg.Equality()),
		store.WithLogger(logger),
		store.WithObserver(middleware.Slog(logger)),
	)
	if err != nil {
		return err
	}

	explainer, err := cfg.Explainer(logger)
	if err != nil {
		return err
	}
	sink, err := cfg.ReportSink()
	if err != nil {
		return err
	}

	scopeOpts := []scope.Option{
		scope.WithExplainer(explainer),
		scope.WithTimeout(cfg.ExplainTimeout()),
		scope.WithLogger(logger),
		scope.WithHints(scope.Hints{AdditionalSlices: []string{"blog", "user"}}),
	}
	if sink != nil {
		scopeOpts = append(scopeOpts, scope.WithSink(sink))
	}

	d := cfg.Dispatcher(logger)
	if d != nil {
		defer d.Close()
	}

	res, err := demo.Run(cmd.Context(), demo.Env{
		Store:      s,
		Dispatcher: d,
		Scope:      scope.New(s, scopeOpts...),
		Out:        out,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	if d != nil {
		st := d.Stats()
		info(out, "Offload: %d inline, %d offloaded, %d fallbacks, %d stale", st.Inline, st.Offloaded, st.Fallbacks, st.Stale)
	}
	if res.Failure != nil && res.Failure.ReportID == "" && sink != nil {
		warn(out, "Failure report was not archived")
	}
	success(out, "Demo complete")
	return nil
}
