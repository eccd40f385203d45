package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/demo"
	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/internal/telemetry"
	"github.com/vango-dev/srasm/pkg/middleware"
	"github.com/vango-dev/srasm/pkg/server"
	"github.com/vango-dev/srasm/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		address  string
		withDemo bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the explanation proxy",
		Long: `Start the explanation proxy.

The proxy answers POST /explain-error with an explanation from the
configured backend. With --demo it also holds the demo slices and
serves their snapshot on /state and a live commit feed on /inspect.

Examples:
  srasm serve
  srasm serve --address=:8080
  OPENAI_API_KEY=sk-... srasm serve --demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, withDemo)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVar(&withDemo, "demo", false, "Serve the demo slices on /state and /inspect")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, withDemo bool) error {
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	explainer, err := cfg.Explainer(logger)
	if err != nil {
		return err
	}

	observers := []store.Observer{middleware.Slog(logger)}
	opts := []server.Option{server.WithLogger(logger.With("component", "server"))}

	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		m := middleware.Prometheus(middleware.WithRegistry(reg))
		observers = append(observers, m)
		opts = append(opts, server.WithMetrics(m, reg))
	}

	if cfg.Server.Tracing {
		tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(version))
		if err != nil {
			return errors.New("S101").Wrap(err).
				WithSuggestion("Check the telemetry section of the configuration")
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(sctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		t := middleware.OpenTelemetry(middleware.WithTracerProvider(tp))
		observers = append(observers, t)
		opts = append(opts, server.WithTracing(t))
	}

	if withDemo {
		s, err := demo.NewStore(
			store.WithDefaultEquality(cfg.Equality()),
			store.WithLogger(logger),
			store.WithObserver(store.Observers(observers...)),
		)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithStore(s))
	}

	out := os.Stdout
	printBanner(out)
	fmt.Fprintln(out, "  serve")
	fmt.Fprintln(out)
	info(out, "Listening on %s", cfg.Server.Address)
	info(out, "Explanations from %s", cfg.Explain.Provider)
	if withDemo {
		info(out, "Inspector on ws://%s/inspect", displayAddress(cfg.Server.Address))
	}
	fmt.Fprintln(out)

	srv := server.New(cfg.ServerConfig(), explainer, opts...)
	if err := srv.ListenAndServe(ctx); err != nil {
		return errors.New("S120").Wrap(err).
			WithSuggestion("Check that " + cfg.Server.Address + " is free, or pass --address")
	}
	return nil
}

func displayAddress(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
