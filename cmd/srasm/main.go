package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗╦═╗╔═╗╔═╗╔╦╗
  ╚═╗╠╦╝╠═╣╚═╗║║║
  ╚═╝╩╚═╩ ╩╚═╝╩ ╩
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath is set by the persistent --config flag.
var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "srasm",
		Short: "Slice-based observable state with explained failures",
		Long: `srasm is a slice-based observable state store.

State is split into named slices; readers subscribe to exactly the
slices they use, and failures are caught at a root scope that asks an
explanation backend what went wrong. This CLI runs:

  • The explanation proxy with a live slice inspector
  • A scripted demo of the store
  • Persistent chat history
  • Failure report housekeeping`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to srasm.json or srasm.yaml (default: search from the working directory)")

	rootCmd.AddCommand(
		initCmd(),
		serveCmd(),
		demoCmd(),
		explainCmd(),
		generateCmd(),
		chatsCmd(),
		reportsCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads --config, or the enclosing project's configuration.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadFromWorkingDir()
}

// printBanner prints the srasm ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
