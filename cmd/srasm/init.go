package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/config"
	"github.com/vango-dev/srasm/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		yaml  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default configuration file",
		Long: `Write srasm.json (or srasm.yaml) with the default settings.

Secrets are not written; set OPENAI_API_KEY and the AWS variables in
the environment instead.

Examples:
  srasm init
  srasm init --yaml ./service`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			name := config.JSONFileName
			if yaml {
				name = config.YAMLFileName
			}
			path := filepath.Join(dir, name)

			if config.Exists(dir) && !force {
				return errors.New("S190").
					WithDetail("A configuration file already exists in " + dir).
					WithSuggestion("Use --force to overwrite it")
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yaml, "yaml", false, "Write YAML instead of JSON")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration")

	return cmd
}
