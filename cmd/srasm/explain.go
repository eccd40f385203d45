package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/pkg/explain"
)

func explainCmd() *cobra.Command {
	var (
		slice     string
		stateFile string
		files     []string
		stream    bool
	)

	cmd := &cobra.Command{
		Use:   "explain <error message>",
		Short: "Ask the explanation backend about an error",
		Long: `Ask the configured explanation backend about an error.

The state snapshot is read from a JSON file; source files passed with
--file are forwarded as code snippets. With --stream and the openai
provider the answer is printed as it arrives.

Examples:
  srasm explain "store: slice \"cart\" not found" --state state.json
  srasm explain "nil pointer" --slice user --file user.go --stream`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cfg.Logger(cmd.ErrOrStderr())
			explainer, err := cfg.Explainer(logger)
			if err != nil {
				return err
			}

			req := explain.Request{
				ErrorMessage: strings.Join(args, " "),
				SliceName:    slice,
			}
			if stateFile != "" {
				raw, err := os.ReadFile(stateFile)
				if err != nil {
					return err
				}
				var state any
				if err := json.Unmarshal(raw, &state); err != nil {
					return errors.New("S190").Wrap(err).
						WithDetail(stateFile + " is not valid JSON")
				}
				req.StateSnapshot = state
			}
			for _, f := range files {
				code, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				req.RelevantCode = append(req.RelevantCode, explain.CodeSnippet{FileName: f, Code: string(code)})
			}

			out := cmd.OutOrStdout()
			if st, ok := explainer.(explain.Streamer); ok && stream {
				ch, err := st.Stream(cmd.Context(), explain.Prompt(req))
				if err != nil {
					return errors.New("S150").Wrap(err)
				}
				for c := range ch {
					if c.Err != nil {
						fmt.Fprintln(out)
						return errors.New("S150").Wrap(c.Err)
					}
					fmt.Fprint(out, c.Text)
				}
				fmt.Fprintln(out)
				return nil
			}

			fmt.Fprintln(out, explain.Safe(cmd.Context(), explainer, req, cfg.ExplainTimeout()))
			return nil
		},
	}

	cmd.Flags().StringVar(&slice, "slice", "", "Slice the error happened in")
	cmd.Flags().StringVar(&stateFile, "state", "", "JSON file holding the state snapshot")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Source file to forward as context (repeatable)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it arrives")

	return cmd
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate an initial slice value from a description",
		Long: `Ask the completion backend for a JSON value matching a description
and print it. The answer must contain a fenced json block.

Examples:
  srasm generate "a todo list slice with three sample items"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			explainer, err := cfg.Explainer(cfg.Logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			c, ok := explainer.(explain.Completer)
			if !ok {
				return errors.New("S150").
					WithDetail("The " + cfg.Explain.Provider + " provider cannot generate state").
					WithSuggestion("Set explain.provider to openai")
			}

			var state any
			if err := explain.GenerateState(cmd.Context(), c, strings.Join(args, " "), &state); err != nil {
				return errors.New("S150").Wrap(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}
}
