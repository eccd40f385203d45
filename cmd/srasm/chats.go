package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/srasm/internal/errors"
	"github.com/vango-dev/srasm/pkg/chathistory"
	"github.com/vango-dev/srasm/pkg/explain"
)

func chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage persistent chat history",
		Long: `Manage the chat history kept in history.path.

Each chat is identified by "<name>_<unix millis>" and holds an ordered
list of messages.`,
	}

	cmd.AddCommand(
		chatsListCmd(),
		chatsCreateCmd(),
		chatsShowCmd(),
		chatsAppendCmd(),
		chatsImportCmd(),
		chatsAskCmd(),
		chatsDeleteCmd(),
	)
	return cmd
}

// withHistory opens the configured history, runs fn and closes it.
func withHistory(cmd *cobra.Command, fn func(h *chathistory.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())
	h, err := chathistory.Open(cfg.HistoryConfig(logger))
	if err != nil {
		return errors.New("S130").Wrap(err).
			WithSuggestion("Check history.path, or close other processes using it")
	}
	defer h.Close()

	if err := fn(h); err != nil {
		return errors.Classify(err)
	}
	return nil
}

func chatsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(h *chathistory.Store) error {
				chats, err := h.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(chats) == 0 {
					info(out, "No chats yet. Create one with 'srasm chats create <name>'")
					return nil
				}
				for _, c := range chats {
					fmt.Fprintf(out, "%-40s %s\n", c.ID, c.Name)
				}
				return nil
			})
		},
	}
}

func chatsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(h *chathistory.Store) error {
				id, err := h.Create(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func chatsShowCmd() *cobra.Command {
	var (
		offset int
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show <chat-id>",
		Short: "Print the messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(h *chathistory.Store) error {
				page, err := h.Page(cmd.Context(), args[0], offset, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(page)
				}
				for _, m := range page.Messages {
					fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
				}
				if !page.NoMoreData {
					info(out, "More messages: --offset=%d", offset+len(page.Messages))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Index of the first message")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of messages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")

	return cmd
}

func parseRole(s string) (chathistory.Role, error) {
	switch r := chathistory.Role(s); r {
	case chathistory.RoleUser, chathistory.RoleAgent, chathistory.RoleSystem:
		return r, nil
	}
	return "", errors.New("S190").
		WithDetail(fmt.Sprintf("Unknown role %q", s)).
		WithSuggestion("Use --role user, agent or system")
}

func chatsAppendCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "append <chat-id> <message>",
		Short: "Append a message to a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			return withHistory(cmd, func(h *chathistory.Store) error {
				msgs, err := h.Append(cmd.Context(), args[0], chathistory.Message{
					Role:    r,
					Content: strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msgs[0].ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", string(chathistory.RoleUser), "Sender role: user, agent or system")

	return cmd
}

func chatsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <chat-id> <messages.json>",
		Short: "Replace the messages of a chat from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var msgs []chathistory.Message
			if err := json.Unmarshal(raw, &msgs); err != nil {
				return errors.New("S190").Wrap(err).
					WithDetail(args[1] + " must hold a JSON array of messages")
			}
			return withHistory(cmd, func(h *chathistory.Store) error {
				if err := h.Save(cmd.Context(), args[0], msgs); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Saved %d messages to %s", len(msgs), args[0])
				return nil
			})
		},
	}
}

func chatsAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <chat-id> <message>",
		Short: "Send a message to the completion backend and record the answer",
		Args:  cobra.MinimumNArgs(2),
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
					WithDetail("The " + cfg.Explain.Provider + " provider cannot chat").
					WithSuggestion("Set explain.provider to openai")
			}

			id := args[0]
			question := strings.Join(args[1:], " ")
			return withHistory(cmd, func(h *chathistory.Store) error {
				ctx := cmd.Context()
				history, err := h.Messages(ctx, id)
				if err != nil {
					return err
				}
				if _, err := h.Append(ctx, id, chathistory.Message{Role: chathistory.RoleUser, Content: question}); err != nil {
					return err
				}

				answer, err := complete(cmd, c, chatPrompt(history, question))
				if err != nil {
					return errors.New("S150").Wrap(err)
				}
				_, err = h.Append(ctx, id, chathistory.Message{Role: chathistory.RoleAgent, Content: answer})
				return err
			})
		},
	}
}

// complete streams the answer to the command output when the backend can
// stream, and returns the full text.
func complete(cmd *cobra.Command, c explain.Completer, prompt string) (string, error) {
	out := cmd.OutOrStdout()
	if st, ok := c.(explain.Streamer); ok {
		ch, err := st.Stream(cmd.Context(), prompt)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for chunk := range ch {
			if chunk.Err != nil {
				return "", chunk.Err
			}
			fmt.Fprint(out, chunk.Text)
			b.WriteString(chunk.Text)
		}
		fmt.Fprintln(out)
		return b.String(), nil
	}

	answer, err := c.Complete(cmd.Context(), prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(out, answer)
	return answer, nil
}

func chatPrompt(history []chathistory.Message, question string) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "%s: %s\n", chathistory.RoleUser, question)
	return b.String()
}

func chatsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(h *chathistory.Store) error {
				if err := h.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Deleted %s", args[0])
				return nil
			})
		},
	}
}
