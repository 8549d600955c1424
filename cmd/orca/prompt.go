package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newPromptCmd manages the stored initial prompts used when a transcript
// has no first user message to show.
func newPromptCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage stored initial prompts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <session-id> <text...>",
			Short: "Store the initial prompt for a session",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.localDB()
				if err != nil {
					return err
				}
				text := strings.TrimSpace(strings.Join(args[1:], " "))
				if text == "" {
					return fmt.Errorf("prompt text is empty")
				}
				if err := db.SetPrompt(cmd.Context(), args[0], text); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored prompt for %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <session-id>",
			Short: "Print the stored initial prompt for a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.localDB()
				if err != nil {
					return err
				}
				text, ok, err := db.Prompt(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no prompt stored for %s", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear <session-id>",
			Short: "Forget the stored initial prompt for a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.localDB()
				if err != nil {
					return err
				}
				return db.DeletePrompt(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}
