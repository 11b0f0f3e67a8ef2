package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dexterhq/dexter/internal/sessions"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.AddCommand(sessionsListCmd(), sessionsClearCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored session keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := sessions.NewStore(cfg.SessionsDir())
			keys, err := store.ListSessions()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
}

func sessionsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id-or-key>",
		Short: "Delete one session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := sessions.NewStore(cfg.SessionsDir())
			key := sessions.ResolveKey("", args[0], "")
			msgs, err := store.Load(key)
			if err != nil {
				return err
			}
			if err := store.Clear(key); err != nil {
				return err
			}
			fmt.Printf("Cleared %s (%d messages)\n", key, len(msgs))
			return nil
		},
	}
}
