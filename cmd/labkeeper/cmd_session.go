package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/labkeeper/internal/state"
	"github.com/user/labkeeper/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := state.Open(cfg.StatePath())
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		list, err := store.Sessions().List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tSTATUS\tEVENTS\tCREATED")
		for _, s := range list {
			count, err := store.Events().Count(ctx, s.SessionID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				s.SessionID,
				s.SessionKey,
				s.Status,
				count,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Clear a session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := state.Open(cfg.StatePath())
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		if args[0] == "all" {
			list, err := store.Sessions().List(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, s := range list {
				if err := store.Sessions().Delete(ctx, s.SessionID); err != nil {
					return fmt.Errorf("delete session %s: %w", s.SessionID, err)
				}
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		id := types.SessionID(args[0])
		if _, err := store.Sessions().Get(ctx, id); err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}
		if err := store.Sessions().Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}
