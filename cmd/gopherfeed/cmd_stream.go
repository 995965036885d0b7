package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/types"
)

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.AddCommand(streamListCmd, streamResetCmd)
}

func streamStore() *state.StreamStateStore {
	cfg := loadConfig()
	return state.NewStreamStateStore(cfg.DataDir)
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Inspect persisted stream checkpoints",
}

var streamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stream checkpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := streamStore().List(context.Background())
		if err != nil {
			return fmt.Errorf("list streams: %w", err)
		}
		if len(states) == 0 {
			fmt.Fprintln(os.Stdout, "No streams.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tPROCESSED\tPHASE\tOLDEST\tNEWEST\tUPDATED")
		for _, st := range states {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				string(st.Key), st.TotalProcessed, st.Phase,
				st.Cursor.OldestSeenID, st.Cursor.MostRecentID,
				st.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var streamResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Delete a stream checkpoint (forces a fresh backfill)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := streamStore().Delete(context.Background(), types.StreamKey(args[0])); err != nil {
			return fmt.Errorf("reset stream: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Stream %q reset.\n", args[0])
		return nil
	},
}
