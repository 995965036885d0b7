package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/types"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorAddCmd, monitorListCmd, monitorRemoveCmd, monitorEnableCmd, monitorDisableCmd)

	monitorAddCmd.Flags().String("name", "", "monitor name (required)")
	monitorAddCmd.Flags().String("query", "", "search query text (required)")
	monitorAddCmd.Flags().String("source", "twitter", "source type")
	monitorAddCmd.Flags().String("method", "search", "search method")
	monitorAddCmd.Flags().String("schedule", "", "cron schedule expression (empty = always-on live stream)")
	monitorAddCmd.Flags().String("chat-id", "", "chat to deliver new items to")
	monitorAddCmd.Flags().Int("max-results", 0, "backfill result cap")
	monitorAddCmd.Flags().Bool("live", false, "poll forward indefinitely (unscheduled monitors)")
	monitorAddCmd.Flags().Int64("poll-interval-ms", 0, "live poll interval in milliseconds")
	_ = monitorAddCmd.MarkFlagRequired("name")
	_ = monitorAddCmd.MarkFlagRequired("query")
}

func monitorStore() *state.MonitorStore {
	cfg := loadConfig()
	return state.NewMonitorStore(filepath.Join(cfg.DataDir, "monitors.json"))
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage scheduled search monitors",
}

var monitorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new monitor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		queryText, _ := cmd.Flags().GetString("query")
		source, _ := cmd.Flags().GetString("source")
		method, _ := cmd.Flags().GetString("method")
		schedule, _ := cmd.Flags().GetString("schedule")
		chatID, _ := cmd.Flags().GetString("chat-id")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		live, _ := cmd.Flags().GetBool("live")
		pollIntervalMs, _ := cmd.Flags().GetInt64("poll-interval-ms")

		monitor := &state.Monitor{
			Name: name,
			Query: types.Query{
				SourceType:         source,
				Method:             method,
				Text:               queryText,
				MaxBackfillResults: maxResults,
				EnableLive:         live,
				PollIntervalMs:     pollIntervalMs,
			},
			Schedule: schedule,
			ChatID:   chatID,
			Enabled:  true,
		}
		if err := monitor.Query.Validate(); err != nil {
			return err
		}
		if err := monitorStore().Add(monitor); err != nil {
			return fmt.Errorf("add monitor: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Monitor %q added.\n", name)
		return nil
	},
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		monitors, err := monitorStore().List()
		if err != nil {
			return fmt.Errorf("list monitors: %w", err)
		}
		if len(monitors) == 0 {
			fmt.Fprintln(os.Stdout, "No monitors.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tQUERY\tSCHEDULE\tCHAT\tENABLED")
		for _, m := range monitors {
			schedule := m.Schedule
			if schedule == "" {
				schedule = "(live)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
				m.Name, m.Query.Text, schedule, m.ChatID, m.Enabled)
		}
		return w.Flush()
	},
}

var monitorRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := monitorStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove monitor: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Monitor %q removed.\n", args[0])
		return nil
	},
}

var monitorEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := monitorStore().SetEnabled(args[0], true); err != nil {
			return fmt.Errorf("enable monitor: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Monitor %q enabled.\n", args[0])
		return nil
	},
}

var monitorDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := monitorStore().SetEnabled(args[0], false); err != nil {
			return fmt.Errorf("disable monitor: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Monitor %q disabled.\n", args[0])
		return nil
	},
}
