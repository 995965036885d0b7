package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/gopherfeed/internal/pipeline"
	"github.com/user/gopherfeed/internal/provider"
	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/stream"
	"github.com/user/gopherfeed/internal/types"
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("source", "twitter", "source type")
	searchCmd.Flags().String("method", "search", "search method")
	searchCmd.Flags().Int("max-results", 0, "total backfill result cap (0 = unlimited)")
	searchCmd.Flags().Int("page-size", 0, "per-page result cap")
	searchCmd.Flags().String("since-id", "", "forward cursor seed")
	searchCmd.Flags().String("max-id", "", "backfill anchor (inclusive)")
	searchCmd.Flags().String("oldest-allowed-id", "", "backfill id floor")
	searchCmd.Flags().Int64("max-age-ms", 0, "backfill age cutoff in milliseconds")
	searchCmd.Flags().Bool("live", false, "keep polling forward after backfill")
	searchCmd.Flags().Int64("poll-interval-ms", 0, "live poll interval in milliseconds")
	searchCmd.Flags().Bool("no-checkpoint", false, "do not persist or resume stream state")
	searchCmd.Flags().Bool("force-backfill", false, "re-run backfill even with a prior checkpoint")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a search stream and print items as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	source, _ := cmd.Flags().GetString("source")
	method, _ := cmd.Flags().GetString("method")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	sinceID, _ := cmd.Flags().GetString("since-id")
	maxID, _ := cmd.Flags().GetString("max-id")
	oldestAllowed, _ := cmd.Flags().GetString("oldest-allowed-id")
	maxAgeMs, _ := cmd.Flags().GetInt64("max-age-ms")
	live, _ := cmd.Flags().GetBool("live")
	pollIntervalMs, _ := cmd.Flags().GetInt64("poll-interval-ms")
	noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")
	forceBackfill, _ := cmd.Flags().GetBool("force-backfill")

	q := &types.Query{
		SourceType:         source,
		Method:             method,
		Text:               args[0],
		MaxBackfillResults: maxResults,
		PageSize:           pageSize,
		SinceID:            sinceID,
		MaxID:              maxID,
		OldestAllowedID:    oldestAllowed,
		MaxBackfillAgeMs:   maxAgeMs,
		EnableLive:         live,
		PollIntervalMs:     pollIntervalMs,
	}

	var store types.StateStore
	if !noCheckpoint {
		store = state.NewStreamStateStore(cfg.DataDir)
	}

	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	pipe := pipeline.New(client, store, nil, int64(cfg.MaxConcurrent))
	pipe.SetRetryPolicy(retryPolicyFromConfig(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipe.Start(ctx)
	defer pipe.Stop()

	enc := json.NewEncoder(os.Stdout)
	var opts []stream.Option
	if cfg.SaveEvery > 0 {
		opts = append(opts, stream.WithSaveEvery(cfg.SaveEvery))
	}
	if forceBackfill {
		opts = append(opts, stream.WithForceBackfill())
	}

	orch, err := pipe.RunStream(ctx, q, func(item *types.Item) error {
		return enc.Encode(item)
	}, opts...)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("search stream: %w", err)
	}

	if orch != nil {
		st := orch.State()
		fmt.Fprintf(os.Stderr, "processed %d item(s); frontier [%s .. %s]\n",
			st.TotalProcessed, st.Cursor.OldestSeenID, st.Cursor.MostRecentID)
	}
	return nil
}
