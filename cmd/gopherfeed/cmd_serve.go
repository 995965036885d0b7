package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/gopherfeed/internal/config"
	"github.com/user/gopherfeed/internal/jobs"
	"github.com/user/gopherfeed/internal/pipeline"
	"github.com/user/gopherfeed/internal/provider"
	"github.com/user/gopherfeed/internal/queue"
	"github.com/user/gopherfeed/internal/scheduler"
	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/stream"
	"github.com/user/gopherfeed/internal/telegram"
	"github.com/user/gopherfeed/internal/types"
	"github.com/user/gopherfeed/internal/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gopherfeed daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "gopherfeed.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func retryPolicyFromConfig(cfg *config.Config) *jobs.RetryPolicy {
	policy := jobs.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelayMs > 0 {
		policy.InitialDelay = time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond
	}
	if cfg.Retry.Multiplier > 1 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.MaxDelayMs > 0 {
		policy.MaxDelay = time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond
	}
	return policy
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	streams := state.NewStreamStateStore(cfg.DataDir)
	monitors := state.NewMonitorStore(filepath.Join(cfg.DataDir, "monitors.json"))

	// Provider client
	client := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)

	// Transport
	var transport types.Transport
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		transport = adapter
	} else {
		slog.Warn("telegram transport disabled (no token)")
	}

	// Pipeline
	pipe := pipeline.New(client, streams, transport, int64(cfg.MaxConcurrent))
	pipe.SetRetryPolicy(retryPolicyFromConfig(cfg))
	if cfg.QueueCapacity > 0 {
		pipe.SetQueueCapacity(cfg.QueueCapacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	defer pipe.Stop()

	slog.Info("gopherfeed started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"queue_capacity", cfg.QueueCapacity,
		"provider_base_url", cfg.Provider.BaseURL,
		"pid_file", pidPath,
	)

	// Queue consumer: answer chat commands, log the rest.
	filter := &queue.Filter{ChatIDs: cfg.Telegram.AllowedChats}
	go consumeEntries(ctx, pipe, streams, filter)

	// Scheduler: fire monitors through the pipeline.
	sched := scheduler.New(monitors, func(m *state.Monitor) {
		runMonitor(ctx, pipe, m, cfg.SaveEvery)
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started")

	// Unscheduled live monitors run as long-lived streams.
	all, err := monitors.List()
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	for _, m := range all {
		if !m.Enabled || m.Schedule != "" || !m.Query.EnableLive {
			continue
		}
		startLiveMonitor(pipe, m, cfg.SaveEvery)
	}

	// Webhook HTTP server
	if cfg.HTTP.Enabled {
		webhookSrv := webhook.NewServer(pipe.Capture, streams)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: webhookSrv,
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, reloading monitors")
			if err := sched.Reload(); err != nil {
				slog.Error("scheduler reload failed", "error", err)
			}
			continue
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// consumeEntries drains the pipeline queue, answering the built-in
// chat commands. Non-command entries are logged; downstream consumers
// hook in here.
func consumeEntries(ctx context.Context, pipe *pipeline.Pipeline, streams *state.StreamStateStore, filter *queue.Filter) {
	for {
		entry, err := pipe.Queue.Next(ctx, filter)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
				slog.Error("queue consumer failed", "error", err)
			}
			return
		}

		if !entry.IsCommand() {
			slog.Debug("captured entry",
				"entry_id", string(entry.ID), "chat_id", entry.ChatID, "type", entry.MessageType)
			continue
		}

		reply := handleCommand(ctx, entry, streams)
		if reply == "" {
			continue
		}
		// A failed send is reported but never stops consumption.
		if err := pipe.SendAction(entry.ChatID, reply); err != nil {
			slog.Error("send reply failed", "chat_id", entry.ChatID, "error", err)
		}
	}
}

func handleCommand(ctx context.Context, entry *types.QueueEntry, streams *state.StreamStateStore) string {
	switch entry.Command {
	case "start":
		return "Hello! I'm gopherfeed. I track search streams; try /streams."

	case "ping":
		return "pong"

	case "streams":
		states, err := streams.List(ctx)
		if err != nil {
			return "Error fetching streams."
		}
		if len(states) == 0 {
			return "No streams yet."
		}
		var sb strings.Builder
		for _, st := range states {
			fmt.Fprintf(&sb, "%s: %d items, phase %s, frontier %s\n",
				string(st.Key), st.TotalProcessed, st.Phase, st.Cursor.MostRecentID)
		}
		return sb.String()

	default:
		return "Unknown command. Available: /start, /ping, /streams"
	}
}

// runMonitor executes one scheduled pass of a monitor: resume from the
// checkpoint, collect whatever is new, deliver a digest.
func runMonitor(ctx context.Context, pipe *pipeline.Pipeline, m *state.Monitor, saveEvery int) {
	q := m.Query
	q.EnableLive = false

	var items []*types.Item
	_, err := pipe.RunStream(ctx, &q, func(item *types.Item) error {
		items = append(items, item)
		return nil
	}, stream.WithSaveEvery(saveEvery))
	if err != nil {
		slog.Error("monitor run failed", "name", m.Name, "error", err)
		return
	}
	if len(items) == 0 || m.ChatID == "" {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d new item(s)\n", m.Name, len(items))
	for _, item := range items {
		fmt.Fprintf(&sb, "- [%s] %s\n", item.ExternalID, item.Content)
	}
	if err := pipe.SendAction(m.ChatID, sb.String()); err != nil {
		slog.Error("monitor delivery failed", "name", m.Name, "error", err)
	}
}

// startLiveMonitor runs an always-on monitor as a background stream,
// delivering each item as it is observed.
func startLiveMonitor(pipe *pipeline.Pipeline, m *state.Monitor, saveEvery int) {
	q := m.Query
	chatID := m.ChatID
	name := m.Name
	_, err := pipe.StartStream(&q, func(item *types.Item) error {
		if chatID == "" {
			return nil
		}
		if err := pipe.SendAction(chatID, fmt.Sprintf("[%s] %s", item.ExternalID, item.Content)); err != nil {
			slog.Error("live delivery failed", "monitor", name, "error", err)
		}
		return nil
	}, stream.WithSaveEvery(saveEvery))
	if err != nil {
		slog.Error("start live monitor failed", "name", name, "error", err)
		return
	}
	slog.Info("live monitor started", "name", name, "query", q.Text)
}
