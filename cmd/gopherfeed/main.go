package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gopherfeed/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "gopherfeed",
	Short: "Unified social-content ingestion engine",
	Long: "gopherfeed ingests content from social/messaging sources into a\n" +
		"uniform, ordered, resumable stream: job-poll search retrieval with\n" +
		"backfill/gap/live phases, and push capture behind a bounded queue.",
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".gopherfeed", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

// loadConfig loads the config file, exiting on failure. Commands that
// can run without a daemon still need the data dir and provider keys.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
