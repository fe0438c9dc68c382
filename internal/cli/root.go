// Package cli holds the lifehub cobra commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lifehub/internal/config"
	appLog "lifehub/internal/log"
	"lifehub/internal/storage"
	"lifehub/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lifehub",
	Short: "LifeHub – personal calendar and to-do backend",
	Long: `lifehub serves a JSON API over a local calendar/to-do store and proposes
free slots for new events. State lives in a single JSON snapshot file.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./lifehub.yaml", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(slotCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig reads --config and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openStore builds the file-backed store. It is not hydrated yet.
func openStore(cfg *config.Config) (*store.Store, *storage.FileStore) {
	fs := storage.NewFileStore(cfg.DataDir, cfg.SnapshotKey)
	return store.New(fs, store.Options{Location: cfg.Location()}), fs
}
