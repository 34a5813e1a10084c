package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grokrelay/internal/config"
	"grokrelay/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "grokrelay",
	Short: "Relay chat messages into a Grok browser tab and back",
	Long: `grokrelay bridges an HTTP relay and a Grok chat page driven over CDP.

The relay queues user messages and stores replies. The bridge polls the
relay, types each message into the page, waits for the reply to finish
generating and posts it back.

  grokrelay serve     run the relay
  grokrelay bridge    drive the browser against a running relay
  grokrelay up        both in one process
  grokrelay chat      talk to the relay interactively`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init replaces the file, so an unreadable one must not block it.
		if cmd == configInitCmd {
			cfg = config.DefaultConfig()
			return nil
		}
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		cfg = loaded

		// The chat TUI owns the terminal; only log when a file sink is set.
		if cmd.Name() == "chat" && cfg.Logging.File == "" {
			return nil
		}
		if err := logging.Initialize(loggingOptions(cfg)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(bridgeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loggingOptions(c *config.Config) logging.Options {
	cats := make(map[string]bool, len(logging.Categories))
	for _, cat := range logging.Categories {
		cats[string(cat)] = c.Logging.IsCategoryEnabled(string(cat))
	}
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: cats,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// watchConfig follows the config file and applies the new log level.
// A missing file is not watched.
func watchConfig(ctx context.Context) {
	if _, err := os.Stat(cfgPath); err != nil {
		return
	}
	w, err := config.NewWatcher(cfgPath, func(c *config.Config) {
		lvl := c.Logging.Level
		if verbose {
			lvl = "debug"
		}
		if err := logging.SetLevel(lvl); err != nil {
			logging.Get(logging.CategoryConfig).Warn("ignoring reloaded log level: %v", err)
		}
	})
	if err != nil {
		logging.BootWarn("config watcher disabled: %v", err)
		return
	}
	if err := w.Start(ctx); err != nil {
		logging.BootWarn("config watcher disabled: %v", err)
	}
}

// cleanExit maps a cancellation after a signal to a nil error.
func cleanExit(err error) error {
	if errors.Is(err, context.Canceled) {
		logging.Boot("shutting down")
		return nil
	}
	return err
}
