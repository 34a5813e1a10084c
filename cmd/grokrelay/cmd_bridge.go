package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"grokrelay/internal/api"
	"grokrelay/internal/bridge"
	"grokrelay/internal/browser"
	"grokrelay/internal/config"
	"grokrelay/internal/logging"
	"grokrelay/internal/transport"

	"github.com/spf13/cobra"
)

var (
	bridgeHeadless   bool
	bridgeDebugger   string
	bridgeScreenshot string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Drive the chat page against a running relay",
	Long: `Opens (or attaches to) the chat page in Chrome and polls the relay for
pending messages. Each message is typed into the page and the finished
reply is posted back to the relay.

Log in to the chat site once with --headless=false and a persistent
browser.user_data_dir, then run headless against the same profile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = bridgeHeadless
		}
		if bridgeDebugger != "" {
			cfg.Browser.DebuggerURL = bridgeDebugger
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()
		watchConfig(ctx)
		return cleanExit(runBridge(ctx, cfg))
	},
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeHeadless, "headless", false, "Run Chrome headless (overrides browser.headless)")
	bridgeCmd.Flags().StringVar(&bridgeDebugger, "debugger-url", "", "Attach to a running Chrome instead of launching one")
	bridgeCmd.Flags().StringVar(&bridgeScreenshot, "screenshot", "", "Write a screenshot of the chat page here on exit")
}

// runBridge opens the chat page and runs the poll loop until ctx is done.
func runBridge(ctx context.Context, c *config.Config) error {
	schedule, err := bridge.ParseSchedule(c.Bridge.Schedule)
	if err != nil {
		return err
	}

	mgr := browser.NewManager(browser.ConfigFrom(c))
	defer func() {
		if bridgeScreenshot != "" {
			saveScreenshot(mgr, bridgeScreenshot)
		}
		if err := mgr.Shutdown(context.Background()); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("browser shutdown: %v", err)
		}
	}()

	page, err := mgr.OpenChat(ctx, c.Page.URL, browser.SelectorsFrom(c))
	if err != nil {
		return fmt.Errorf("open chat page: %w", err)
	}

	relayAPI := api.NewClient(transport.New(c.API.BaseURL, c.API.Origin,
		transport.WithTimeout(c.GetRequestTimeout())))

	b := bridge.Assemble(relayAPI, page, page, bridge.Options{
		Interval:   c.GetPollInterval(),
		Schedule:   schedule,
		RetryDelay: c.GetRetryDelay(),
		MaxRetries: c.GetMaxRetries(),
	})
	logging.Boot("bridge ready: relay=%s page=%s chrome=%s", c.API.BaseURL, c.Page.URL, mgr.ControlURL())

	err = b.Run(ctx)
	st := b.Stats()
	logging.Boot("bridge stopped: ticks=%d submitted=%d replies=%d failures=%d",
		st.Ticks, st.Submitted, st.Replies, st.Failures)
	return err
}

func saveScreenshot(mgr *browser.Manager, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	img, err := mgr.Screenshot(ctx, true)
	if err != nil {
		logging.BrowserDebug("screenshot skipped: %v", err)
		return
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("write screenshot: %v", err)
		return
	}
	logging.Browser("screenshot written to %s", path)
}
