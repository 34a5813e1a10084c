package main

import (
	"context"
	"fmt"
	"net"

	"grokrelay/internal/config"
	"grokrelay/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Relay.Listen = serveListen
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, cancel := signalContext(context.Background())
		defer cancel()
		watchConfig(ctx)
		return cleanExit(runRelay(ctx, cfg))
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the relay and the bridge in one process",
	Long: `Starts the relay and a bridge pointed at it. If either stops with an
error the other is shut down too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Relay.Listen = serveListen
			base, err := localBaseURL(serveListen)
			if err != nil {
				return err
			}
			cfg.API.BaseURL = base
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()
		watchConfig(ctx)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runRelay(gctx, cfg) })
		g.Go(func() error { return runBridge(gctx, cfg) })
		return cleanExit(g.Wait())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides relay.listen)")
	upCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides relay.listen)")
}

func runRelay(ctx context.Context, c *config.Config) error {
	srv := relay.New(relay.Options{
		MaxResponses:   c.Relay.MaxResponses,
		RateLimitDelay: c.GetRateLimitDelay(),
		ResponseTTL:    c.GetResponseTTL(),
	})
	return srv.ListenAndServe(ctx, c.Relay.Listen)
}

// localBaseURL turns a listen address into the API base URL a client on the
// same host would use.
func localBaseURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + relay.BasePath, nil
}
