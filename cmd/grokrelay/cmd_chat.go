package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grokrelay/internal/chat"
	"grokrelay/internal/config"
	"grokrelay/internal/transport"

	"github.com/spf13/cobra"
)

var (
	chatTimeout time.Duration
	sendNoWait  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat through the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(context.Background())
		defer cancel()
		return chat.RunTUI(ctx, newChatClient(cfg), chatTimeout)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the reply",
	Long: `Queues the message on the relay and waits for the bridge to post the
reply. With --no-wait the command returns once the message is queued.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(context.Background())
		defer cancel()

		client := newChatClient(cfg)
		message := strings.Join(args, " ")
		if err := client.Send(ctx, message); err != nil {
			return err
		}
		if sendNoWait {
			fmt.Fprintln(cmd.OutOrStdout(), "queued")
			return nil
		}
		reply, err := client.WaitResponse(ctx, chatTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", chat.DefaultWaitTimeout, "How long to wait for each reply")
	sendCmd.Flags().DurationVar(&chatTimeout, "timeout", chat.DefaultWaitTimeout, "How long to wait for the reply")
	sendCmd.Flags().BoolVar(&sendNoWait, "no-wait", false, "Return once the message is queued")
}

func newChatClient(c *config.Config) *chat.Client {
	return chat.NewClient(transport.New(c.API.BaseURL, "", transport.WithTimeout(c.GetRequestTimeout())))
}
