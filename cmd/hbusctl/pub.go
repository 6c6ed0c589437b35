// File: cmd/hbusctl/pub.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-bus/api"
)

var (
	pubChannel  string
	pubStream   int32
	pubInterval time.Duration
	pubWait     time.Duration
)

var pubCmd = &cobra.Command{
	Use:   "pub [message...]",
	Short: "Publish messages, from arguments or one per stdin line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := openBus(ctx)
		if err != nil {
			return err
		}
		defer b.Destroy()

		h, err := b.AddPublication(ctx, pubChannel, pubStream)
		if err != nil {
			return err
		}
		if err := waitConnected(ctx, func() (bool, error) { return b.PublicationIsConnected(h) }, pubWait); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		send := func(msg string) error {
			res, err := b.Publish(h, []byte(msg))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%d\t%s\n", api.OfferResultString(res), res, msg)
			if pubInterval > 0 {
				time.Sleep(pubInterval)
			}
			return nil
		}

		if len(args) > 0 {
			for _, m := range args {
				if err := send(m); err != nil {
					return err
				}
			}
			return nil
		}
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() && ctx.Err() == nil {
			if err := send(sc.Text()); err != nil {
				return err
			}
		}
		return sc.Err()
	},
}

// waitConnected polls connected until it reports true, ctx ends or wait
// elapses. A zero wait returns at once.
func waitConnected(ctx context.Context, connected func() (bool, error), wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := connected()
		if err != nil || ok || !time.Now().Before(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func init() {
	pubCmd.Flags().StringVarP(&pubChannel, "channel", "c", "aeron:ipc", "channel URI")
	pubCmd.Flags().Int32VarP(&pubStream, "stream", "s", 10, "stream id")
	pubCmd.Flags().DurationVar(&pubInterval, "interval", 0, "pause between messages")
	pubCmd.Flags().DurationVar(&pubWait, "wait", 2*time.Second, "how long to wait for a subscriber before publishing")
	rootCmd.AddCommand(pubCmd)
}
