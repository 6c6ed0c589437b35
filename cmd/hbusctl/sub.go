// File: cmd/hbusctl/sub.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	subChannel string
	subStream  int32
	subCount   int
	subIdleMS  int
)

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Print every message received until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := openBus(ctx)
		if err != nil {
			return err
		}
		defer b.Destroy()

		h, err := b.AddSubscription(ctx, subChannel, subStream)
		if err != nil {
			return err
		}

		idle := subIdleMS
		if !cmd.Flags().Changed("idle-ms") {
			idle = cfg.DefaultIdleIntervalMS
		}
		lines := make(chan string, 256)
		err = b.StartPoll(h, func(buf []byte) {
			select {
			case lines <- string(buf):
			default:
			}
		}, idle)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		received := 0
		for subCount <= 0 || received < subCount {
			select {
			case <-ctx.Done():
				return nil
			case l := <-lines:
				received++
				fmt.Fprintln(out, l)
			}
		}
		return nil
	},
}

func init() {
	subCmd.Flags().StringVarP(&subChannel, "channel", "c", "aeron:ipc", "channel URI")
	subCmd.Flags().Int32VarP(&subStream, "stream", "s", 10, "stream id")
	subCmd.Flags().IntVarP(&subCount, "count", "n", 0, "exit after n messages (0 runs until interrupted)")
	subCmd.Flags().IntVar(&subIdleMS, "idle-ms", 1, "idle interval: 0 busy-spins, >0 sleeps, <0 backs off")
	rootCmd.AddCommand(subCmd)
}
