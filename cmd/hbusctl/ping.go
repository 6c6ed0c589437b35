// File: cmd/hbusctl/ping.go
// Author: momentics <momentics@gmail.com>

package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-bus/api"
)

var (
	pingCount  int
	pingStream int32
	pingIdleMS int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure in-process round trips over aeron:ipc",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBus(ctx)
		if err != nil {
			return err
		}
		defer b.Destroy()

		sh, err := b.AddSubscription(ctx, "aeron:ipc", pingStream)
		if err != nil {
			return err
		}
		ph, err := b.AddPublication(ctx, "aeron:ipc", pingStream)
		if err != nil {
			return err
		}

		rtts := make(chan time.Duration, pingCount)
		err = b.StartPoll(sh, func(buf []byte) {
			if len(buf) == 8 {
				sent := int64(binary.LittleEndian.Uint64(buf))
				rtts <- time.Duration(time.Now().UnixNano() - sent)
			}
		}, pingIdleMS)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var minRTT, maxRTT, total time.Duration
		msg := make([]byte, 8)
		for i := 0; i < pingCount; i++ {
			binary.LittleEndian.PutUint64(msg, uint64(time.Now().UnixNano()))
			res, err := b.Publish(ph, msg)
			if err != nil {
				return err
			}
			if res <= 0 {
				return fmt.Errorf("ping %d: offer %s", i, api.OfferResultString(res))
			}
			var rtt time.Duration
			select {
			case rtt = <-rtts:
			case <-time.After(time.Second):
				return fmt.Errorf("ping %d: no reply", i)
			case <-ctx.Done():
				return ctx.Err()
			}
			if i == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
			total += rtt
		}
		if pingCount > 0 {
			fmt.Fprintf(out, "%d round trips: min %v avg %v max %v\n",
				pingCount, minRTT, total/time.Duration(pingCount), maxRTT)
		}
		return nil
	},
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 10, "number of round trips")
	pingCmd.Flags().Int32VarP(&pingStream, "stream", "s", 1001, "stream id")
	pingCmd.Flags().IntVar(&pingIdleMS, "idle-ms", 0, "subscriber idle interval")
	rootCmd.AddCommand(pingCmd)
}
