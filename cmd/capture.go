/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/logging"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <platform> <output-file>",
	Short: "Capture a board's serial console to a file",
	Long: `Reset a board and capture its serial console to a file in the background.

The board's boot banner announces the endpoint of its test server, which is
printed once the capture has started. The output file is truncated first.

By default the capture runs until interrupted (Ctrl+C). With
--stop-on-timeout it ends by itself once the board has been quiet for a
whole read timeout, and Ctrl+C is ignored until then.

Example usage:
  boardrun capture K64F console.log
  boardrun capture K64F console.log --bin build/tests.bin
  boardrun capture K64F console.log --stop-on-timeout --read-timeout 30s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		binary, _ := cmd.Flags().GetString("bin")
		stopOnTimeout, _ := cmd.Flags().GetBool("stop-on-timeout")
		deleteBins, _ := cmd.Flags().GetBool("delete-binaries")

		ctx := cmd.Context()
		_, m, runCfg, err := setup(ctx)
		if err != nil {
			return err
		}

		dev := boardrun.NewDevice(m, args[0],
			boardrun.WithRunConfig(runCfg),
			boardrun.WithLogger(logging.GetLogger()),
		)
		if err := dev.Detect(); err != nil {
			return err
		}

		return runCapture(ctx, cmd.ErrOrStderr(), dev, binary, args[1], stopOnTimeout, deleteBins)
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("bin", "", "Install this binary before capturing")
	captureCmd.Flags().Bool("stop-on-timeout", false, "Stop when the board goes quiet instead of on Ctrl+C")
	captureCmd.Flags().Bool("delete-binaries", false, "Delete installed binaries from the board afterwards")
}

// runCapture drives one background capture on an assigned device and always
// gives the board back.
func runCapture(ctx context.Context, w io.Writer, dev *boardrun.Device, binary, outputPath string, stopOnTimeout, deleteBins bool) error {
	if binary != "" {
		if err := dev.InstallBinary(ctx, binary); err != nil {
			return errors.Join(err, dev.Release())
		}
	}

	startTime := time.Now()
	ep, runErr := dev.Run(ctx, outputPath, boardrun.WithStopOnTimeout(stopOnTimeout))
	if runErr == nil {
		fmt.Fprintf(w, "Capturing %s (%s) to %s\n", dev.Platform(), dev.Record().SerialPort, outputPath)
		fmt.Fprintf(w, "Test server endpoint: %s\n", ep)
		if stopOnTimeout {
			fmt.Fprintf(w, "Waiting for the board to go quiet\n\n")
		} else {
			fmt.Fprintf(w, "Press Ctrl+C to stop\n\n")
			<-ctx.Done()
			fmt.Fprintf(w, "\nReceived interrupt signal, shutting down...\n")
		}
	}

	// The worker is joined whether or not the handshake succeeded
	if err := dev.EndRun(context.WithoutCancel(ctx), deleteBins, true); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(w, "Capture complete in %v\n", time.Since(startTime).Round(time.Millisecond))
	return nil
}
