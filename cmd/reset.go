/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/logging"
	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <platform>",
	Short: "Reset a board",
	Long: `Reset a board by sending a serial break and waiting for its first output
byte. Up to five attempts are made.

With --probe the board's boot banner is read as well and the test server
endpoint it announces is printed.

With --usb the board's interface chip is reset at USB level instead. This can
recover boards whose serial port has stopped answering, without physically
unplugging them. The serial port may re-enumerate under a new name.

Requirements for --usb:
- usbreset utility must be installed (from usbutils package)
- Root/sudo permissions required for USB operations

Examples:
  boardrun reset K64F
  boardrun reset K64F --probe
  sudo boardrun reset K64F --usb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		usb, _ := cmd.Flags().GetBool("usb")
		probe, _ := cmd.Flags().GetBool("probe")
		if usb && probe {
			return errors.New("cannot specify both --usb and --probe")
		}
		if usb && !boardrun.IsUSBResetAvailable() {
			return fmt.Errorf("%w\nInstall with: sudo apt-get install usbutils", boardrun.ErrUSBResetNotAvailable)
		}

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
		defer dev.Release()

		rec := dev.Record()
		out := cmd.OutOrStdout()
		switch {
		case usb:
			fmt.Fprintf(out, "Resetting USB device %s:%s (%s)\n", rec.VendorID, rec.ProductID, rec.SerialPort)
			if err := boardrun.ResetUSB(ctx, rec); err != nil {
				if errors.Is(err, boardrun.ErrUSBInfoNotAvailable) {
					return fmt.Errorf("%w: the board has no USB vendor/product id", err)
				}
				return err
			}
			fmt.Fprintln(out, "USB device reset successfully")
			fmt.Fprintln(out, "Device will re-enumerate (port path may change)")
			fmt.Fprintln(out, "\nUse 'boardrun list --table' to see updated board list")

		case probe:
			ep, err := dev.Run(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", rec.Platform, ep)

		default:
			first, err := resetBoard(ctx, rec.SerialPort, runCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s answered with %q\n", rec.Platform, first)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Bool("usb", false, "Reset the board at USB level with usbreset")
	resetCmd.Flags().Bool("probe", false, "Read the boot banner and print the announced endpoint")
}

// resetBoard runs the break-based reset on its own port, outside any capture
func resetBoard(ctx context.Context, device string, cfg boardrun.Config) (byte, error) {
	t, err := boardrun.OpenConfig(device, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to open port: %w", err)
	}
	defer func() {
		if err := boardrun.CloseTransport(t); err != nil {
			logger := logging.GetLogger()
			logger.Warn().Err(err).Str("port", device).Msg("Failed to close serial port")
		}
	}()

	return boardrun.Reset(logging.GetLogger().WithContext(ctx), t, cfg)
}
