/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List attached boards",
	Long: `List the boards boardrun can use.

A board is listed when a USB serial port and a mounted board drive report
the same target id. The platform name is derived from the first four
characters of the target id (e.g. 0240 is a K64F).

When the config file declares "devices:", that list is printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, m, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		records := m.Records()
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No boards found")
			return nil
		}

		platform, _ := cmd.Flags().GetString("platform")
		records = filterRecords(records, platform)
		if len(records) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No boards found matching platform: %s\n", platform)
			return nil
		}

		if tableFormat, _ := cmd.Flags().GetBool("table"); tableFormat {
			renderTable(cmd.OutOrStdout(), records)
		} else {
			renderSimple(cmd.OutOrStdout(), records)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("platform", "p", "", "Only list boards of this platform")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

func filterRecords(records []boardrun.DeviceRecord, platform string) []boardrun.DeviceRecord {
	if platform == "" {
		return records
	}

	var filtered []boardrun.DeviceRecord
	for _, rec := range records {
		if rec.Platform == platform {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// renderTable renders the inventory in a styled static table format
func renderTable(w io.Writer, records []boardrun.DeviceRecord) {
	fmt.Fprintf(w, "Found %d board(s):\n\n", len(records))

	idWidth := 4
	platformWidth := 16
	portWidth := 15
	usbWidth := 11

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %s",
		idWidth, "ID",
		platformWidth, "Platform",
		portWidth, "Serial Port",
		usbWidth, "VID:PID",
		"Mount Point")
	fmt.Fprintln(w, styles.TableHeaderStyle.Render(header))

	for _, rec := range records {
		usb := "-"
		if rec.VendorID != "" {
			usb = rec.VendorID + ":" + rec.ProductID
		}
		row := fmt.Sprintf("%-*d %-*s %-*s %-*s %s",
			idWidth, rec.ID,
			platformWidth, rec.Platform,
			portWidth, rec.SerialPort,
			usbWidth, usb,
			rec.MountPoint)
		fmt.Fprintln(w, cellStyle.Render(row))
	}
}

// renderSimple renders the inventory as one tab separated line per board
func renderSimple(w io.Writer, records []boardrun.DeviceRecord) {
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rec.ID, rec.Platform, rec.SerialPort, rec.MountPoint)
	}
}
