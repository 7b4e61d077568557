package boardrun

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// usbSettle is how long a board takes to re-enumerate after a USB reset
const usbSettle = 2 * time.Second

// ResetUSB performs a USB-level reset of a board's interface chip.
// This recovers boards whose serial port stopped answering the break-based
// Reset.
//
// Requirements:
// - usbreset utility must be installed (from usbutils package)
// - Requires appropriate permissions (typically root/sudo)
//
// Returns:
// - nil if reset successful
// - ErrUSBResetNotAvailable if usbreset utility not found
// - ErrUSBInfoNotAvailable if the record carries no vendor/product id
// - error if reset fails
func ResetUSB(ctx context.Context, rec DeviceRecord) error {
	if rec.VendorID == "" || rec.ProductID == "" {
		return ErrUSBInfoNotAvailable
	}
	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	// usbreset accepts VVVV:PPPP and resets the first matching device
	cmd := exec.CommandContext(ctx, "usbreset", rec.VendorID+":"+rec.ProductID)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	return sleepContext(ctx, usbSettle)
}

// IsUSBResetAvailable checks if usbreset utility is available in PATH
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}
