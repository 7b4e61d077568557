package boardrun

import "errors"

// Predefined error types for robust error handling
var (
	// Inventory errors
	ErrDeviceNotFound       = errors.New("no board of the requested platform")
	ErrDeviceBusy           = errors.New("board of the requested platform already in use")
	ErrUnknownDevice        = errors.New("unknown device id")
	ErrAlreadyReleased      = errors.New("device is already free")
	ErrDiscoveryUnavailable = errors.New("device discovery capability not available")

	// Board protocol errors
	ErrResetFailure        = errors.New("board did not answer reset")
	ErrProtocol            = errors.New("boot banner does not carry a valid address")
	ErrHandshakeIncomplete = errors.New("capture worker did not deliver an endpoint")
	ErrInvalidState        = errors.New("operation not valid in current device state")

	// Transport errors
	ErrTransportFault  = errors.New("serial transport fault")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrPortClosed      = errors.New("serial port is closed")

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)
