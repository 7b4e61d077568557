// Package boardrun coordinates test runs on embedded development boards
// attached over USB.
//
// A board shows up on the host twice: as a mass-storage drive that flashes
// whatever binary is copied onto it, and as a serial port carrying the
// firmware's console. A Manager keeps the inventory of attached boards and
// hands each one to at most one holder at a time. A Device is the holder's
// handle: it installs a binary, resets the board and captures its console.
//
// # Basic Usage
//
//	m, err := boardrun.NewManager(ctx, boardrun.NewMbedDiscoverer(log.Logger))
//	if err != nil {
//	    log.Fatal().Err(err).Msg("discovery failed")
//	}
//
//	dev := boardrun.NewDevice(m, "K64F")
//	if err := dev.Detect(); err != nil {
//	    // ErrDeviceNotFound or ErrDeviceBusy
//	}
//	err = dev.InstallBinary(ctx, "build/tests.bin")
//
//	// Capture in the background until EndRun
//	ep, err := dev.Run(ctx, "capture.log")
//	fmt.Println("test server at", ep)
//	err = dev.EndRun(ctx, true, true)
//
// # Reset and Handshake
//
// A board is reset by sending a serial break and waiting for its first
// output byte; five attempts are made. After a reset the firmware prints a
// banner line of the form
//
//	<tag>:<dotted-quad address>:<port>
//
// and Run returns that endpoint once the capture worker has parsed it.
//
// # Capture Modes
//
// Background captures stop either when EndRun asks them to
// (the default) or, with WithStopOnTimeout, when the board stays quiet for a
// whole read timeout:
//
//	ep, err := dev.Run(ctx, "capture.log", boardrun.WithStopOnTimeout(true))
//
// Foreground captures block until an end marker appears in the output or the
// board goes quiet:
//
//	res, err := dev.RunForeground(ctx, "tests.int", "***END OF TESTS**")
//	if res.Outcome == boardrun.OutcomeQuiet {
//	    // no end marker, the capture may be incomplete
//	}
//
// # Error Handling
//
// Use errors.Is() to check for the package's sentinel errors:
//
//	if errors.Is(err, boardrun.ErrHandshakeIncomplete) {
//	    // the worker may still be running: call EndRun
//	}
//
// # Default Configuration
//
//   - BaudRate: 9600
//   - ReadTimeout: 10 seconds
//   - StopOnTimeout: false
//   - ResetAttempts: 5, each after a 5 second settle
//   - FilesystemSettle: 3 seconds
package boardrun
