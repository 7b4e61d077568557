package boardrun

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reset reboots the board behind t with a serial break and returns the first
// byte it sends back.
//
// Boards need settle time after being power-cycled or newly connected before
// they answer a break, so every attempt starts with config.ResetSettle.
// Linux drivers may reject the break ioctl; the break is then explicitly
// released, which is what lets the target MCU leave reset.
func Reset(ctx context.Context, t Transport, config Config) (byte, error) {
	logger := zerolog.Ctx(ctx)
	buf := make([]byte, 1)

	for attempt := 1; attempt <= config.ResetAttempts; attempt++ {
		logger.Debug().
			Int("attempt", attempt).
			Dur("settle", config.ResetSettle).
			Msg("Resetting board")

		if err := sleepContext(ctx, config.ResetSettle); err != nil {
			return 0, err
		}

		if err := t.SendBreak(); err != nil {
			logger.Debug().Err(err).Msg("Break rejected, releasing break condition")
			_ = t.SetBreak(false)
		}

		n, err := t.Read(buf)
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return buf[0], nil
		}
	}

	logger.Warn().Int("attempts", config.ResetAttempts).Msg("Board did not answer reset")
	return 0, ErrResetFailure
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
