package boardrun

import (
	"fmt"
	"time"
)

// Config holds the serial and timing parameters of a board run
type Config struct {
	BaudRate            int
	ReadTimeout         time.Duration // Total timeout of a single chunk read
	StopOnTimeout       bool          // Worker stops on the first short read instead of on EndRun
	ChunkSize           int           // Worker read size
	ForegroundChunkSize int           // Foreground capture read size
	BannerMax           int           // Upper bound on the boot banner line
	ResetAttempts       int
	ResetSettle         time.Duration // Pause before each break
	FilesystemSettle    time.Duration // Pause after writing to or deleting from the mount point
	BinaryExt           string
}

// Option is a functional option for configuring a board run
type Option func(*Config) error

// DefaultConfig returns the timings the mbed boards need in practice
func DefaultConfig() Config {
	return Config{
		BaudRate:            9600,
		ReadTimeout:         10 * time.Second,
		StopOnTimeout:       false,
		ChunkSize:           32,
		ForegroundChunkSize: 1000,
		BannerMax:           256,
		ResetAttempts:       5,
		ResetSettle:         5 * time.Second,
		FilesystemSettle:    3 * time.Second,
		BinaryExt:           ".bin",
	}
}

// NewConfig applies opts on top of DefaultConfig
func NewConfig(opts ...Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithReadTimeout sets the total timeout of one chunk read
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithStopOnTimeout selects the worker termination policy.
// When true the worker ends on the first short read and ignores EndRun's stop signal.
func WithStopOnTimeout(stop bool) Option {
	return func(c *Config) error {
		c.StopOnTimeout = stop
		return nil
	}
}

// WithChunkSize sets the worker read size
func WithChunkSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.ChunkSize = size
		return nil
	}
}

// WithForegroundChunkSize sets the foreground capture read size
func WithForegroundChunkSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.ForegroundChunkSize = size
		return nil
	}
}

// WithBannerMax bounds how many bytes of the boot banner line are read
func WithBannerMax(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrInvalidConfig
		}
		c.BannerMax = n
		return nil
	}
}

// WithResetAttempts sets how many breaks are sent before giving up
func WithResetAttempts(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrInvalidConfig
		}
		c.ResetAttempts = n
		return nil
	}
}

// WithResetSettle sets the pause before each break
func WithResetSettle(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.ResetSettle = d
		return nil
	}
}

// WithFilesystemSettle sets the pause after touching the board's mount point
func WithFilesystemSettle(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrInvalidConfig
		}
		c.FilesystemSettle = d
		return nil
	}
}

// WithBinaryExt sets the extension of installed binaries, e.g. ".bin" or ".hex"
func WithBinaryExt(ext string) Option {
	return func(c *Config) error {
		if len(ext) < 2 || ext[0] != '.' {
			return ErrInvalidConfig
		}
		c.BinaryExt = ext
		return nil
	}
}

// validate applies the With* rules to a Config built by hand
func (c Config) validate() error {
	if _, err := getBaudRate(c.BaudRate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	scratch := c
	for _, opt := range []Option{
		WithReadTimeout(c.ReadTimeout),
		WithChunkSize(c.ChunkSize),
		WithForegroundChunkSize(c.ForegroundChunkSize),
		WithBannerMax(c.BannerMax),
		WithResetAttempts(c.ResetAttempts),
		WithResetSettle(c.ResetSettle),
		WithFilesystemSettle(c.FilesystemSettle),
		WithBinaryExt(c.BinaryExt),
	} {
		if err := opt(&scratch); err != nil {
			return err
		}
	}
	return nil
}
