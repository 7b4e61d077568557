package boardrun

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// captureSession is the controller's view of one capture worker.
// The worker only sees the handshake channel (send side) and the stop
// context; everything else here belongs to the controller.
type captureSession struct {
	id        string
	path      string
	config    Config
	stop      context.CancelFunc
	handshake chan Endpoint
	done      chan struct{}
	endpoint  Endpoint
}

// workerParams is copied into the worker goroutine; nothing in it is shared
// with the controller after startWorker returns.
type workerParams struct {
	id     string
	device string
	path   string
	config Config
	opener Opener
	fs     afero.Fs
	logger zerolog.Logger
}

// startWorker launches the capture worker and returns immediately
func startWorker(p workerParams) *captureSession {
	stopCtx, cancel := context.WithCancel(context.Background())
	s := &captureSession{
		id:        p.id,
		path:      p.path,
		config:    p.config,
		stop:      cancel,
		handshake: make(chan Endpoint, 1),
		done:      make(chan struct{}),
	}

	go func(handshake chan<- Endpoint, done chan<- struct{}) {
		defer close(done)
		runWorker(stopCtx, p, handshake)
	}(s.handshake, s.done)

	return s
}

// awaitHandshake receives the worker's single endpoint message
func (s *captureSession) awaitHandshake(ctx context.Context) (Endpoint, error) {
	select {
	case ep, ok := <-s.handshake:
		if !ok || !ep.Resolved() {
			return Endpoint{}, ErrHandshakeIncomplete
		}
		s.endpoint = ep
		return ep, nil
	case <-ctx.Done():
		return Endpoint{}, fmt.Errorf("%w: %w", ErrHandshakeIncomplete, ctx.Err())
	}
}

// join waits for the worker goroutine to exit
func (s *captureSession) join(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker owns the transport and the capture file for the whole run.
// Faults are logged here and never returned: the controller only learns
// about them through an unresolved or missing handshake.
func runWorker(stop context.Context, p workerParams, handshake chan<- Endpoint) {
	logger := p.logger.With().Str("session", p.id).Str("port", p.device).Logger()
	cfg := p.config

	sent := false
	send := func(ep Endpoint) {
		handshake <- ep
		close(handshake)
		sent = true
	}
	defer func() {
		if !sent {
			close(handshake)
		}
	}()

	logger.Info().Msg("Capture worker starting")

	t, err := p.opener(p.device, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open serial port")
		return
	}
	defer func() {
		if err := CloseTransport(t); err != nil {
			logger.Warn().Err(err).Msg("Failed to close serial port")
		}
	}()

	f, err := p.fs.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Error().Err(err).Str("file", p.path).Msg("Failed to open capture file")
		return
	}
	defer func() {
		if err := syncClose(f); err != nil {
			logger.Warn().Err(err).Str("file", p.path).Msg("Failed to close capture file")
		}
	}()

	// In stop-on-timeout mode nothing the controller does may cut the run short
	resetCtx := stop
	if cfg.StopOnTimeout {
		resetCtx = context.Background()
	}
	first, err := Reset(logger.WithContext(resetCtx), t, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Resetting device failed")
		send(Endpoint{})
		return
	}

	banner, err := readBanner(t, first, cfg.BannerMax)
	if err != nil {
		logger.Error().Err(err).Msg("Serial fault while reading banner")
		send(Endpoint{})
		return
	}

	ep, err := ParseBanner(banner)
	if err != nil {
		logger.Warn().Bytes("banner", banner).Msg("No valid address in banner")
		send(Endpoint{})
		if _, err := f.Write(banner); err != nil {
			logger.Error().Err(err).Msg("Failed to write capture file")
		}
		return
	}

	logger.Info().Str("address", ep.Address).Str("port", ep.Port).Msg("Sending endpoint to controller")
	send(ep)
	if _, err := f.Write(banner); err != nil {
		logger.Error().Err(err).Msg("Failed to write capture file")
		return
	}

	written := int64(len(banner))
	defer func() {
		logger.Info().Int64("bytes", written).Msg("Capture worker exiting")
	}()

	buf := make([]byte, cfg.ChunkSize)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				logger.Error().Err(werr).Msg("Failed to write capture file")
				return
			}
			written += int64(n)
		}
		if err != nil {
			logger.Error().Err(transportFault(err)).Msg("Serial fault, stopping capture")
			return
		}

		if cfg.StopOnTimeout {
			if n < len(buf) {
				logger.Info().Msg("Serial read timeout, stopping capture")
				return
			}
			continue
		}

		select {
		case <-stop.Done():
			logger.Info().Msg("Stop requested, stopping capture")
			return
		default:
		}
	}
}

// syncClose flushes f to stable storage and closes it
func syncClose(f afero.File) error {
	return errors.Join(f.Sync(), f.Close())
}

// transportFault makes sure err matches ErrTransportFault
func transportFault(err error) error {
	if err == nil || errors.Is(err, ErrTransportFault) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransportFault, err)
}
