package boardrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// State is the lifecycle state of a Device.
//
//	unresolved -> assigned
//	assigned   -> running | released
//	running    -> stopped
//	stopped    -> running | released
//
// Foreground captures and endpoint probes run synchronously and leave the
// state where it was.
type State string

const (
	StateUnresolved State = "unresolved"
	StateAssigned   State = "assigned"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateReleased   State = "released"
)

var transitions = map[State][]State{
	StateUnresolved: {StateAssigned},
	StateAssigned:   {StateRunning, StateReleased},
	StateRunning:    {StateStopped},
	StateStopped:    {StateRunning, StateReleased},
}

// Device is the handle a test run holds on one board: it detects a board
// through the Manager, installs binaries, runs captures and gives the board
// back. A Device is driven from a single goroutine.
type Device struct {
	manager   *Manager
	platform  string
	record    DeviceRecord
	state     State
	session   *captureSession
	endpoint  Endpoint
	config    Config
	installer FileInstaller
	opener    Opener
	fs        afero.Fs
	logger    zerolog.Logger
}

// DeviceOption configures a Device
type DeviceOption func(*Device)

// WithRunConfig sets the configuration every run starts from
func WithRunConfig(config Config) DeviceOption {
	return func(d *Device) {
		d.config = config
	}
}

// WithInstaller sets the FileInstaller. The default is a CopyInstaller on the
// device filesystem using the BinaryExt of each install.
func WithInstaller(installer FileInstaller) DeviceOption {
	return func(d *Device) {
		d.installer = installer
	}
}

// WithOpener sets how serial transports are opened; the default is OpenConfig
func WithOpener(opener Opener) DeviceOption {
	return func(d *Device) {
		d.opener = opener
	}
}

// WithFs sets the filesystem holding capture files and the board mount point
func WithFs(fs afero.Fs) DeviceOption {
	return func(d *Device) {
		d.fs = fs
	}
}

// WithLogger sets the Device's logger
func WithLogger(logger zerolog.Logger) DeviceOption {
	return func(d *Device) {
		d.logger = logger
	}
}

// NewDevice returns an unresolved handle for a board of the given platform
func NewDevice(manager *Manager, platform string, opts ...DeviceOption) *Device {
	d := &Device{
		manager:  manager,
		platform: platform,
		record:   DeviceRecord{ID: NoDevice},
		state:    StateUnresolved,
		config:   DefaultConfig(),
		opener:   OpenConfig,
		fs:       afero.NewOsFs(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "device").Str("platform", platform).Logger()
	return d
}

// Platform returns the requested platform name
func (d *Device) Platform() string { return d.platform }

// State returns the current lifecycle state
func (d *Device) State() State { return d.state }

// Record returns the assigned board, with ID NoDevice before Detect succeeds
func (d *Device) Record() DeviceRecord { return d.record }

// Endpoint returns the endpoint of the last successful run
func (d *Device) Endpoint() Endpoint { return d.endpoint }

func (d *Device) setState(next State) error {
	if !slices.Contains(transitions[d.state], next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, d.state, next)
	}
	d.logger.Debug().Str("from", string(d.state)).Str("to", string(next)).Msg("State change")
	d.state = next
	return nil
}

func (d *Device) require(states ...State) error {
	if !slices.Contains(states, d.state) {
		return fmt.Errorf("%w: device is %s", ErrInvalidState, d.state)
	}
	return nil
}

// Detect asks the Manager for a board of the handle's platform. On failure
// the handle stays unresolved and must not be used further.
func (d *Device) Detect() error {
	if err := d.require(StateUnresolved); err != nil {
		return err
	}

	rec, err := d.manager.Acquire(d.platform)
	if err != nil {
		return err
	}
	d.record = rec
	d.logger = d.logger.With().Int("device", int(rec.ID)).Logger()
	return d.setState(StateAssigned)
}

// InstallBinary copies path onto the board and waits for its drive to settle.
// opts adjust the device's run configuration for this install only.
func (d *Device) InstallBinary(ctx context.Context, path string, opts ...Option) error {
	if err := d.require(StateAssigned, StateStopped); err != nil {
		return err
	}
	cfg, err := d.runConfig(opts)
	if err != nil {
		return err
	}

	installer := d.installer
	if installer == nil {
		installer = &CopyInstaller{Fs: d.fs, Src: d.fs, Ext: cfg.BinaryExt}
	}

	d.logger.Info().Str("binary", path).Str("mount_point", d.record.MountPoint).Msg("Copying binary")
	if err := installer.Install(ctx, path, d.record.MountPoint); err != nil {
		return fmt.Errorf("install %s: %w", path, err)
	}
	if err := d.waitForFileSystem(ctx, cfg.FilesystemSettle); err != nil {
		return err
	}
	d.logger.Info().Str("binary", path).Msg("Binary installation complete")
	return nil
}

// Run starts a capture worker writing to capturePath and waits for the
// endpoint from the board's banner.
//
// On ErrHandshakeIncomplete the run has failed, but the worker may still be
// alive: the device stays running and EndRun must be called to join it.
// With an empty capturePath the board is only reset and probed for its
// endpoint, synchronously, and no worker is started.
func (d *Device) Run(ctx context.Context, capturePath string, opts ...Option) (Endpoint, error) {
	if err := d.require(StateAssigned, StateStopped); err != nil {
		return Endpoint{}, err
	}
	cfg, err := d.runConfig(opts)
	if err != nil {
		return Endpoint{}, err
	}

	if capturePath == "" {
		d.logger.Info().Msg("Running without serial capture")
		return d.probe(ctx, cfg)
	}

	s := startWorker(workerParams{
		id:     uuid.NewString(),
		device: d.record.SerialPort,
		path:   capturePath,
		config: cfg,
		opener: d.opener,
		fs:     d.fs,
		logger: d.logger,
	})
	d.session = s
	if err := d.setState(StateRunning); err != nil {
		return Endpoint{}, err
	}

	d.logger.Info().Str("session", s.id).Str("file", capturePath).Msg("Waiting for endpoint from capture worker")
	ep, err := s.awaitHandshake(ctx)
	if err != nil {
		d.logger.Error().Err(err).Str("session", s.id).Msg("Capture worker did not deliver an endpoint")
		return Endpoint{}, err
	}

	d.endpoint = ep
	d.logger.Info().Str("address", ep.Address).Str("port", ep.Port).Msg("Received endpoint")
	return ep, nil
}

func (d *Device) probe(ctx context.Context, cfg Config) (Endpoint, error) {
	t, err := d.opener(d.record.SerialPort, cfg)
	if err != nil {
		return Endpoint{}, transportFault(err)
	}

	ep, err := ProbeEndpoint(d.logger.WithContext(ctx), t, cfg)
	if cerr := CloseTransport(t); cerr != nil {
		d.logger.Warn().Err(cerr).Msg("Failed to close serial port")
	}
	if err != nil {
		return Endpoint{}, err
	}

	d.endpoint = ep
	d.logger.Info().Str("address", ep.Address).Str("port", ep.Port).Msg("Probed endpoint")
	return ep, nil
}

// RunForeground resets the board and captures its output to capturePath in
// the calling goroutine. See CaptureForeground for how the capture ends.
func (d *Device) RunForeground(ctx context.Context, capturePath, endMarker string, opts ...Option) (ForegroundResult, error) {
	if err := d.require(StateAssigned, StateStopped); err != nil {
		return ForegroundResult{}, err
	}
	cfg, err := d.runConfig(opts)
	if err != nil {
		return ForegroundResult{}, err
	}

	d.logger.Info().Str("file", capturePath).Msg("Starting foreground capture")
	t, err := d.opener(d.record.SerialPort, cfg)
	if err != nil {
		return ForegroundResult{}, transportFault(err)
	}

	f, err := d.fs.OpenFile(capturePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		if cerr := CloseTransport(t); cerr != nil {
			d.logger.Warn().Err(cerr).Msg("Failed to close serial port")
		}
		return ForegroundResult{}, fmt.Errorf("failed to open capture file: %w", err)
	}

	res, err := CaptureForeground(d.logger.WithContext(ctx), t, f, endMarker, cfg)
	if cerr := syncClose(f); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close capture file: %w", cerr)
	}
	if cerr := CloseTransport(t); cerr != nil {
		d.logger.Warn().Err(cerr).Msg("Failed to close serial port")
	}
	if err != nil {
		d.logger.Error().Err(err).Msg("Foreground capture failed")
		return res, err
	}

	if res.Endpoint.Resolved() {
		d.endpoint = res.Endpoint
	}
	d.logger.Info().
		Str("outcome", res.Outcome.String()).
		Int64("bytes", res.Bytes).
		Msg("Foreground capture complete")
	return res, nil
}

// EndRun stops and joins the capture worker, optionally deletes the installed
// binaries, and optionally gives the board back to the Manager.
//
// In stop-on-signal mode the worker is told to stop first; in stop-on-timeout
// mode EndRun waits until the board goes quiet. ctx only bounds the wait.
func (d *Device) EndRun(ctx context.Context, deleteBinaries, release bool) error {
	if d.state == StateRunning {
		s := d.session
		if !s.config.StopOnTimeout {
			s.stop()
		}

		d.logger.Info().Str("session", s.id).Msg("Waiting for capture worker to terminate")
		if err := s.join(ctx); err != nil {
			return fmt.Errorf("waiting for capture worker: %w", err)
		}
		s.stop()
		d.session = nil
		d.logger.Info().Str("session", s.id).Msg("Capture worker terminated")

		if err := d.setState(StateStopped); err != nil {
			return err
		}

		if deleteBinaries {
			if err := d.deleteBinaries(ctx, s.config); err != nil {
				return err
			}
		}
	}

	if release {
		return d.Release()
	}
	return nil
}

// Release gives the board back to the Manager
func (d *Device) Release() error {
	if err := d.require(StateAssigned, StateStopped); err != nil {
		return err
	}
	if err := d.manager.Release(d.record.ID); err != nil {
		return err
	}
	return d.setState(StateReleased)
}

// deleteBinaries removes the binaries of the run that used cfg
func (d *Device) deleteBinaries(ctx context.Context, cfg Config) error {
	removed, err := removeBinaries(d.fs, d.record.MountPoint, cfg.BinaryExt)
	for _, name := range removed {
		d.logger.Info().Str("binary", name).Msg("Deleted binary")
	}
	if err != nil {
		return err
	}
	return d.waitForFileSystem(ctx, cfg.FilesystemSettle)
}

// waitForFileSystem gives the board's drive time to settle after a write
func (d *Device) waitForFileSystem(ctx context.Context, settle time.Duration) error {
	if err := sleepContext(ctx, settle); err != nil {
		return errors.Join(errors.New("waiting for board filesystem"), err)
	}
	return nil
}

func (d *Device) runConfig(opts []Option) (Config, error) {
	cfg := d.config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
