/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/tui/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// runner installs and captures every binary on one board per platform.
// Platforms run concurrently; binaries on the same board run in order.
type runner struct {
	manager    *boardrun.Manager
	platforms  []string
	binaries   []string
	delay      time.Duration
	endMarker  string
	parallel   int
	fs         afero.Fs
	deviceOpts []boardrun.DeviceOption
	logger     zerolog.Logger

	// out receives each completed capture
	out io.Writer
	// prompt, when set, is called after a failed capture so an operator can
	// reconnect the serial cable
	prompt func(ctx context.Context, platform string) error
	// report receives progress updates
	report func(models.JobUpdateMsg)

	mu sync.Mutex
}

// run drives every platform and returns all failures joined
func (r *runner) run(ctx context.Context) error {
	var g errgroup.Group
	if r.parallel > 0 {
		g.SetLimit(r.parallel)
	}

	errs := make([]error, len(r.platforms))
	for i, platform := range r.platforms {
		g.Go(func() error {
			errs[i] = r.runPlatform(ctx, platform)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (r *runner) runPlatform(ctx context.Context, platform string) error {
	logger := r.logger.With().Str("platform", platform).Logger()

	dev := boardrun.NewDevice(r.manager, platform, r.deviceOpts...)
	r.update(models.JobUpdateMsg{Platform: platform, Stage: models.StageDetecting})
	if err := dev.Detect(); err != nil {
		r.update(models.JobUpdateMsg{Platform: platform, Stage: models.StageFailed, Err: err})
		return fmt.Errorf("%s: %w", platform, err)
	}
	r.update(models.JobUpdateMsg{Platform: platform, Stage: models.StageAssigned, Detail: dev.Record().SerialPort})

	var errs []error
	for _, binary := range r.binaries {
		if err := r.runBinary(ctx, dev, binary); err != nil {
			logger.Error().Err(err).Str("binary", binary).Msg("Test binary failed")
			errs = append(errs, fmt.Errorf("%s %s: %w", platform, filepath.Base(binary), err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := dev.EndRun(context.WithoutCancel(ctx), false, true); err != nil {
		r.update(models.JobUpdateMsg{Platform: platform, Stage: models.StageFailed, Err: err})
		errs = append(errs, fmt.Errorf("%s: %w", platform, err))
	} else {
		r.update(models.JobUpdateMsg{Platform: platform, Stage: models.StageReleased})
	}
	return errors.Join(errs...)
}

func (r *runner) runBinary(ctx context.Context, dev *boardrun.Device, binary string) error {
	job := models.JobUpdateMsg{Platform: dev.Platform(), Binary: filepath.Base(binary)}
	fail := func(err error) error {
		job.Stage, job.Err = models.StageFailed, err
		r.update(job)
		return err
	}

	job.Stage = models.StageInstalling
	r.update(job)
	if err := dev.InstallBinary(ctx, binary); err != nil {
		return fail(err)
	}

	intermediate := strings.TrimSuffix(binary, filepath.Ext(binary)) + ".int"
	if err := r.fs.Remove(intermediate); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fail(fmt.Errorf("failed to remove stale capture: %w", err))
	}

	// Output the board produced before the reset is discarded during this wait
	job.Stage, job.Detail = models.StageWaiting, r.delay.String()
	r.update(job)
	if err := sleep(ctx, r.delay); err != nil {
		return fail(err)
	}

	job.Stage, job.Detail = models.StageCapturing, intermediate
	r.update(job)
	res, err := dev.RunForeground(ctx, intermediate, r.endMarker)
	if err != nil {
		if r.prompt != nil {
			if perr := r.prompt(ctx, dev.Platform()); perr != nil {
				err = errors.Join(err, perr)
			}
		}
		return fail(err)
	}

	job.Stage = models.StagePassed
	if res.Outcome == boardrun.OutcomeQuiet {
		job.Stage = models.StageQuiet
	}
	job.Detail = fmt.Sprintf("%d bytes, %s", res.Bytes, res.Outcome)
	if res.Endpoint.Resolved() {
		job.Detail += ", " + res.Endpoint.String()
	}
	r.update(job)

	data, err := afero.ReadFile(r.fs, intermediate)
	if err != nil {
		return fail(fmt.Errorf("failed to read capture: %w", err))
	}
	r.print(dev.Platform(), binary, data)

	if err := r.fs.Remove(intermediate); err != nil {
		r.logger.Warn().Err(err).Str("file", intermediate).Msg("Failed to remove capture")
	}
	return nil
}

func (r *runner) update(msg models.JobUpdateMsg) {
	if r.report != nil {
		r.report(msg)
	}
}

// print writes one capture to out without interleaving with other platforms
func (r *runner) print(platform, binary string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "==> %s: %s <==\n", platform, filepath.Base(binary))
	r.out.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(r.out)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
