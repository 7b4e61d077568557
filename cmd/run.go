/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/logging"
	"github.com/allbin/boardrun/internal/tui/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <binary>...",
	Short: "Install and run test binaries on every configured platform",
	Long: `Run each test binary on one board of every configured platform.

For each platform a board is assigned, then for each binary:
  1. the binary is copied onto the board's drive, replacing any old one
  2. boardrun waits (--delay) so that output from before the reset is discarded
  3. the board is reset and its console captured to <binary>.int until the
     end marker appears or the board goes quiet
  4. the capture is printed and <binary>.int removed

When a capture fails and stdin is a terminal, boardrun waits for the operator
to reconnect the serial cable before moving on. Platforms run concurrently.

Example usage:
  boardrun run build/tests.bin
  boardrun run -p K64F -p LPC1768 build/a.bin build/b.bin
  boardrun run --delay 5s --tui build/tests.bin`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useTUI, _ := cmd.Flags().GetBool("tui")
		noPrompt, _ := cmd.Flags().GetBool("no-prompt")

		ctx := cmd.Context()
		cfg, m, runCfg, err := setup(ctx)
		if err != nil {
			return err
		}

		fs := afero.NewOsFs()
		r := &runner{
			manager:   m,
			platforms: cfg.Run.Platforms,
			binaries:  args,
			delay:     cfg.Run.Delay,
			endMarker: cfg.Run.EndMarker,
			parallel:  cfg.Run.Parallel,
			fs:        fs,
			deviceOpts: []boardrun.DeviceOption{
				boardrun.WithRunConfig(runCfg),
				boardrun.WithFs(fs),
				boardrun.WithLogger(logging.GetLogger()),
			},
			logger: logging.WithComponent("runner"),
			out:    cmd.OutOrStdout(),
		}

		if useTUI {
			return runWithTUI(ctx, cmd.OutOrStdout(), r)
		}

		if !noPrompt && isatty.IsTerminal(os.Stdin.Fd()) {
			r.prompt = newPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
		}
		r.report = logUpdate(r.logger)
		return r.run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceP("platform", "p", nil, "Platform to run on, repeatable (default K64F)")
	runCmd.Flags().Duration("delay", 0, "Wait before each capture (default 30s)")
	runCmd.Flags().String("end-marker", "", "Text that ends a capture (default \"***END OF TESTS**\")")
	runCmd.Flags().Int("parallel", 0, "Maximum number of platforms run at once (default 4)")
	runCmd.Flags().Bool("tui", false, "Show progress in an interactive view")
	runCmd.Flags().Bool("no-prompt", false, "Never wait for the operator after a failed capture")

	cobra.CheckErr(viper.BindPFlag("run.platforms", runCmd.Flags().Lookup("platform")))
	cobra.CheckErr(viper.BindPFlag("run.delay", runCmd.Flags().Lookup("delay")))
	cobra.CheckErr(viper.BindPFlag("run.end_marker", runCmd.Flags().Lookup("end-marker")))
	cobra.CheckErr(viper.BindPFlag("run.parallel", runCmd.Flags().Lookup("parallel")))
}

// logUpdate reports progress through the logger
func logUpdate(logger zerolog.Logger) func(models.JobUpdateMsg) {
	return func(msg models.JobUpdateMsg) {
		ev := logger.Info()
		if msg.Err != nil {
			ev = logger.Error().Err(msg.Err)
		}
		ev = ev.Str("platform", msg.Platform).Str("stage", msg.Stage.String())
		if msg.Binary != "" {
			ev = ev.Str("binary", msg.Binary)
		}
		if msg.Detail != "" {
			ev = ev.Str("detail", msg.Detail)
		}
		ev.Msg("Progress")
	}
}

// newPrompt asks the operator to reconnect a board, one platform at a time
func newPrompt(in io.Reader, out io.Writer) func(context.Context, string) error {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(ctx context.Context, platform string) error {
		mu.Lock()
		defer mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Connect serial port of %s. Press Enter when ready", platform)
		_, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		return err
	}
}

// runWithTUI runs r behind the progress view. Captures are held back until
// the view has closed.
func runWithTUI(ctx context.Context, out io.Writer, r *runner) error {
	// The view owns the terminal
	logging.Discard()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var captures bytes.Buffer
	r.out = &captures

	model := models.NewRunModel(cancel)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(out))
	r.report = func(msg models.JobUpdateMsg) { p.Send(msg) }

	done := make(chan error, 1)
	go func() {
		err := r.run(ctx)
		p.Send(models.RunDoneMsg{Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-done
		return err
	}

	// Wait for boards to be released even when the view was closed early
	cancel()
	runErr := <-done

	out.Write(captures.Bytes())
	return runErr
}
