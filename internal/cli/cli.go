// Package cli wires the validation engine to the terminal.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/neuronbridge/nbvalidate/internal/cli/hooks"
	"github.com/neuronbridge/nbvalidate/internal/cli/ui"
	"github.com/neuronbridge/nbvalidate/pkg/validator"
)

// Streams are the terminal outputs of a run. Report receives the final
// summary, Status receives progress and echoed findings.
type Streams struct {
	Report      io.Writer
	Status      io.Writer
	Interactive bool
}

// DefaultStreams writes the summary to stdout and everything else to stderr.
// Progress is drawn only when stderr is a terminal.
func DefaultStreams(verbose bool) Streams {
	return Streams{
		Report:      os.Stdout,
		Status:      color.Error,
		Interactive: term.IsTerminal(int(os.Stderr.Fd())) && !verbose,
	}
}

// Run executes a validation with validated options and renders the report.
// It returns validator.ErrValidationFailed when the run found errors, so the
// process exits non-zero.
func Run(ctx context.Context, opts validator.Options, logger *slog.Logger, streams Streams) error {
	var progress hooks.Progress
	if streams.Interactive {
		progress = hooks.NewTrackerProgress(streams.Status)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = hooks.NewCLIHooks(logger, streams.Status, streams.Interactive, opts.Verbose, progress)
	}
	if opts.Echo == nil {
		opts.Echo = streams.Status
	}

	report, err := validator.Validate(ctx, opts)
	if err != nil && report.Summary.SchemaVersion == "" {
		// The engine never started, so OnRunComplete did not stop the display.
		if progress != nil {
			_ = progress.Close()
		}
		logger.Error("Validation could not run", slog.Any("error", err))
		return err
	}

	if renderErr := ui.Render(streams.Report, report, opts.OutputFormat); renderErr != nil {
		logger.Error("Failed to render report", slog.Any("error", renderErr))
		return errors.Join(err, renderErr)
	}
	if err != nil {
		logger.Error("Validation aborted", slog.Any("error", err))
		return err
	}
	if report.Counts.HasErrors {
		return validator.ErrValidationFailed
	}
	return nil
}
