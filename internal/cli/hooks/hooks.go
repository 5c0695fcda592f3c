package hooks

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// Progress defines what the hooks need from a progress display. Each
// directory gets one tracker, counted in tasks.
type Progress interface {
	Start(dir string, tasks int)
	Advance(dir string, n int)
	Done(dir string)
	Close() error
}

// NoOpProgress provides a default null implementation.
type NoOpProgress struct{}

// Start implements Progress.
func (NoOpProgress) Start(string, int) {}

// Advance implements Progress.
func (NoOpProgress) Advance(string, int) {}

// Done implements Progress.
func (NoOpProgress) Done(string) {}

// Close implements Progress.
func (NoOpProgress) Close() error { return nil }

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cleanStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dirtyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// CLIHooks implements validator.Hooks, bridging engine events to the
// terminal: phase headings and a progress display when interactive, debug
// logging when verbose.
type CLIHooks struct {
	logger      *slog.Logger
	out         io.Writer
	interactive bool
	verbose     bool
	progress    Progress
}

// NewCLIHooks creates a new CLIHooks instance. Pass nil for progress when
// not interactive; a NoOpProgress is used.
func NewCLIHooks(logger *slog.Logger, out io.Writer, interactive, verbose bool, progress Progress) *CLIHooks {
	if progress == nil {
		progress = NoOpProgress{}
	}
	if out == nil {
		out = io.Discard
	}
	return &CLIHooks{
		logger:      logger,
		out:         out,
		interactive: interactive,
		verbose:     verbose,
		progress:    progress,
	}
}

var _ validator.Hooks = (*CLIHooks)(nil)

// OnPhaseStart prints a heading for the phase.
func (h *CLIHooks) OnPhaseStart(phase validator.Phase, directories int) error {
	if h.interactive {
		noun := "match directories"
		if phase == validator.PhaseIndexing {
			noun = "image directories"
		}
		_, _ = fmt.Fprintln(h.out, phaseStyle.Render(fmt.Sprintf("%s %d %s", phaseTitle(phase), directories, noun)))
	}
	return nil
}

// OnDirectoryStart starts a progress tracker for dir.
func (h *CLIHooks) OnDirectoryStart(phase validator.Phase, dir string, tasks int) error {
	h.progress.Start(dir, tasks)
	if h.verbose {
		h.logger.Debug("Directory started", slog.String("phase", string(phase)), slog.String("dir", dir), slog.Int("tasks", tasks))
	}
	return nil
}

// OnTaskComplete advances the tracker of dir.
func (h *CLIHooks) OnTaskComplete(phase validator.Phase, dir string, workerID string, counts *tally.Counter) error {
	h.progress.Advance(dir, 1)
	if h.verbose && counts != nil {
		h.logger.Debug("Task complete",
			slog.String("phase", string(phase)),
			slog.String("dir", dir),
			slog.String("worker", workerID),
			slog.Int("items", counts.Items),
			slog.Bool("hasErrors", counts.HasErrors()))
	}
	return nil
}

// OnDirectoryComplete closes the tracker of dir and, when interactive,
// prints a one-line summary.
func (h *CLIHooks) OnDirectoryComplete(phase validator.Phase, dir string, summary tally.Summary) error {
	h.progress.Done(dir)
	if h.interactive {
		_, _ = fmt.Fprintln(h.out, DirectoryLine(dir, summary))
	}
	return nil
}

// OnRunComplete stops the progress display.
func (h *CLIHooks) OnRunComplete(report validator.Report) error {
	if err := h.progress.Close(); err != nil {
		h.logger.Warn("Failed to stop progress display", slog.String("error", err.Error()))
	}
	return nil
}

// DirectoryLine renders the one-line summary of a directory.
func DirectoryLine(dir string, s tally.Summary) string {
	style := cleanStyle
	if s.HasErrors {
		style = dirtyStyle
	}
	return fmt.Sprintf("  %s %s: %s items, %s errors, %s warnings",
		style.Render("●"),
		dir,
		humanize.Comma(int64(s.Items)),
		humanize.Comma(int64(s.TotalErrors)),
		humanize.Comma(int64(s.TotalWarnings)))
}

func phaseTitle(p validator.Phase) string {
	switch p {
	case validator.PhaseIndexing:
		return "Indexing"
	case validator.PhaseValidating:
		return "Validating"
	default:
		return string(p)
	}
}
