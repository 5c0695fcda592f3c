package validator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/rules"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	LogDir  string
	MaxLogs int
	Echo    io.Writer // Optional: findings echoed here, capped by MaxLogs
	Logger  slog.Handler
}

// Worker executes index and match tasks. One Worker serves many tasks
// concurrently; per-task state lives in a taskRun.
type Worker struct {
	logDir  string
	maxLogs int
	echo    io.Writer
	echoMu  sync.Mutex
	handler slog.Handler
	logger  *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(opts WorkerOptions) *Worker {
	handler := opts.Logger
	if handler == nil {
		handler = slog.DiscardHandler
	}
	return &Worker{
		logDir:  opts.LogDir,
		maxLogs: opts.MaxLogs,
		echo:    opts.Echo,
		handler: handler,
		logger:  slog.New(handler).With(slog.String("component", "worker")),
	}
}

// RunIndexTask validates every image lookup file under dir, skipping names
// matched by ignore, and returns the published names it found together with
// the task's counts.
func (w *Worker) RunIndexTask(ctx context.Context, workerID, dir string, ignore []string) (names model.NameIndex, counts *tally.Counter, err error) {
	run, err := w.begin(workerID)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if closeErr := run.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	paths, err := NewWalker(ignore, w.handler).Enumerate(ctx, dir)
	if err != nil {
		return nil, nil, err
	}
	w.logger.Debug("Indexing directory", slog.String("worker", workerID), slog.String("dir", dir), slog.Int("files", len(paths)))

	names = model.NewNameIndex()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		run.check(path, rules.CodeImageValidationFailed, func(data []byte) ([]rules.Finding, error) {
			lookup, err := model.DecodeImageLookup(data)
			if err != nil {
				return nil, err
			}
			findings := rules.ValidateLookup(lookup, path)
			for _, img := range lookup.Results {
				names.Add(img.Base().PublishedName)
			}
			return findings, nil
		})
	}
	return names, run.counts, nil
}

// RunMatchBatch validates every match file of batch with the given rule
// options. A nil index disables the published name checks.
func (w *Worker) RunMatchBatch(ctx context.Context, workerID string, batch Batch, index model.NameIndex, opts rules.Options) (counts *tally.Counter, err error) {
	run, err := w.begin(workerID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := run.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, path := range batch.Paths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run.check(path, rules.CodeMatchValidationFailed, func(data []byte) ([]rules.Finding, error) {
			matches, err := model.DecodeMatches(data)
			if err != nil {
				return nil, err
			}
			run.counts.Matches += len(matches.Results)
			return rules.ValidateMatches(matches, path, index, opts), nil
		})
	}
	return run.counts, nil
}

// --- taskRun ---

// taskRun is the state of one task: its log file, its counts and its echo
// budget. It is owned by the task's goroutine.
type taskRun struct {
	w        *Worker
	workerID string
	file     *os.File
	log      *bufio.Writer
	counts   *tally.Counter
	echoed   map[string]int
}

func (w *Worker) begin(workerID string) (*taskRun, error) {
	path := filepath.Join(w.logDir, sanitizeWorkerID(workerID)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLogOpen, path, err)
	}
	return &taskRun{
		w:        w,
		workerID: workerID,
		file:     f,
		log:      bufio.NewWriter(f),
		counts:   tally.New(),
		echoed:   make(map[string]int),
	}, nil
}

func (r *taskRun) close() error {
	flushErr := r.log.Flush()
	closeErr := r.file.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: flushing %s: %w", ErrLogOpen, r.file.Name(), flushErr)
	}
	return closeErr
}

// check reads one file and runs validate on its content. Any failure,
// including a panic, becomes a single failureCode finding for the file and
// processing continues with the next file.
func (r *taskRun) check(path, failureCode string, validate func([]byte) ([]rules.Finding, error)) {
	start := time.Now()
	findings, err := safeValidate(path, validate)
	if err != nil {
		findings = []rules.Finding{{
			Severity:  tally.SeverityError,
			Code:      failureCode,
			SubjectID: path,
			FilePath:  path,
			Trace:     err.Error(),
		}}
		r.counts.Exceptions++
	}
	for _, f := range findings {
		r.record(f)
	}
	r.counts.AddItem(time.Since(start))
}

func safeValidate(path string, validate func([]byte) ([]rules.Finding, error)) (findings []rules.Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			findings = nil
			err = fmt.Errorf("%w: %v\n%s", ErrRecordPanic, rec, debug.Stack())
		}
	}()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return validate(data)
}

func (r *taskRun) record(f rules.Finding) {
	r.counts.Record(f.Code, f.Severity)

	line := formatFinding(f)
	if _, err := r.log.WriteString(line); err != nil {
		r.w.logger.Warn("Failed to write worker log", slog.String("worker", r.workerID), slog.String("error", err.Error()))
	}
	r.echoFinding(f)
}

// formatFinding renders one log entry: a tagged line plus the trace, if
// any, indented below it.
func formatFinding(f rules.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s %s\n", f.Severity, f.Code, f.SubjectID, f.FilePath)
	if f.Trace != "" {
		for _, line := range strings.Split(strings.TrimRight(f.Trace, "\n"), "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var (
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
)

func (r *taskRun) echoFinding(f rules.Finding) {
	if r.w.echo == nil || r.w.maxLogs <= 0 {
		return
	}
	if r.echoed[f.Code] >= r.w.maxLogs {
		return
	}
	r.echoed[f.Code]++

	tag := warnTag("[WARN]")
	if f.Severity == tally.SeverityError {
		tag = errorTag("[ERROR]")
	}
	line := fmt.Sprintf("%s %s: %s %s\n", tag, f.Code, f.SubjectID, f.FilePath)

	r.w.echoMu.Lock()
	defer r.w.echoMu.Unlock()
	_, _ = io.WriteString(r.w.echo, line)
}

func sanitizeWorkerID(id string) string {
	if id == "" {
		return "worker"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, id)
}
