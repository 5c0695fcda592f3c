package validator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neuronbridge/nbvalidate/pkg/util"
	"github.com/neuronbridge/nbvalidate/pkg/validator/indexstore"
	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/pool"
	"github.com/neuronbridge/nbvalidate/pkg/validator/rules"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// Engine runs the two validation phases. Indexing validates every image
// directory and builds the published name index; only once every indexing
// task has finished does Validating start, handing the frozen index to the
// match tasks. All results are merged through a single tally.Owner.
type Engine struct {
	opts      *Options
	logger    *slog.Logger
	hooks     Hooks
	pool      TaskPool
	ownsPool  bool
	walker    *Walker
	store     indexstore.Store
	imageDirs []string
	matchDirs []string
	owner     *tally.Owner
	phase     Phase
}

// NewEngine validates opts, prepares the log directory and connects the task
// pool. Any failure here is fatal and nothing has been validated yet.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if err := normalizeOptions(&opts); err != nil {
		logger.Error("Invalid options", slog.String("error", err.Error()))
		return nil, err
	}

	// --- Log Directory ---
	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create log directory %q: %w", ErrSetup, opts.LogDir, err)
	}

	// --- Task Pool ---
	taskPool := opts.Pool
	ownsPool := false
	if taskPool == nil {
		var err error
		taskPool, err = newTaskPool(ctx, &opts)
		if err != nil {
			return nil, err
		}
		ownsPool = true
	}

	// --- Index Store ---
	store := opts.IndexStore
	if store == nil && opts.IndexFile != "" {
		store = indexstore.NewFileStore(opts.Logger, opts.AppVersion, opts.DataVersion, opts.IndexFormat)
	}

	e := &Engine{
		opts:      &opts,
		logger:    logger,
		hooks:     opts.EventHooks,
		pool:      taskPool,
		ownsPool:  ownsPool,
		walker:    NewWalker(opts.IgnorePatterns, opts.Logger),
		store:     store,
		imageDirs: resolveDirs(opts.DataPath, opts.ImageDirs),
		matchDirs: resolveDirs(opts.DataPath, opts.MatchDirs),
	}
	logger.Debug("Engine initialized",
		slog.String("dataPath", opts.DataPath),
		slog.Int("imageDirs", len(e.imageDirs)),
		slog.Int("matchDirs", len(e.matchDirs)),
		slog.Int("capacity", taskPool.Capacity()))
	return e, nil
}

func normalizeOptions(opts *Options) error {
	if opts.DataPath == "" && opts.MatchFile == "" {
		return fmt.Errorf("%w: data path cannot be empty", ErrConfigValidation)
	}
	if opts.BatchSize < 0 {
		return fmt.Errorf("%w: batch size cannot be negative", ErrConfigValidation)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency < 0 {
		return fmt.Errorf("%w: cores cannot be negative", ErrConfigValidation)
	}
	if opts.MaxLogs < 0 {
		return fmt.Errorf("%w: max logs cannot be negative", ErrConfigValidation)
	}
	switch opts.OutputFormat {
	case "":
		opts.OutputFormat = DefaultOutputFormat
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrConfigValidation, opts.OutputFormat)
	}
	switch opts.IndexFormat {
	case "":
		opts.IndexFormat = DefaultIndexFormat
	case indexstore.FormatMsgpack, indexstore.FormatJSON:
	default:
		return fmt.Errorf("%w: unknown index format %q", ErrConfigValidation, opts.IndexFormat)
	}
	if opts.LogDir == "" {
		opts.LogDir = DefaultLogDir
	}
	if opts.ImageDirs == nil {
		opts.ImageDirs = DefaultImageDirs()
	}
	if opts.MatchDirs == nil {
		opts.MatchDirs = DefaultMatchDirs()
	}
	return nil
}

func resolveDirs(root string, dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, util.JoinUnder(root, d))
	}
	return out
}

// newTaskPool connects to the configured cluster or starts a local pool.
func newTaskPool(ctx context.Context, opts *Options) (TaskPool, error) {
	if opts.ClusterAddress != "" {
		remote, err := pool.NewRemote[Task, Result](ctx, opts.ClusterAddress, pool.RemoteOptions{
			Capacity: opts.Concurrency,
			Logger:   opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: connecting to cluster %s: %w", ErrSetup, opts.ClusterAddress, err)
		}
		return remote, nil
	}
	return NewLocalPool(opts), nil
}

// NewLocalPool builds an in-process pool backed by a Worker configured from opts.
func NewLocalPool(opts *Options) *pool.Local[Task, Result] {
	worker := NewWorker(WorkerOptions{
		LogDir:  opts.LogDir,
		MaxLogs: opts.MaxLogs,
		Echo:    opts.Echo,
		Logger:  opts.Logger,
	})
	return pool.NewLocal(worker.Run, pool.LocalOptions{
		Size:         opts.Concurrency,
		WorkerPrefix: workerPrefix(),
		Logger:       opts.Logger,
	})
}

// workerPrefix names the workers of this process. The pid keeps two worker
// processes on one host from sharing log files.
func workerPrefix() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// taskRules are the rule options sent with every match task.
func (e *Engine) taskRules() rules.Options {
	return rules.Options{FlagEmptyMatches: e.opts.FlagEmptyMatches}
}

// Run executes the validation run. The returned error is non-nil only for
// fatal problems (setup failures, failed tasks, cancellation); findings are
// reported through the Report.
func (e *Engine) Run(ctx context.Context) (report Report, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.owner = tally.NewOwner()
	builder := newReportBuilder(e.opts)
	e.logger.Info("Starting validation run",
		slog.String("dataPath", e.opts.DataPath),
		slog.Int("capacity", e.pool.Capacity()),
		slog.Int("batchSize", e.opts.BatchSize),
		slog.Bool("oneBatch", e.opts.OneBatch))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during validation run", slog.Any("panicValue", r))
			err = fmt.Errorf("panic during validation run: %v", r)
		}
		if err != nil {
			cancel()
		}
		if e.ownsPool {
			if closeErr := e.pool.Close(); closeErr != nil {
				e.logger.Warn("Failed to close task pool", slog.String("error", closeErr.Error()))
			}
		}
		final := e.owner.Close()
		if err == nil {
			e.setPhase(PhaseDone)
		}
		report = builder.build(final, e.phase, e.pool.Capacity(), err != nil)
		e.logger.Info("Validation run finished",
			slog.Duration("duration", time.Since(builder.start)),
			slog.Int("items", report.Counts.Items),
			slog.Int("errors", report.Counts.TotalErrors),
			slog.Int("warnings", report.Counts.TotalWarnings),
			slog.Bool("hasErrors", report.Counts.HasErrors),
			slog.Bool("aborted", report.Summary.Aborted))
		e.hook("OnRunComplete", e.hooks.OnRunComplete(report))
	}()

	if e.opts.MatchFile != "" {
		return report, e.runSingleMatchFile(runCtx, builder)
	}

	var index model.NameIndex
	if !e.opts.SkipLookups {
		index, err = e.runIndexing(runCtx, builder)
		if err != nil {
			return report, err
		}
		e.persistIndex(index)
	} else {
		index, err = e.loadIndex(builder)
		if err != nil {
			return report, err
		}
	}

	if !e.opts.SkipMatches {
		// Match tasks share one snapshot that nothing else holds.
		index = index.Clone()
		if err := e.runValidating(runCtx, builder, index); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Engine) setPhase(p Phase) {
	if e.phase != p {
		e.logger.Info("Phase transition", slog.String("from", string(e.phase)), slog.String("to", string(p)))
	}
	e.phase = p
}

func (e *Engine) hook(name string, err error) {
	if err != nil {
		e.logger.Warn("Event hook failed", slog.String("hook", name), slog.String("error", err.Error()))
	}
}

// --- Indexing ---

// runIndexing submits one task per image directory and waits for all of
// them. The returned index is complete: every task has been joined.
func (e *Engine) runIndexing(ctx context.Context, builder *reportBuilder) (model.NameIndex, error) {
	e.setPhase(PhaseIndexing)
	e.hook("OnPhaseStart", e.hooks.OnPhaseStart(PhaseIndexing, len(e.imageDirs)))

	started := time.Now()
	dirOf := make(map[*pool.Future[Result]]string, len(e.imageDirs))
	pending := make([]*pool.Future[Result], 0, len(e.imageDirs))
	for _, dir := range e.imageDirs {
		e.hook("OnDirectoryStart", e.hooks.OnDirectoryStart(PhaseIndexing, dir, 1))
		f, err := e.pool.Submit(ctx, Task{Kind: TaskIndex, Dir: dir, Ignore: e.opts.IgnorePatterns})
		if err != nil {
			return nil, fmt.Errorf("%w: submitting index task for %s: %w", ErrSetup, dir, err)
		}
		dirOf[f] = dir
		pending = append(pending, f)
	}

	index := model.NewNameIndex()
	err := pool.WaitAll(ctx, pending, func(f *pool.Future[Result]) error {
		dir := dirOf[f]
		res, err := f.Result()
		if err != nil {
			e.logger.Error("Indexing task failed", slog.String("dir", dir), slog.String("error", err.Error()))
			return fmt.Errorf("%w: %s: %w", ErrIndexTask, dir, err)
		}
		counts := orEmpty(res.Counts)
		index.Union(res.Names)
		e.owner.Merge(counts)
		e.hook("OnTaskComplete", e.hooks.OnTaskComplete(PhaseIndexing, dir, f.WorkerID(), counts))

		d := builder.addDirectory(PhaseIndexing, dir, 1, counts, started)
		e.logDirectorySummary(d)
		e.hook("OnDirectoryComplete", e.hooks.OnDirectoryComplete(PhaseIndexing, dir, d.Counts))
		return nil
	})
	if err != nil {
		return nil, err
	}

	builder.indexedNames = index.Len()
	builder.indexSource = "built"
	e.logger.Info("Indexed published names", slog.Int("names", index.Len()))
	return index, nil
}

func (e *Engine) persistIndex(index model.NameIndex) {
	if e.store == nil || e.opts.IndexFile == "" {
		return
	}
	if err := e.store.Persist(e.opts.IndexFile, index); err != nil {
		e.logger.Error("Failed to persist index snapshot", slog.String("path", e.opts.IndexFile), slog.String("error", err.Error()))
	}
}

// loadIndex returns the stored index snapshot, or nil (no referential
// checks) when none is configured or present.
func (e *Engine) loadIndex(builder *reportBuilder) (model.NameIndex, error) {
	if e.store == nil || e.opts.IndexFile == "" {
		e.logger.Info("Indexing skipped and no index snapshot configured, published name checks disabled")
		return nil, nil
	}
	index, err := e.store.Load(e.opts.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if index == nil {
		e.logger.Warn("Index snapshot not found, published name checks disabled", slog.String("path", e.opts.IndexFile))
		return nil, nil
	}
	builder.indexedNames = index.Len()
	builder.indexSource = "loaded"
	return index, nil
}

// --- Validating ---

// runValidating validates each match directory in turn against the frozen
// index. index is never modified from here on.
func (e *Engine) runValidating(ctx context.Context, builder *reportBuilder, index model.NameIndex) error {
	e.setPhase(PhaseValidating)
	e.hook("OnPhaseStart", e.hooks.OnPhaseStart(PhaseValidating, len(e.matchDirs)))

	for _, dir := range e.matchDirs {
		paths, err := e.walker.Enumerate(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("Skipping match directory", slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		batches := MakeBatches(dir, paths, e.opts.BatchSize)
		if e.opts.OneBatch && len(batches) > 1 {
			e.logger.Info("One-batch mode, skipping remaining batches",
				slog.String("dir", dir), slog.Int("skipped", len(batches)-1))
			batches = batches[:1]
		}
		if err := e.validateBatches(ctx, builder, dir, batches, index); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runSingleMatchFile(ctx context.Context, builder *reportBuilder) error {
	index, err := e.loadIndex(builder)
	if err != nil {
		return err
	}
	e.setPhase(PhaseValidating)
	e.hook("OnPhaseStart", e.hooks.OnPhaseStart(PhaseValidating, 1))
	dir := filepath.Dir(e.opts.MatchFile)
	batch := Batch{RootDir: dir, Files: []string{filepath.Base(e.opts.MatchFile)}}
	return e.validateBatches(ctx, builder, e.opts.MatchFile, []Batch{batch}, index)
}

// validateBatches submits one task per batch and merges results as they
// finish, in whatever order that is.
func (e *Engine) validateBatches(ctx context.Context, builder *reportBuilder, dir string, batches []Batch, index model.NameIndex) error {
	e.hook("OnDirectoryStart", e.hooks.OnDirectoryStart(PhaseValidating, dir, len(batches)))
	e.logger.Info("Validating match directory", slog.String("dir", dir), slog.Int("batches", len(batches)))

	started := time.Now()
	pending := make([]*pool.Future[Result], 0, len(batches))
	for _, b := range batches {
		f, err := e.pool.Submit(ctx, Task{Kind: TaskMatches, Batch: b, Index: index, Rules: e.taskRules()})
		if err != nil {
			return fmt.Errorf("%w: submitting match batch for %s: %w", ErrSetup, dir, err)
		}
		pending = append(pending, f)
	}

	dirCounts := tally.New()
	err := pool.WaitAll(ctx, pending, func(f *pool.Future[Result]) error {
		res, err := f.Result()
		if err != nil {
			e.logger.Error("Match task failed", slog.String("dir", dir), slog.String("error", err.Error()))
			return fmt.Errorf("%w: %s: %w", ErrMatchTask, dir, err)
		}
		counts := orEmpty(res.Counts)
		dirCounts.Merge(counts)
		e.owner.Merge(counts)
		e.hook("OnTaskComplete", e.hooks.OnTaskComplete(PhaseValidating, dir, f.WorkerID(), counts))
		return nil
	})
	if err != nil {
		return err
	}

	d := builder.addDirectory(PhaseValidating, dir, len(batches), dirCounts, started)
	e.logDirectorySummary(d)
	e.hook("OnDirectoryComplete", e.hooks.OnDirectoryComplete(PhaseValidating, dir, d.Counts))
	return nil
}

func (e *Engine) logDirectorySummary(d DirectoryReport) {
	e.logger.Info("Directory summary",
		slog.String("phase", string(d.Phase)),
		slog.String("dir", d.Path),
		slog.Int("tasks", d.Tasks),
		slog.Int("items", d.Counts.Items),
		slog.Duration("meanElapsed", d.Counts.MeanElapsed),
		slog.Int("errors", d.Counts.TotalErrors),
		slog.Int("warnings", d.Counts.TotalWarnings),
		slog.Int("exceptions", d.Counts.Exceptions),
		slog.Int("matches", d.Counts.Matches))
}

func orEmpty(c *tally.Counter) *tally.Counter {
	if c == nil {
		return tally.New()
	}
	return c
}
