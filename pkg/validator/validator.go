// Package validator validates a NeuronBridge metadata release.
//
// A run has two phases. Indexing validates every image lookup directory, one
// task per directory, and collects the published names it finds. Validating
// then checks every precomputed match file, in batches, against that index.
// Tasks run on a pool.Pool (local goroutines or a remote worker server); each
// task writes its findings to its own log file and returns a tally.Counter,
// and the engine merges those counters into the final Report.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/neuronbridge/nbvalidate/pkg/validator/pool"
)

// Validate runs a complete validation. The error is non-nil only when the
// run could not complete; a completed run with findings returns a Report
// whose Counts.HasErrors is true.
func Validate(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)
	logger.Info("Starting nbvalidate", slog.String("version", versionOrDev(opts.AppVersion)))

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	return engine.Run(ctx)
}

// ServeWorker runs a worker server on addr until ctx is cancelled. The
// server executes tasks sent by engines started with a cluster address,
// writing worker logs under opts.LogDir.
func ServeWorker(ctx context.Context, addr string, opts Options) error {
	if opts.Logger == nil {
		return fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	if opts.LogDir == "" {
		opts.LogDir = DefaultLogDir
	}
	if opts.Concurrency < 0 {
		return fmt.Errorf("%w: cores cannot be negative", ErrConfigValidation)
	}
	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create log directory %q: %w", ErrSetup, opts.LogDir, err)
	}

	local := NewLocalPool(&opts)
	defer local.Close()
	return pool.ListenAndServe(ctx, addr, pool.NewServer(local, opts.Logger), opts.Logger)
}

func versionOrDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
