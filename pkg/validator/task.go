package validator

import (
	"context"
	"fmt"

	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/rules"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// Task is the unit of work submitted to a TaskPool. It is sent as msgpack to
// remote workers, which must see the same filesystem paths as the engine.
// Ignore patterns and rule options travel with the task so every worker
// applies the controller's settings.
type Task struct {
	Kind   TaskKind        `msgpack:"kind"`
	Dir    string          `msgpack:"dir,omitempty"`
	Batch  Batch           `msgpack:"batch"`
	Index  model.NameIndex `msgpack:"index"` // Frozen snapshot; nil disables name checks
	Ignore []string        `msgpack:"ignore,omitempty"`
	Rules  rules.Options   `msgpack:"rules"`
}

// Result is what a task hands back to the engine.
type Result struct {
	Names  model.NameIndex `msgpack:"names,omitempty"`
	Counts *tally.Counter  `msgpack:"counts"`
}

// Run executes task under workerID. It has the pool.TaskFunc signature, so a
// Worker can back a local pool or a worker server directly.
func (w *Worker) Run(ctx context.Context, workerID string, task Task) (Result, error) {
	switch task.Kind {
	case TaskIndex:
		names, counts, err := w.RunIndexTask(ctx, workerID, task.Dir, task.Ignore)
		if err != nil {
			return Result{}, err
		}
		return Result{Names: names, Counts: counts}, nil
	case TaskMatches:
		counts, err := w.RunMatchBatch(ctx, workerID, task.Batch, task.Index, task.Rules)
		if err != nil {
			return Result{}, err
		}
		return Result{Counts: counts}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown task kind %q", ErrConfigValidation, task.Kind)
	}
}
