package validator

// Phase is a state of the validation run.
type Phase string

const (
	PhaseIndexing   Phase = "indexing"
	PhaseValidating Phase = "validating"
	PhaseDone       Phase = "done"
)

// OutputFormat selects how the final summary is rendered.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// TaskKind discriminates the two kinds of worker task.
type TaskKind string

const (
	// TaskIndex validates one image directory and returns its published names.
	TaskIndex TaskKind = "index"
	// TaskMatches validates one batch of match files.
	TaskMatches TaskKind = "matches"
)
