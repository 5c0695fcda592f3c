package validator

import "errors"

// --- Exported Error Variables ---
// Fatal errors are returned by Validate and Engine.Run and can be checked
// with errors.Is. Per-file problems never surface here; they become counts
// in the Report.

var (
	// ErrConfigValidation indicates the Options failed validation before any
	// work started (missing data path, negative batch size, bad format).
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrSetup indicates the run could not start: the log directory could not
	// be created, the task pool could not be reached, or an index snapshot
	// could not be loaded.
	ErrSetup = errors.New("validation setup failed")

	// ErrIndexTask indicates an indexing task failed outright, for example
	// because its image directory is unreadable. The run aborts before any
	// match validation.
	ErrIndexTask = errors.New("indexing task failed")

	// ErrMatchTask indicates a match batch task failed outright (not a
	// per-file failure, which is counted instead).
	ErrMatchTask = errors.New("match validation task failed")

	// ErrEnumerate indicates a directory could not be listed.
	ErrEnumerate = errors.New("failed to enumerate directory")

	// ErrLogOpen indicates a worker could not open its log file.
	ErrLogOpen = errors.New("failed to open worker log")

	// ErrReadFailed indicates a metadata file could not be read. It is
	// recorded as a per-file validation failure.
	ErrReadFailed = errors.New("failed to read file")

	// ErrRecordPanic indicates decoding or validating one file panicked. It is
	// recorded as a per-file validation failure.
	ErrRecordPanic = errors.New("panic while validating file")

	// ErrValidationFailed is returned by the CLI when the run completed but
	// recorded at least one error.
	ErrValidationFailed = errors.New("validation found errors")
)
