package validator

import (
	"io"
	"log/slog"

	"github.com/neuronbridge/nbvalidate/pkg/validator/indexstore"
	"github.com/neuronbridge/nbvalidate/pkg/validator/pool"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// TaskPool is the pool the engine submits worker tasks to.
type TaskPool = pool.Pool[Task, Result]

// Hooks defines callbacks for progress during a run. Methods are called from
// the engine goroutine only, never concurrently.
type Hooks interface {
	OnPhaseStart(phase Phase, directories int) error
	OnDirectoryStart(phase Phase, dir string, tasks int) error
	OnTaskComplete(phase Phase, dir string, workerID string, counts *tally.Counter) error
	OnDirectoryComplete(phase Phase, dir string, summary tally.Summary) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of Hooks.
type NoOpHooks struct{}

// OnPhaseStart implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnPhaseStart(Phase, int) error { return nil }

// OnDirectoryStart implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnDirectoryStart(Phase, string, int) error { return nil }

// OnTaskComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskComplete(Phase, string, string, *tally.Counter) error { return nil }

// OnDirectoryComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnDirectoryComplete(Phase, string, tally.Summary) error { return nil }

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(Report) error { return nil }

// Options holds all configuration for a validation run.
type Options struct {
	// --- Data Layout ---
	DataPath    string   `mapstructure:"dataPath"`    // Root of the data release
	DataVersion string   `mapstructure:"dataVersion"` // Recorded in index snapshots
	ImageDirs   []string `mapstructure:"imageDirs"`   // Relative to DataPath unless absolute
	MatchDirs   []string `mapstructure:"matchDirs"`   // Relative to DataPath unless absolute

	// --- Behavior & Control ---
	SkipLookups      bool     `mapstructure:"nolookups"`        // Skip the indexing phase
	SkipMatches      bool     `mapstructure:"nomatches"`        // Skip the match phase
	MatchFile        string   `mapstructure:"match"`            // Validate only this match file
	OneBatch         bool     `mapstructure:"oneBatch"`         // Only the first batch of each match dir
	FlagEmptyMatches bool     `mapstructure:"flagEmptyMatches"` // Report match files with no results
	IgnorePatterns   []string `mapstructure:"ignore"`           // Glob patterns excluded from enumeration
	Verbose          bool     `mapstructure:"verbose"`

	// --- Performance & Distribution ---
	BatchSize      int    `mapstructure:"batchSize"`
	Concurrency    int    `mapstructure:"cores"`   // Local slots, or a cap on remote capacity
	ClusterAddress string `mapstructure:"cluster"` // Worker server address; empty runs locally

	// --- Output ---
	LogDir       string       `mapstructure:"logDir"`
	MaxLogs      int          `mapstructure:"maxLogs"` // Findings per code echoed to stderr per task
	OutputFormat OutputFormat `mapstructure:"outputFormat"`
	IndexFile    string       `mapstructure:"indexFile"`   // Persist/load the published name index
	IndexFormat  string       `mapstructure:"indexFormat"` // "msgpack" or "json"

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"`

	// --- Injected Dependencies ---
	EventHooks Hooks            `mapstructure:"-"` // Required
	Logger     slog.Handler     `mapstructure:"-"` // Required
	Echo       io.Writer        `mapstructure:"-"` // Optional: stderr echo of findings
	Pool       TaskPool         `mapstructure:"-"` // Optional: overrides local/remote pool
	IndexStore indexstore.Store `mapstructure:"-"` // Optional: overrides the file store
}
