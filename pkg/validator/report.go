package validator

import (
	"time"

	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// Report summarizes a single validation run.
type Report struct {
	Summary     ReportSummary     `json:"summary" yaml:"summary"`
	Counts      tally.Summary     `json:"counts" yaml:"counts"`
	Directories []DirectoryReport `json:"directories" yaml:"directories"`
}

// ReportSummary contains run-level facts.
type ReportSummary struct {
	DataPath        string    `json:"dataPath" yaml:"dataPath"`
	ConfigFilePath  string    `json:"configFilePath,omitempty" yaml:"configFilePath,omitempty"`
	ClusterAddress  string    `json:"clusterAddress,omitempty" yaml:"clusterAddress,omitempty"`
	Concurrency     int       `json:"concurrency" yaml:"concurrency"`
	BatchSize       int       `json:"batchSize" yaml:"batchSize"`
	OneBatch        bool      `json:"oneBatch,omitempty" yaml:"oneBatch,omitempty"`
	MatchFile       string    `json:"matchFile,omitempty" yaml:"matchFile,omitempty"`
	IndexedNames    int       `json:"indexedNames" yaml:"indexedNames"`
	IndexSource     string    `json:"indexSource" yaml:"indexSource"` // "built", "loaded", or "none"
	FinalPhase      Phase     `json:"finalPhase" yaml:"finalPhase"`
	HasErrors       bool      `json:"hasErrors" yaml:"hasErrors"`
	Aborted         bool      `json:"aborted" yaml:"aborted"`
	DurationSeconds float64   `json:"durationSeconds" yaml:"durationSeconds"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	SchemaVersion   string    `json:"schemaVersion" yaml:"schemaVersion"`
}

// DirectoryReport is the per-directory breakdown of a run.
type DirectoryReport struct {
	Phase           Phase         `json:"phase" yaml:"phase"`
	Path            string        `json:"path" yaml:"path"`
	Tasks           int           `json:"tasks" yaml:"tasks"`
	Counts          tally.Summary `json:"counts" yaml:"counts"`
	DurationSeconds float64       `json:"durationSeconds" yaml:"durationSeconds"`
}

// Success reports whether the run finished without errors.
func (r Report) Success() bool {
	return !r.Summary.Aborted && !r.Summary.HasErrors
}

// reportBuilder accumulates per-directory results on the engine goroutine.
type reportBuilder struct {
	opts         *Options
	start        time.Time
	directories  []DirectoryReport
	indexedNames int
	indexSource  string
}

func newReportBuilder(opts *Options) *reportBuilder {
	return &reportBuilder{opts: opts, start: time.Now(), indexSource: "none"}
}

func (b *reportBuilder) addDirectory(phase Phase, path string, tasks int, counts *tally.Counter, started time.Time) DirectoryReport {
	d := DirectoryReport{
		Phase:           phase,
		Path:            path,
		Tasks:           tasks,
		Counts:          counts.Summary(),
		DurationSeconds: time.Since(started).Seconds(),
	}
	b.directories = append(b.directories, d)
	return d
}

func (b *reportBuilder) build(final *tally.Counter, phase Phase, concurrency int, aborted bool) Report {
	counts := final.Summary()
	return Report{
		Summary: ReportSummary{
			DataPath:        b.opts.DataPath,
			ConfigFilePath:  b.opts.ConfigFilePath,
			ClusterAddress:  b.opts.ClusterAddress,
			Concurrency:     concurrency,
			BatchSize:       b.opts.BatchSize,
			OneBatch:        b.opts.OneBatch,
			MatchFile:       b.opts.MatchFile,
			IndexedNames:    b.indexedNames,
			IndexSource:     b.indexSource,
			FinalPhase:      phase,
			HasErrors:       counts.HasErrors,
			Aborted:         aborted,
			DurationSeconds: time.Since(b.start).Seconds(),
			Timestamp:       b.start,
			SchemaVersion:   ReportSchemaVersion,
		},
		Counts:      counts,
		Directories: b.directories,
	}
}
