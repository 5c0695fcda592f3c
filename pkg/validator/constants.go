package validator

// Defaults used when setting up configuration.
const (
	// DefaultDataVersion is the NeuronBridge data release validated when no
	// data path is given.
	DefaultDataVersion = "3.3.0"
	// DefaultDataPath is the root of the default data release.
	DefaultDataPath = "/nrs/neuronbridge/v" + DefaultDataVersion
	// DefaultBatchSize bounds the number of match files handed to one task.
	DefaultBatchSize = 1000
	// DefaultMaxLogs caps how many findings per code a task echoes to stderr.
	DefaultMaxLogs = 100
	// DefaultConcurrency of 0 means runtime.NumCPU() local slots.
	DefaultConcurrency = 0
	// DefaultLogDir receives one log file per worker identity.
	DefaultLogDir = "logs"
	// DefaultOutputFormat is the format of the final summary.
	DefaultOutputFormat = OutputFormatText
	// DefaultIndexFormat is the encoding of index snapshots.
	DefaultIndexFormat = "msgpack"
	// DefaultFlagEmptyMatches leaves match files with no results unflagged.
	DefaultFlagEmptyMatches = false
	// DefaultWorkerPort is the port worker servers listen on when none is given.
	DefaultWorkerPort = "7878"
)

// ReportSchemaVersion is the version of the JSON report structure.
const ReportSchemaVersion = "1.0"

// DefaultImageDirs are the image lookup directories, relative to the data path.
func DefaultImageDirs() []string {
	return []string{
		"brain+vnc/mips/embodies",
		"brain+vnc/mips/lmlines",
	}
}

// DefaultMatchDirs are the precomputed match directories, relative to the
// data path, in validation order.
func DefaultMatchDirs() []string {
	return []string{
		"brain/cdmatches/em-vs-lm",
		"brain/cdmatches/lm-vs-em",
		"brain/pppmatches/em-vs-lm",
		"vnc/cdmatches/em-vs-lm",
		"vnc/cdmatches/lm-vs-em",
		"vnc/pppmatches/em-vs-lm",
	}
}
