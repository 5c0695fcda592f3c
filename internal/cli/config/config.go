package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/indexstore"
)

const (
	EnvPrefix         = "NBVALIDATE"
	DefaultConfigName = "nbvalidate"

	// Cluster environment set by the job scheduler on every node.
	envHeadNode = "head_node"
	envPort     = "port"
)

// flagKeys maps each command-line flag to the config key it overrides.
var flagKeys = map[string]string{
	"data-path":          "dataPath",
	"data-version":       "dataVersion",
	"nolookups":          "nolookups",
	"nomatches":          "nomatches",
	"match":              "match",
	"one-batch":          "oneBatch",
	"flag-empty-matches": "flagEmptyMatches",
	"ignore":             "ignore",
	"verbose":            "verbose",
	"batch-size":         "batchSize",
	"cores":              "cores",
	"cluster":            "cluster",
	"log-dir":            "logDir",
	"max-logs":           "maxLogs",
	"output-format":      "outputFormat",
	"index-file":         "indexFile",
	"index-format":       "indexFormat",
}

// RegisterFlags defines the validation flags on flags. The root command and
// the tests share this definition so that flag names and config keys never
// drift apart.
func RegisterFlags(flags *pflag.FlagSet) {
	// Data layout
	flags.StringP("data-path", "d", "", `Data path to validate, which holds "brain", "vnc", etc. (default /nrs/neuronbridge/v<data-version>)`)
	flags.String("data-version", validator.DefaultDataVersion, "Data release version, used to derive the default data path")

	// Behavior
	flags.Bool("nolookups", false, "Skip validating the image lookups")
	flags.Bool("nomatches", false, "Skip validating the matches")
	flags.String("match", "", "Only validate the given match file")
	flags.Bool("one-batch", false, "Validate only one batch of each match directory (for testing)")
	flags.Bool("flag-empty-matches", validator.DefaultFlagEmptyMatches, "Report match files that have no results")
	flags.StringArray("ignore", []string{}, "Glob patterns for files/directories to skip (can be specified multiple times)")

	// Performance & distribution
	flags.Int("batch-size", validator.DefaultBatchSize, "Number of match files per task")
	flags.Int("cores", validator.DefaultConcurrency, "Number of parallel workers (0 for all CPU cores)")
	flags.String("cluster", "", "Connect to an existing worker server, e.g. 123.45.67.89:7878")

	// Output
	flags.String("log-dir", validator.DefaultLogDir, "Directory for per-worker log files")
	flags.IntP("max-logs", "l", validator.DefaultMaxLogs, "Number of instances per error to print to stderr")
	flags.String("output-format", string(validator.DefaultOutputFormat), `Final report format ("text", "json", "yaml")`)
	flags.String("index-file", "", "Persist the published name index here, or load it with --nolookups")
	flags.String("index-format", validator.DefaultIndexFormat, `Index snapshot encoding ("msgpack", "json")`)
}

// LoadAndValidate loads configuration from all sources (defaults, file,
// profile, env, flags), validates the merged configuration, derives absolute
// paths and the cluster address, and sets up the logger.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (validator.Options, *slog.Logger, error) {
	var opts validator.Options
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	// --- Load Config File ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			tempLogger.Error("Failed to get user home directory", slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", used), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error reading config file '%s': %w", used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	// --- Apply Profile ---
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		profile := v.Sub(profileKey)
		if profile == nil {
			err := fmt.Errorf("failed to load profile '%s' settings from config file '%s'", profileName, v.ConfigFileUsed())
			tempLogger.Error(err.Error())
			return opts, tempLogger, err
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	// --- Bind Environment Variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Bind Flags (Highest Priority) ---
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", name))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", name), slog.Any("error", err))
			return opts, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
		}
	}

	// --- Unmarshal Final Configuration ---
	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}
	if verbose {
		opts.Verbose = true
	}

	// --- Setup Final Logger ---
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	opts.Logger = logHandler

	if err := validateAndDeriveOptions(&opts, logger, flags); err != nil {
		return opts, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", profileName),
		slog.Bool("verbose", opts.Verbose),
		slog.String("logLevel", logLevel.String()),
	)
	return opts, logger, nil
}

// setDefaults establishes the default values for configuration options in
// Viper. Every key needs a default so that environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper) {
	// --- Data Layout ---
	v.SetDefault("dataPath", "")
	v.SetDefault("dataVersion", validator.DefaultDataVersion)
	v.SetDefault("imageDirs", validator.DefaultImageDirs())
	v.SetDefault("matchDirs", validator.DefaultMatchDirs())

	// --- Behavior & Control ---
	v.SetDefault("nolookups", false)
	v.SetDefault("nomatches", false)
	v.SetDefault("match", "")
	v.SetDefault("oneBatch", false)
	v.SetDefault("flagEmptyMatches", validator.DefaultFlagEmptyMatches)
	v.SetDefault("ignore", []string{})
	v.SetDefault("verbose", false)

	// --- Performance & Distribution ---
	v.SetDefault("batchSize", validator.DefaultBatchSize)
	v.SetDefault("cores", validator.DefaultConcurrency)
	v.SetDefault("cluster", "")

	// --- Output ---
	v.SetDefault("logDir", validator.DefaultLogDir)
	v.SetDefault("maxLogs", validator.DefaultMaxLogs)
	v.SetDefault("outputFormat", string(validator.DefaultOutputFormat))
	v.SetDefault("indexFile", "")
	v.SetDefault("indexFormat", validator.DefaultIndexFormat)
}

func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDeriveOptions performs semantic validation on the populated
// Options and derives the data path, absolute paths and the cluster address.
// Errors wrap validator.ErrConfigValidation.
func validateAndDeriveOptions(opts *validator.Options, logger *slog.Logger, flags *pflag.FlagSet) error {
	fail := func(key string, err error) error {
		logger.Error(err.Error(), slog.String("key", key))
		return err
	}

	// === Run Mode ===
	if opts.SkipLookups && opts.SkipMatches && opts.MatchFile == "" {
		return fail("nomatches", fmt.Errorf("%w: --nolookups and --nomatches together leave nothing to validate", validator.ErrConfigValidation))
	}

	// === Path Validations ===
	if opts.MatchFile != "" {
		abs, err := checkPath(opts.MatchFile, false)
		if err != nil {
			return fail("match", err)
		}
		opts.MatchFile = abs
		logger.Debug("Validating a single match file", slog.String("path", opts.MatchFile))
	}
	if opts.DataPath == "" {
		if opts.DataVersion == "" {
			return fail("dataVersion", fmt.Errorf("%w: data version cannot be empty when no data path is given", validator.ErrConfigValidation))
		}
		opts.DataPath = "/nrs/neuronbridge/v" + strings.TrimPrefix(opts.DataVersion, "v")
		logger.Debug("Data path derived from data version", slog.String("path", opts.DataPath))
	}
	if opts.MatchFile == "" {
		abs, err := checkPath(opts.DataPath, true)
		if err != nil {
			return fail("dataPath", err)
		}
		opts.DataPath = abs
	}

	absLogDir, err := filepath.Abs(opts.LogDir)
	if err != nil {
		return fail("logDir", fmt.Errorf("%w: cannot resolve absolute log directory '%s': %w", validator.ErrConfigValidation, opts.LogDir, err))
	}
	opts.LogDir = absLogDir

	if opts.IndexFile != "" {
		absIndex, err := filepath.Abs(opts.IndexFile)
		if err != nil {
			return fail("indexFile", fmt.Errorf("%w: cannot resolve absolute index path '%s': %w", validator.ErrConfigValidation, opts.IndexFile, err))
		}
		opts.IndexFile = absIndex
	}

	// === Enum String Validations ===
	allowedOutput := []validator.OutputFormat{validator.OutputFormatText, validator.OutputFormatJSON, validator.OutputFormatYAML}
	if !isValidEnumValue(opts.OutputFormat, allowedOutput) {
		return fail("outputFormat", fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", validator.ErrConfigValidation, opts.OutputFormat, allowedOutput))
	}
	allowedIndex := []string{indexstore.FormatMsgpack, indexstore.FormatJSON}
	if !isValidEnumValue(opts.IndexFormat, allowedIndex) {
		return fail("indexFormat", fmt.Errorf("%w: invalid value '%s' for key 'indexFormat' (flag --index-format). Allowed: %v", validator.ErrConfigValidation, opts.IndexFormat, allowedIndex))
	}

	// === Numeric Range Validations ===
	if opts.BatchSize < 1 {
		return fail("batchSize", fmt.Errorf("%w: invalid value '%d' for key 'batchSize' (flag --batch-size). Must be >= 1", validator.ErrConfigValidation, opts.BatchSize))
	}
	if opts.Concurrency < 0 {
		return fail("cores", fmt.Errorf("%w: invalid value '%d' for key 'cores' (flag --cores). Must be >= 0", validator.ErrConfigValidation, opts.Concurrency))
	}
	if opts.MaxLogs < 0 {
		return fail("maxLogs", fmt.Errorf("%w: invalid value '%d' for key 'maxLogs' (flag --max-logs). Must be >= 0", validator.ErrConfigValidation, opts.MaxLogs))
	}

	// === Cluster Address ===
	if opts.ClusterAddress == "" && !flags.Changed("cluster") {
		opts.ClusterAddress = ClusterFromEnv()
	}
	if opts.ClusterAddress != "" {
		logger.Info("Using cluster", slog.String("address", opts.ClusterAddress))
	}

	logger.Debug("Final derived settings validated",
		slog.String("dataPath", opts.DataPath),
		slog.String("logDir", opts.LogDir),
		slog.Int("batchSize", opts.BatchSize),
		slog.Int("cores", opts.Concurrency),
		slog.String("cluster", opts.ClusterAddress),
		slog.Bool("nolookups", opts.SkipLookups),
		slog.Bool("nomatches", opts.SkipMatches),
	)
	return nil
}

// ClusterFromEnv returns "head_node:port" when the scheduler exported a head
// node, and "" otherwise. A missing port falls back to the default worker port.
func ClusterFromEnv() string {
	head := os.Getenv(envHeadNode)
	if head == "" {
		return ""
	}
	port := os.Getenv(envPort)
	if port == "" {
		port = validator.DefaultWorkerPort
	}
	return net.JoinHostPort(head, port)
}

// checkPath resolves path to an absolute one and checks it exists with the
// expected kind.
func checkPath(path string, wantDir bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve absolute path '%s': %w", validator.ErrConfigValidation, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: path '%s' does not exist", validator.ErrConfigValidation, abs)
		}
		return "", fmt.Errorf("%w: cannot access path '%s': %w", validator.ErrConfigValidation, abs, err)
	}
	if wantDir && !info.IsDir() {
		return "", fmt.Errorf("%w: path '%s' is not a directory", validator.ErrConfigValidation, abs)
	}
	if !wantDir && info.IsDir() {
		return "", fmt.Errorf("%w: path '%s' is a directory, not a file", validator.ErrConfigValidation, abs)
	}
	return abs, nil
}

// workerFlagKeys maps the flags of the worker command to config keys.
var workerFlagKeys = map[string]string{
	"listen":   "listen",
	"cores":    "cores",
	"log-dir":  "logDir",
	"max-logs": "maxLogs",
	"verbose":  "verbose",
}

// RegisterWorkerFlags defines the flags of the worker server command.
func RegisterWorkerFlags(flags *pflag.FlagSet) {
	flags.String("listen", ":"+validator.DefaultWorkerPort, "Address the worker server listens on")
	flags.Int("cores", validator.DefaultConcurrency, "Number of tasks executed in parallel (0 for all CPU cores)")
	flags.String("log-dir", validator.DefaultLogDir, "Directory for per-worker log files")
	flags.IntP("max-logs", "l", validator.DefaultMaxLogs, "Number of instances per error to print to stderr")
}

// LoadWorker loads the worker server configuration from env and flags and
// returns the options together with the listen address. Config files and
// profiles are not consulted; workers are usually started by a job script.
func LoadWorker(appVersion string, verbose bool, flags *pflag.FlagSet) (validator.Options, string, *slog.Logger, error) {
	v := viper.New()
	v.SetDefault("listen", ":"+validator.DefaultWorkerPort)
	v.SetDefault("cores", validator.DefaultConcurrency)
	v.SetDefault("logDir", validator.DefaultLogDir)
	v.SetDefault("maxLogs", validator.DefaultMaxLogs)
	v.SetDefault("verbose", false)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for name, key := range workerFlagKeys {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return validator.Options{}, "", nil, fmt.Errorf("error binding flag '--%s': %w", name, err)
			}
		}
	}

	opts := validator.Options{
		AppVersion:  appVersion,
		Concurrency: v.GetInt("cores"),
		LogDir:      v.GetString("logDir"),
		MaxLogs:     v.GetInt("maxLogs"),
		Verbose:     verbose || v.GetBool("verbose"),
	}
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	opts.Logger = handler
	logger := slog.New(handler)

	listen := v.GetString("listen")
	if _, _, err := net.SplitHostPort(listen); err != nil {
		err = fmt.Errorf("%w: invalid listen address '%s': %w", validator.ErrConfigValidation, listen, err)
		logger.Error(err.Error())
		return opts, "", logger, err
	}
	if opts.MaxLogs < 0 {
		err := fmt.Errorf("%w: max-logs cannot be negative", validator.ErrConfigValidation)
		logger.Error(err.Error())
		return opts, "", logger, err
	}
	if abs, err := filepath.Abs(opts.LogDir); err == nil {
		opts.LogDir = abs
	}
	return opts, listen, logger, nil
}
