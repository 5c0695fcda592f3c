package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuronbridge/nbvalidate/internal/testutil"
	"github.com/neuronbridge/nbvalidate/pkg/validator"
)

// executeCommand runs a fresh command tree with args and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv("head_node", "")
	t.Setenv("port", "")
	root := newRootCmd()
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func TestRootCmdHelp(t *testing.T) {
	stdout, stderr, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "nbvalidate [flags]")
	assert.Contains(t, stdout, "worker")
}

func TestRootCmdHelp_AllFlagsPresent(t *testing.T) {
	stdout, _, err := executeCommand(t, "--help")
	require.NoError(t, err)

	root := newRootCmd()
	check := func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "help should list --%s", f.Name)
		if f.Shorthand != "" {
			assert.Contains(t, stdout, "-"+f.Shorthand+",", "help should list -%s", f.Shorthand)
		}
	}
	root.Flags().VisitAll(check)
	root.PersistentFlags().VisitAll(check)
}

func TestWorkerCmdHelp(t *testing.T) {
	stdout, _, err := executeCommand(t, "worker", "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--listen")
	assert.Contains(t, stdout, ":"+validator.DefaultWorkerPort)
	assert.Contains(t, stdout, "--verbose", "persistent flags are inherited")
}

func TestRootCmdVersion(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	version, commit, date = "test-1.2.3", "abc123", "2024-01-01T10:00:00Z"
	defer func() { version, commit, date = origVersion, origCommit, origDate }()

	stdout, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "nbvalidate version test-1.2.3 (commit: abc123, built: 2024-01-01T10:00:00Z)\n", stdout)
}

func TestRootCmdFlagParsingErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		errorMsg string
	}{
		{"unknown flag", []string{"--unknown-flag"}, "unknown flag: --unknown-flag"},
		{"bad int", []string{"--cores", "abc"}, `invalid argument "abc" for "--cores" flag`},
		{"positional args", []string{"extra"}, `unknown command "extra"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := executeCommand(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, stderr, tc.errorMsg)
		})
	}
}

func TestRootCmdConfigValidation(t *testing.T) {
	_, _, err := executeCommand(t, "--data-path", t.TempDir(), "--nolookups", "--nomatches")
	assert.True(t, errors.Is(err, validator.ErrConfigValidation), "got %v", err)
}

func TestRootCmdRun(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "images", "a.json"), testutil.LookupJSON(t, testutil.EMImage("1", "em-1")))
	testutil.CreateDummyFile(t, filepath.Join(root, "matches", "m.json"), testutil.MatchesJSON(t,
		testutil.EMImage("7", "em-7"),
		testutil.CDSMatch(testutil.LMImage("10", "R20H11"))))
	cfg := filepath.Join(t.TempDir(), "nbvalidate.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
dataPath: `+root+`
imageDirs: [images]
matchDirs: [matches]
logDir: `+filepath.Join(t.TempDir(), "logs")+`
outputFormat: json
maxLogs: 0
`), 0o644))

	_, _, err := executeCommand(t, "--config", cfg)
	assert.True(t, errors.Is(err, validator.ErrValidationFailed), "unindexed names fail the run, got %v", err)
}
