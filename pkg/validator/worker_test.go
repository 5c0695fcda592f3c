package validator_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuronbridge/nbvalidate/internal/testutil"
	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/rules"
)

// writeValidMatches writes n match files that pass every rule against an
// index containing "em-<i>" and "R20H11".
func writeValidMatches(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		content := testutil.MatchesJSON(t,
			testutil.EMImage(fmt.Sprintf("%d", i), fmt.Sprintf("em-%d", i)),
			testutil.CDSMatch(testutil.LMImage("lm", "R20H11")))
		testutil.CreateDummyFile(t, filepath.Join(dir, fmt.Sprintf("m%02d.json", i)), content)
	}
}

func newTestWorker(t *testing.T, opts validator.WorkerOptions) (*validator.Worker, string) {
	t.Helper()
	if opts.LogDir == "" {
		opts.LogDir = t.TempDir()
	}
	return validator.NewWorker(opts), opts.LogDir
}

func batchOf(t *testing.T, dir string) validator.Batch {
	t.Helper()
	paths, err := validator.NewWalker(nil, nil).Enumerate(context.Background(), dir)
	require.NoError(t, err)
	batches := validator.MakeBatches(dir, paths, len(paths))
	require.Len(t, batches, 1)
	return batches[0]
}

func TestWorker_FaultIsolation(t *testing.T) {
	dir := t.TempDir()
	writeValidMatches(t, dir, 9)
	testutil.CreateDummyFile(t, filepath.Join(dir, "broken.json"), `{"inputImage": {"id": `)

	w, logDir := newTestWorker(t, validator.WorkerOptions{})
	counts, err := w.RunMatchBatch(context.Background(), "w-1", batchOf(t, dir), nil, rules.Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{rules.CodeMatchValidationFailed: 1}, counts.Errors)
	assert.Empty(t, counts.Warnings)
	assert.Equal(t, 1, counts.Exceptions)
	assert.Equal(t, 10, counts.Items)
	assert.Equal(t, 9, counts.Matches)

	logData, err := os.ReadFile(filepath.Join(logDir, "w-1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "[ERROR] Validation failed for match: ")
	assert.Contains(t, string(logData), "broken.json")
	assert.Contains(t, string(logData), "    ", "trace is indented below the entry")
}

func TestWorker_UnreadableFileIsIsolated(t *testing.T) {
	w, _ := newTestWorker(t, validator.WorkerOptions{})
	dir := t.TempDir()
	writeValidMatches(t, dir, 1)
	batch := batchOf(t, dir)
	batch.Files = append(batch.Files, "gone.json")

	counts, err := w.RunMatchBatch(context.Background(), "w-1", batch, nil, rules.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Errors[rules.CodeMatchValidationFailed])
	assert.Equal(t, 2, counts.Items)
}

func TestWorker_MatchBatchAgainstIndex(t *testing.T) {
	dir := t.TempDir()
	writeValidMatches(t, dir, 3)

	w, _ := newTestWorker(t, validator.WorkerOptions{})
	index := model.NameIndexFrom([]string{"em-0", "em-1", "em-2"})
	counts, err := w.RunMatchBatch(context.Background(), "w-1", batchOf(t, dir), index, rules.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Errors[rules.CodeMatchNameNotIndexed], "R20H11 is not indexed")
	assert.Zero(t, counts.Errors[rules.CodeNameNotIndexed])
	assert.Equal(t, 3, counts.Items)
}

func TestWorker_IndexTask(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(dir, "a.json"), testutil.LookupJSON(t, testutil.EMImage("1", "em-1")))
	testutil.CreateDummyFile(t, filepath.Join(dir, "sub", "b.json"), testutil.LookupJSON(t,
		testutil.LMImage("2", "R20H11"),
		testutil.LMImage("3", "R20H11").Without("VisuallyLosslessStack")))
	testutil.CreateDummyFile(t, filepath.Join(dir, "empty.json"), testutil.LookupJSON(t))

	w, _ := newTestWorker(t, validator.WorkerOptions{})
	names, counts, err := w.RunIndexTask(context.Background(), "w-1", dir, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"em-1", "R20H11"}, names.Names())
	assert.Equal(t, map[string]int{rules.CodeNoImages: 1}, counts.Errors)
	assert.Equal(t, map[string]int{rules.CodeMissingVisuallyLosslessStack: 1}, counts.Warnings)
	assert.Equal(t, 3, counts.Items)
	assert.Zero(t, counts.Exceptions)
}

func TestWorker_IndexTaskMissingDir(t *testing.T) {
	w, _ := newTestWorker(t, validator.WorkerOptions{})
	_, _, err := w.RunIndexTask(context.Background(), "w-1", filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, err, validator.ErrEnumerate)
}

func TestWorker_LogAppendsAcrossTasks(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(dir, "broken.json"), "not json")

	w, logDir := newTestWorker(t, validator.WorkerOptions{})
	for i := 0; i < 2; i++ {
		_, err := w.RunMatchBatch(context.Background(), "host:1", batchOf(t, dir), nil, rules.Options{})
		require.NoError(t, err)
	}

	logData, err := os.ReadFile(filepath.Join(logDir, "host_1.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(logData), "[ERROR] Validation failed for match"))
}

func TestWorker_EchoCap(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		testutil.CreateDummyFile(t, filepath.Join(dir, fmt.Sprintf("l%d.json", i)), testutil.LookupJSON(t,
			testutil.LMImage(fmt.Sprintf("%d", i), "R20H11").Without("VisuallyLosslessStack")))
	}

	var echo bytes.Buffer
	w, logDir := newTestWorker(t, validator.WorkerOptions{MaxLogs: 2, Echo: &echo})
	_, counts, err := w.RunIndexTask(context.Background(), "w-1", dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, counts.Warnings[rules.CodeMissingVisuallyLosslessStack], "counts are never capped")
	assert.Equal(t, 2, strings.Count(echo.String(), rules.CodeMissingVisuallyLosslessStack))

	logData, err := os.ReadFile(filepath.Join(logDir, "w-1.log"))
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(logData), "[WARN] "+rules.CodeMissingVisuallyLosslessStack))
}

func TestWorker_EchoDisabled(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(dir, "broken.json"), "not json")

	var echo bytes.Buffer
	w, _ := newTestWorker(t, validator.WorkerOptions{MaxLogs: 0, Echo: &echo})
	_, err := w.RunMatchBatch(context.Background(), "w-1", batchOf(t, dir), nil, rules.Options{})
	require.NoError(t, err)
	assert.Empty(t, echo.String())
}

func TestWorker_LogOpenFailure(t *testing.T) {
	w, _ := newTestWorker(t, validator.WorkerOptions{LogDir: filepath.Join(t.TempDir(), "missing")})
	_, err := w.RunMatchBatch(context.Background(), "w-1", validator.Batch{}, nil, rules.Options{})
	assert.ErrorIs(t, err, validator.ErrLogOpen)
}

func TestWorker_RunDispatch(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(dir, "a.json"), testutil.LookupJSON(t, testutil.EMImage("1", "em-1")))
	w, _ := newTestWorker(t, validator.WorkerOptions{})

	res, err := w.Run(context.Background(), "w-1", validator.Task{Kind: validator.TaskIndex, Dir: dir})
	require.NoError(t, err)
	assert.True(t, res.Names.Contains("em-1"))
	assert.Equal(t, 1, res.Counts.Items)

	_, err = w.Run(context.Background(), "w-1", validator.Task{Kind: "bogus"})
	assert.ErrorIs(t, err, validator.ErrConfigValidation)
}

func TestWorker_CancelledBatch(t *testing.T) {
	dir := t.TempDir()
	writeValidMatches(t, dir, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, _ := newTestWorker(t, validator.WorkerOptions{})
	_, err := w.RunMatchBatch(ctx, "w-1", batchOf(t, dir), nil, rules.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_RunAppliesTaskOptions(t *testing.T) {
	images := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(images, "a.json"), testutil.LookupJSON(t, testutil.EMImage("1", "em-1")))
	testutil.CreateDummyFile(t, filepath.Join(images, "scratch.tmp"), "not json")
	matches := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(matches, "empty.json"), testutil.MatchesJSON(t, testutil.EMImage("1", "em-1")))

	// The worker itself carries no rule or ignore settings.
	w, _ := newTestWorker(t, validator.WorkerOptions{})

	res, err := w.Run(context.Background(), "w-1", validator.Task{Kind: validator.TaskIndex, Dir: images, Ignore: []string{"*.tmp"}})
	require.NoError(t, err)
	assert.Empty(t, res.Counts.Errors)
	assert.Equal(t, 1, res.Counts.Items)

	res, err = w.Run(context.Background(), "w-1", validator.Task{Kind: validator.TaskIndex, Dir: images})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Errors[rules.CodeImageValidationFailed], "without the pattern the scratch file is read")

	task := validator.Task{Kind: validator.TaskMatches, Batch: batchOf(t, matches)}
	res, err = w.Run(context.Background(), "w-1", task)
	require.NoError(t, err)
	assert.Empty(t, res.Counts.Errors)

	task.Rules = rules.Options{FlagEmptyMatches: true}
	res, err = w.Run(context.Background(), "w-1", task)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{rules.CodeNoMatches: 1}, res.Counts.Errors)
}
