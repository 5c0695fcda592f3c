package hooks

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

type MockProgress struct {
	mock.Mock
}

// Start mocks the Start method.
func (m *MockProgress) Start(dir string, tasks int) { m.Called(dir, tasks) }

// Advance mocks the Advance method.
func (m *MockProgress) Advance(dir string, n int) { m.Called(dir, n) }

// Done mocks the Done method.
func (m *MockProgress) Done(dir string) { m.Called(dir) }

// Close mocks the Close method.
func (m *MockProgress) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCLIHooks_DrivesProgress(t *testing.T) {
	const dir = "/data/brain/cdmatches/em-vs-lm"
	p := new(MockProgress)
	p.On("Start", dir, 3).Once()
	p.On("Advance", dir, 1).Times(3)
	p.On("Done", dir).Once()
	p.On("Close").Return(nil).Once()

	var out, logs bytes.Buffer
	h := NewCLIHooks(newLogger(&logs), &out, true, false, p)

	require.NoError(t, h.OnPhaseStart(validator.PhaseValidating, 1))
	require.NoError(t, h.OnDirectoryStart(validator.PhaseValidating, dir, 3))
	for i := 0; i < 3; i++ {
		require.NoError(t, h.OnTaskComplete(validator.PhaseValidating, dir, "host-0", tally.New()))
	}
	require.NoError(t, h.OnDirectoryComplete(validator.PhaseValidating, dir, tally.Summary{Items: 1200, TotalErrors: 3, HasErrors: true}))
	require.NoError(t, h.OnRunComplete(validator.Report{}))

	p.AssertExpectations(t)
	assert.Contains(t, out.String(), "Validating 1 match directories")
	assert.Contains(t, out.String(), dir+": 1,200 items, 3 errors, 0 warnings")
	assert.Empty(t, logs.String(), "non-verbose hooks do not log")
}

func TestCLIHooks_NonInteractive(t *testing.T) {
	var out, logs bytes.Buffer
	h := NewCLIHooks(newLogger(&logs), &out, false, false, nil)

	require.NoError(t, h.OnPhaseStart(validator.PhaseIndexing, 2))
	require.NoError(t, h.OnDirectoryStart(validator.PhaseIndexing, "/images", 1))
	require.NoError(t, h.OnTaskComplete(validator.PhaseIndexing, "/images", "host-0", tally.New()))
	require.NoError(t, h.OnDirectoryComplete(validator.PhaseIndexing, "/images", tally.Summary{}))
	require.NoError(t, h.OnRunComplete(validator.Report{}))

	assert.Empty(t, out.String())
	assert.Empty(t, logs.String())
}

func TestCLIHooks_VerboseLogsTasks(t *testing.T) {
	var logs bytes.Buffer
	h := NewCLIHooks(newLogger(&logs), nil, false, true, nil)

	counts := tally.New()
	counts.AddItem(0)
	counts.Record("Missing CDM", tally.SeverityError)
	require.NoError(t, h.OnDirectoryStart(validator.PhaseValidating, "/m", 2))
	require.NoError(t, h.OnTaskComplete(validator.PhaseValidating, "/m", "host-1", counts))

	assert.Contains(t, logs.String(), `msg="Directory started"`)
	assert.Contains(t, logs.String(), "worker=host-1")
	assert.Contains(t, logs.String(), "hasErrors=true")
}

func TestCLIHooks_CloseErrorIsLogged(t *testing.T) {
	p := new(MockProgress)
	p.On("Close").Return(errors.New("tty gone"))

	var logs bytes.Buffer
	h := NewCLIHooks(newLogger(&logs), nil, true, false, p)
	assert.NoError(t, h.OnRunComplete(validator.Report{}))
	assert.Contains(t, logs.String(), "tty gone")
}

func TestTrackerProgress_Lifecycle(t *testing.T) {
	var out bytes.Buffer
	p := NewTrackerProgress(&out)
	p.Start("/data/brain/cdmatches/em-vs-lm", 2)
	p.Advance("/data/brain/cdmatches/em-vs-lm", 2)
	p.Advance("/unknown", 1)
	p.Done("/data/brain/cdmatches/em-vs-lm")
	assert.NoError(t, p.Close())
	assert.Empty(t, p.trackers)
}

func TestTrackerLabel(t *testing.T) {
	assert.Equal(t, "brain/cdmatches/em-vs-lm", trackerLabel("/nrs/neuronbridge/v3.3.0/brain/cdmatches/em-vs-lm"))
	assert.Equal(t, "a/b", trackerLabel("a/b"))
	assert.Equal(t, "x/y/z", trackerLabel("/x/y/z/"))
}
