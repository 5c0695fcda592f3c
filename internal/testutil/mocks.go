// Package testutil provides fixtures and mock implementations for the
// interfaces of the nbvalidate core library (pkg/validator and subpackages).
package testutil

import (
	"github.com/stretchr/testify/mock"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
	"github.com/neuronbridge/nbvalidate/pkg/validator/model"
	"github.com/neuronbridge/nbvalidate/pkg/validator/tally"
)

// MockHooks provides a mock implementation of the validator.Hooks interface.
// Configure expectations using testify/mock methods (e.g., .On("OnPhaseStart", ...).Return(nil)).
// The engine calls hooks from a single goroutine, so no extra locking is needed.
type MockHooks struct {
	mock.Mock
}

var _ validator.Hooks = (*MockHooks)(nil)

// OnPhaseStart mocks the OnPhaseStart method.
func (m *MockHooks) OnPhaseStart(phase validator.Phase, directories int) error {
	args := m.Called(phase, directories)
	return args.Error(0)
}

// OnDirectoryStart mocks the OnDirectoryStart method.
func (m *MockHooks) OnDirectoryStart(phase validator.Phase, dir string, tasks int) error {
	args := m.Called(phase, dir, tasks)
	return args.Error(0)
}

// OnTaskComplete mocks the OnTaskComplete method.
func (m *MockHooks) OnTaskComplete(phase validator.Phase, dir string, workerID string, counts *tally.Counter) error {
	args := m.Called(phase, dir, workerID, counts)
	return args.Error(0)
}

// OnDirectoryComplete mocks the OnDirectoryComplete method.
func (m *MockHooks) OnDirectoryComplete(phase validator.Phase, dir string, summary tally.Summary) error {
	args := m.Called(phase, dir, summary)
	return args.Error(0)
}

// OnRunComplete mocks the OnRunComplete method.
func (m *MockHooks) OnRunComplete(report validator.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// AllowAll registers permissive expectations for every hook.
func (m *MockHooks) AllowAll() *MockHooks {
	m.On("OnPhaseStart", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("OnDirectoryStart", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("OnTaskComplete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("OnDirectoryComplete", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("OnRunComplete", mock.Anything).Return(nil).Maybe()
	return m
}

// MockIndexStore provides a mock implementation of the indexstore.Store interface.
type MockIndexStore struct {
	mock.Mock
}

// Load mocks the Load method.
func (m *MockIndexStore) Load(path string) (model.NameIndex, error) {
	args := m.Called(path)
	index, _ := args.Get(0).(model.NameIndex)
	return index, args.Error(1)
}

// Persist mocks the Persist method.
func (m *MockIndexStore) Persist(path string, index model.NameIndex) error {
	args := m.Called(path, index)
	return args.Error(0)
}
