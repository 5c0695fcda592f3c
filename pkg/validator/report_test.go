package validator_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuronbridge/nbvalidate/pkg/validator"
)

func TestReport_Success(t *testing.T) {
	tests := []struct {
		name    string
		summary validator.ReportSummary
		want    bool
	}{
		{"clean", validator.ReportSummary{}, true},
		{"errors", validator.ReportSummary{HasErrors: true}, false},
		{"aborted", validator.ReportSummary{Aborted: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validator.Report{Summary: tt.summary}.Success())
		})
	}
}

func TestReport_JSONKeys(t *testing.T) {
	data, err := json.Marshal(validator.Report{Summary: validator.ReportSummary{
		DataPath:      "/data",
		IndexSource:   "built",
		FinalPhase:    validator.PhaseDone,
		SchemaVersion: validator.ReportSchemaVersion,
	}})
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.Contains(t, top, "summary")
	assert.Contains(t, top, "counts")
	assert.Contains(t, top, "directories")

	var summary map[string]any
	require.NoError(t, json.Unmarshal(top["summary"], &summary))
	assert.Equal(t, "/data", summary["dataPath"])
	assert.Equal(t, "done", summary["finalPhase"])
	assert.Equal(t, validator.ReportSchemaVersion, summary["schemaVersion"])
	assert.NotContains(t, summary, "matchFile", "empty optional fields are omitted")
}
