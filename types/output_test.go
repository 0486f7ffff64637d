package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseOutput(t *testing.T) {
	ok := NewBaseOutput("fine")
	assert.True(t, ok.Succeeded())
	assert.Equal(t, "fine", ok.Message())

	bad := NewFailureOutput("broken")
	assert.False(t, bad.Succeeded())
	assert.Equal(t, "broken", bad.Message())
}

func TestSetFlowTestPanicsOnSecondCall(t *testing.T) {
	agg := AggregateOutput{}
	agg.SetFlowTest(FlowTestOutput{Command: "first"})
	require.NotNil(t, agg.FlowTest)
	assert.Panics(t, func() {
		agg.SetFlowTest(FlowTestOutput{Command: "second"})
	})
}

func TestAppendPluginPreservesOrder(t *testing.T) {
	agg := AggregateOutput{}
	agg.AppendPlugin(PluginOutput{Name: "a"})
	agg.AppendPlugin(PluginOutput{Name: "b"})
	require.Len(t, agg.Plugins, 2)
	assert.Equal(t, "a", agg.Plugins[0].Name)
	assert.Equal(t, "b", agg.Plugins[1].Name)
}

func TestRunRecordRoundTrip(t *testing.T) {
	rec := RunRecord{
		RunID: "run-1",
		TftTests: []AggregateOutput{
			{
				FlowTest: &FlowTestOutput{
					BaseOutput: NewBaseOutput(""),
					Command:    "iperf3",
					Bitrate:    Bitrate{Tx: 9.5, Rx: 9.4},
				},
				Plugins: []PluginOutput{{Name: "measure_power"}},
			},
		},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.TftTests, 1)
	require.NotNil(t, got.TftTests[0].FlowTest)
	assert.Equal(t, "iperf3", got.TftTests[0].FlowTest.Command)
	assert.Equal(t, 9.5, got.TftTests[0].FlowTest.Bitrate.Tx)
	require.Len(t, got.TftTests[0].Plugins, 1)
}
