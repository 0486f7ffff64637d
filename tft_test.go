package tft

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/evaluator"
	"github.com/trafficflow/tft/registry"
	"github.com/trafficflow/tft/types"
)

func TestErrorClassification(t *testing.T) {
	rt := NewRuntimeError(errors.New("bad kubeconfig"))
	assert.True(t, IsRuntimeError(rt))
	assert.False(t, IsTestFailureError(rt))
	assert.Contains(t, rt.Error(), "bad kubeconfig")

	tf := NewTestFailureError("thresholds missed")
	assert.True(t, IsTestFailureError(tf))
	assert.False(t, IsRuntimeError(tf))

	wrapped := fmt.Errorf("outer: %w", rt)
	assert.True(t, IsRuntimeError(wrapped))

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsRuntimeError(errors.New("plain")))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil, "v0")
	require.Error(t, err)
}

func TestWriteRecordAndEvaluation(t *testing.T) {
	dir := t.TempDir()
	tr := &TrafficFlowTests{log: zap.NewNop().Sugar()}
	tp := &registry.TestPlan{Name: "t", LogsDir: filepath.Join(dir, "logs")}

	rec := &types.RunRecord{
		RunID: "run-1",
		TftTests: []types.AggregateOutput{
			{FlowTest: &types.FlowTestOutput{
				BaseOutput: types.NewBaseOutput(""),
				Command:    "iperf3",
				Bitrate:    types.Bitrate{Tx: 1, Rx: 1},
			}},
		},
	}

	path, err := tr.writeRecord(tp, rec)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got types.RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.TftTests, 1)

	eval, err := evaluator.NewEvaluator("", tr.log)
	require.NoError(t, err)
	eval.EvalRun(&got)
	require.NoError(t, tr.writeEvaluation(path, eval))

	evalPath := filepath.Join(filepath.Dir(path),
		filepath.Base(path[:len(path)-len(".json")])+"-eval.json")
	evalData, err := os.ReadFile(evalPath)
	require.NoError(t, err)
	var verdict map[string]any
	require.NoError(t, json.Unmarshal(evalData, &verdict))
	assert.Contains(t, verdict, "passing")
	assert.Contains(t, verdict, "failing")
}

func TestFormatGbps(t *testing.T) {
	assert.Equal(t, "9.50", formatGbps(9.5))
	assert.Equal(t, "-", formatGbps(-1))
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✓ pass", getResultString(true))
	assert.Equal(t, "✗ fail", getResultString(false))
}

func TestDetectClustersExplicitFlags(t *testing.T) {
	mode, tenant, infra, err := detectClusters("/tmp/kc", "")
	require.NoError(t, err)
	assert.Equal(t, types.ClusterModeSingle, mode)
	assert.Equal(t, "/tmp/kc", tenant)
	assert.Empty(t, infra)

	mode, tenant, infra, err = detectClusters("/tmp/kc-t", "/tmp/kc-i")
	require.NoError(t, err)
	assert.Equal(t, types.ClusterModeDPU, mode)
	assert.Equal(t, "/tmp/kc-t", tenant)
	assert.Equal(t, "/tmp/kc-i", infra)

	_, _, _, err = detectClusters("", "/tmp/kc-i")
	require.Error(t, err)
}
