// Package evaluator judges recorded run results against configured bitrate
// thresholds and derives the run's pass/fail verdict.
package evaluator

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/trafficflow/tft/plugins"
	"github.com/trafficflow/tft/types"
)

// TestResult is the verdict on one flow test.
type TestResult struct {
	TestID   types.TestCaseType `json:"test_id"`
	TestType types.TestType     `json:"test_type"`
	Reverse  bool               `json:"reverse"`
	Success  bool               `json:"success"`
	Bitrate  types.Bitrate      `json:"bitrate_gbps"`
}

// PassFailStatus summarizes a full evaluation: Result is true only when every
// flow test and plugin check passed.
type PassFailStatus struct {
	Result          bool `json:"result"`
	NumTftPassed    int  `json:"num_tft_passed"`
	NumTftFailed    int  `json:"num_tft_failed"`
	NumPluginPassed int  `json:"num_plugin_passed"`
	NumPluginFailed int  `json:"num_plugin_failed"`
}

type thresholdPair struct {
	normal  float64
	reverse float64
}

// Evaluator accumulates verdicts over one or more run records.
type Evaluator struct {
	log        *zap.SugaredLogger
	thresholds map[types.TestType]map[types.TestCaseType]thresholdPair

	TestResults   []TestResult
	PluginResults []types.PluginResult
}

type rawDirection struct {
	Threshold float64 `yaml:"threshold"`
}

type rawThreshold struct {
	ID      int          `yaml:"id"`
	Normal  rawDirection `yaml:"Normal"`
	Reverse rawDirection `yaml:"Reverse"`
}

// NewEvaluator loads the threshold config. An empty path yields an evaluator
// with zero thresholds: any computed bitrate passes, a failed or unparseable
// run (bitrate N/A) still fails.
func NewEvaluator(configPath string, log *zap.SugaredLogger) (*Evaluator, error) {
	e := &Evaluator{
		log:        log,
		thresholds: map[types.TestType]map[types.TestCaseType]thresholdPair{},
	}
	if configPath == "" {
		return e, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read evaluator config %s", configPath)
	}
	var raw map[string][]rawThreshold
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse evaluator config %s", configPath)
	}

	for typeName, items := range raw {
		tt, err := types.ParseTestType(typeName)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluator config %s", configPath)
		}
		byCase := map[types.TestCaseType]thresholdPair{}
		for _, item := range items {
			id := types.TestCaseType(item.ID)
			if !id.Valid() {
				return nil, errors.Errorf("evaluator config %s: unknown test case id %d", configPath, item.ID)
			}
			byCase[id] = thresholdPair{normal: item.Normal.Threshold, reverse: item.Reverse.Threshold}
		}
		e.thresholds[tt] = byCase
	}
	return e, nil
}

// EvalRun folds one run record into the accumulated results.
func (e *Evaluator) EvalRun(rec *types.RunRecord) {
	for i := range rec.TftTests {
		run := &rec.TftTests[i]
		if run.FlowTest == nil {
			e.log.Warnw("Run record without flow test output, counting as failure",
				"run_id", rec.RunID, "index", i)
			e.TestResults = append(e.TestResults, TestResult{Bitrate: types.BitrateNA})
			continue
		}
		e.evalFlowTest(run.FlowTest)

		md := run.FlowTest.TftMetadata
		for _, po := range run.Plugins {
			plugin, err := plugins.Get(po.Name)
			if err != nil {
				e.log.Errorw("Run record references unknown plugin", "plugin", po.Name)
				continue
			}
			if res := plugin.EvalResult(po, md); res != nil {
				e.PluginResults = append(e.PluginResults, *res)
			}
		}
	}
}

// EvalFile loads a recorded run from disk and evaluates it.
func (e *Evaluator) EvalFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read result log %s", path)
	}
	var rec types.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return errors.Wrapf(err, "malformed result log %s", path)
	}
	e.EvalRun(&rec)
	return nil
}

func (e *Evaluator) evalFlowTest(flow *types.FlowTestOutput) {
	md := flow.TftMetadata
	threshold := e.threshold(md.TestType, md.TestCaseID, md.Reverse)
	success := flow.Succeeded() &&
		flow.Bitrate.Tx >= threshold && flow.Bitrate.Rx >= threshold

	e.TestResults = append(e.TestResults, TestResult{
		TestID:   md.TestCaseID,
		TestType: md.TestType,
		Reverse:  md.Reverse,
		Success:  success,
		Bitrate:  flow.Bitrate,
	})
}

func (e *Evaluator) threshold(tt types.TestType, id types.TestCaseType, reverse bool) float64 {
	pair, ok := e.thresholds[tt][id]
	if !ok {
		return 0
	}
	if reverse {
		return pair.reverse
	}
	return pair.normal
}

// PassFailStatus summarizes everything evaluated so far.
func (e *Evaluator) PassFailStatus() PassFailStatus {
	s := PassFailStatus{}
	for _, r := range e.TestResults {
		if r.Success {
			s.NumTftPassed++
		} else {
			s.NumTftFailed++
		}
	}
	for _, r := range e.PluginResults {
		if r.Success {
			s.NumPluginPassed++
		} else {
			s.NumPluginFailed++
		}
	}
	s.Result = s.NumTftFailed+s.NumPluginFailed == 0
	return s
}

// DumpToJSON serializes the split passing/failing results, the shape consumed
// by CI tooling downstream.
func (e *Evaluator) DumpToJSON() ([]byte, error) {
	split := func(results []TestResult, want bool) []TestResult {
		out := []TestResult{}
		for _, r := range results {
			if r.Success == want {
				out = append(out, r)
			}
		}
		return out
	}
	splitPlugins := func(results []types.PluginResult, want bool) []types.PluginResult {
		out := []types.PluginResult{}
		for _, r := range results {
			if r.Success == want {
				out = append(out, r)
			}
		}
		return out
	}
	return json.Marshal(map[string]any{
		"passing":        split(e.TestResults, true),
		"failing":        split(e.TestResults, false),
		"plugin_passing": splitPlugins(e.PluginResults, true),
		"plugin_failing": splitPlugins(e.PluginResults, false),
	})
}
