package types

import "fmt"

// Output is the finalized result of a task operation. Every operation ends in
// exactly one Output; tasks that only produce side effects return a plain
// BaseOutput.
type Output interface {
	Succeeded() bool
	Message() string
}

// AggregatableOutput is an Output that carries structured result data destined
// for the per-run aggregate record. Outputs that do not implement this are
// skipped during aggregation.
type AggregatableOutput interface {
	Output
	aggregatable()
}

// BaseOutput carries the minimal success/message pair shared by all outputs.
type BaseOutput struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

// NewBaseOutput returns a successful BaseOutput with an optional message.
func NewBaseOutput(msg string) BaseOutput {
	return BaseOutput{Success: true, Msg: msg}
}

// NewFailureOutput returns a failed BaseOutput with the given message.
func NewFailureOutput(msg string) BaseOutput {
	return BaseOutput{Success: false, Msg: msg}
}

func (o BaseOutput) Succeeded() bool { return o.Success }
func (o BaseOutput) Message() string { return o.Msg }

// PodInfo identifies one participant pod in the test metadata.
type PodInfo struct {
	Name     string  `json:"name"`
	PodType  PodType `json:"pod_type"`
	IsTenant bool    `json:"is_tenant"`
	Index    int     `json:"index"`
}

// TestMetadata describes the flow test a result belongs to.
type TestMetadata struct {
	Reverse    bool         `json:"reverse"`
	TestCaseID TestCaseType `json:"test_case_id"`
	TestType   TestType     `json:"test_type"`
	Server     PodInfo      `json:"server"`
	Client     PodInfo      `json:"client"`
}

// PluginMetadata describes where a plugin result was collected.
type PluginMetadata struct {
	PluginName string `json:"plugin_name"`
	NodeName   string `json:"node_name"`
	PodName    string `json:"pod_name"`
}

// Bitrate holds the transmit/receive rates of a flow test in Gbps.
type Bitrate struct {
	Tx float64 `json:"tx"`
	Rx float64 `json:"rx"`
}

// BitrateNA marks a bitrate that could not be computed (eg. the tool errored).
var BitrateNA = Bitrate{Tx: -1, Rx: -1}

// FlowTestOutput is the primary result of a run: the traffic generator's
// parsed output plus the metadata needed to evaluate it.
type FlowTestOutput struct {
	BaseOutput
	TftMetadata TestMetadata   `json:"tft_metadata"`
	Command     string         `json:"command"`
	Result      map[string]any `json:"result"`
	Bitrate     Bitrate        `json:"bitrate_gbps"`
}

func (FlowTestOutput) aggregatable() {}

// PluginOutput is a secondary result contributed by a monitor plugin.
type PluginOutput struct {
	BaseOutput
	Plugin   PluginMetadata `json:"plugin_metadata"`
	Command  string         `json:"command"`
	Result   map[string]any `json:"result"`
	Name     string         `json:"name"`
}

func (PluginOutput) aggregatable() {}

// AggregateOutput collects the results of a single test case run: at most one
// flow test plus any number of plugin results, in aggregation order. It is the
// only structural contract exposed to the evaluator.
type AggregateOutput struct {
	FlowTest *FlowTestOutput `json:"flow_test,omitempty"`
	Plugins  []PluginOutput  `json:"plugins"`
}

// SetFlowTest stores the primary flow-test result. A run produces exactly one
// flow test; a second call is a programming error and panics.
func (a *AggregateOutput) SetFlowTest(o FlowTestOutput) {
	if a.FlowTest != nil {
		panic(fmt.Sprintf("flow test output already set (existing command %q, new command %q)",
			a.FlowTest.Command, o.Command))
	}
	a.FlowTest = &o
}

// AppendPlugin adds a secondary plugin result. Order matches call order.
func (a *AggregateOutput) AppendPlugin(o PluginOutput) {
	a.Plugins = append(a.Plugins, o)
}

// PluginResult is a pass/fail verdict derived from one plugin output.
type PluginResult struct {
	TestID   TestCaseType `json:"test_id"`
	TestType TestType     `json:"test_type"`
	Reverse  bool         `json:"reverse"`
	Success  bool         `json:"success"`
}

// RunRecord is the serialized shape of one full run, as consumed by the
// evaluator.
type RunRecord struct {
	RunID    string            `json:"run_id"`
	TftTests []AggregateOutput `json:"tft_tests"`
}
