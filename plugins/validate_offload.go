package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

const validateOffloadName = "validate_offload"

// VFRepTrafficThreshold is the packet-count delta on the VF representor below
// which traffic counts as fully hardware-offloaded.
const VFRepTrafficThreshold = 1000

func init() {
	register(validateOffload{})
}

// validateOffload snapshots the VF representor's packet counters before and
// after the traffic window. Offloaded traffic bypasses the representor, so a
// large delta means offload is broken.
type validateOffload struct{}

func (validateOffload) Name() string { return validateOffloadName }

func (validateOffload) Enable(ts *task.TestSettings, server *task.ServerTask, client *task.ClientTask, tenant bool) ([]task.Participant, error) {
	srv, err := newValidateOffloadTask(ts, server.PodName, server.PodType, server.NodeName, tenant)
	if err != nil {
		return nil, err
	}
	cli, err := newValidateOffloadTask(ts, client.PodName, client.PodType, client.NodeName, tenant)
	if err != nil {
		return nil, err
	}
	return []task.Participant{srv, cli}, nil
}

func (validateOffload) EvalResult(out types.PluginOutput, md types.TestMetadata) *types.PluginResult {
	rxStart, ok1 := intField(out.Result, "rx_start")
	txStart, ok2 := intField(out.Result, "tx_start")
	rxEnd, ok3 := intField(out.Result, "rx_end")
	txEnd, ok4 := intField(out.Result, "tx_end")

	success := ok1 && ok2 && ok3 && ok4 &&
		noTrafficOnVFRep(rxStart, txStart, rxEnd, txEnd)

	return &types.PluginResult{
		TestID:   md.TestCaseID,
		TestType: md.TestType,
		Reverse:  md.Reverse,
		Success:  success,
	}
}

func noTrafficOnVFRep(rxStart, txStart, rxEnd, txEnd int) bool {
	return rxEnd-rxStart < VFRepTrafficThreshold && txEnd-txStart < VFRepTrafficThreshold
}

// ValidateOffloadTask snapshots the representor counters of one perf pod.
type ValidateOffloadTask struct {
	task.PluginTask
	perfPodName string
	perfPodType types.PodType
}

func newValidateOffloadTask(ts *task.TestSettings, perfPodName string, perfPodType types.PodType, nodeName string, tenant bool) (*ValidateOffloadTask, error) {
	t := &ValidateOffloadTask{perfPodName: perfPodName, perfPodType: perfPodType}
	pod := fmt.Sprintf("tools-pod-%s-validate-offload", nodeName)
	if err := t.InitPlugin(ts, t, "ValidateOffload", validateOffloadName, nodeName, pod, tenant); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ValidateOffloadTask) CreateTaskOperation(ctx context.Context) (task.TaskOperation, error) {
	thread := func() types.Output {
		t.TS.Coordinator.WaitOnBarrier()

		vfRep, err := t.extractVFRep(ctx)
		if err != nil {
			return types.NewFailureOutput(err.Error())
		}
		cmd := fmt.Sprintf(`/bin/sh -c "ethtool -S %s"`, vfRep)

		result := map[string]any{}
		output := func(msg string) types.PluginOutput {
			return types.PluginOutput{
				BaseOutput: types.NewBaseOutput(msg),
				Plugin:     t.Metadata(),
				Command:    cmd,
				Result:     result,
				Name:       validateOffloadName,
			}
		}

		// Host-backed pods and external servers have no VF representor to
		// inspect; evaluation of the empty result reports the gap.
		if vfRep == "ovn-k8s-mp0" {
			return output("host-backed pod has no VF representor")
		}
		if vfRep == "external" {
			return output("external server has no VF representor")
		}

		r := t.RunOcExec(ctx, cmd)
		if !r.Success() {
			return types.NewFailureOutput(fmt.Sprintf("ethtool failed on %s: %s", vfRep, r.Err))
		}
		result["rx_start"] = parsePackets(r.Out, "rx")
		result["tx_start"] = parsePackets(r.Out, "tx")

		t.TS.Coordinator.WaitOnClientFinished()

		r = t.RunOcExec(ctx, cmd)
		if r.Success() {
			result["rx_end"] = parsePackets(r.Out, "rx")
			result["tx_end"] = parsePackets(r.Out, "tx")
		} else {
			t.Log.Errorw("Final ethtool snapshot failed", "vf_rep", vfRep, "err", r.Err)
		}

		t.Log.Infow("Offload validation results",
			"perf_pod", t.perfPodName,
			"rx_start", result["rx_start"], "tx_start", result["tx_start"],
			"rx_end", result["rx_end"], "tx_end", result["tx_end"])
		return output("")
	}

	return task.NewOperation(t.LogNameTask(), t.Log, task.Actions[types.Output]{
		Thread: thread,
	})
}

// extractVFRep finds the interface to sample: the crio sandbox ID of the perf
// pod, truncated the way the host names the representor netdev.
func (t *ValidateOffloadTask) extractVFRep(ctx context.Context) (string, error) {
	if t.perfPodType == types.PodTypeHostBacked {
		return "ovn-k8s-mp0", nil
	}
	if t.perfPodName == task.ExternalServerPodName {
		return "external", nil
	}

	cmd := fmt.Sprintf(
		`/bin/sh -c "crictl --runtime-endpoint=unix:///host/run/crio/crio.sock ps -a --name=%s -o json"`,
		t.perfPodName)
	r := t.RunOcExec(ctx, cmd)
	if !r.Success() {
		return "", fmt.Errorf("failed to query crictl for %s: %s", t.perfPodName, r.Err)
	}

	var parsed struct {
		Containers []struct {
			PodSandboxID string `json:"podSandboxId"`
		} `json:"containers"`
	}
	if err := json.Unmarshal([]byte(r.Out), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse crictl output for %s: %v", t.perfPodName, err)
	}
	if len(parsed.Containers) == 0 || len(parsed.Containers[0].PodSandboxID) < 15 {
		return "", fmt.Errorf("no container sandbox found for %s", t.perfPodName)
	}
	vfRep := parsed.Containers[0].PodSandboxID[:15]
	t.Log.Infow("Resolved VF representor", "perf_pod", t.perfPodName, "vf_rep", vfRep)
	return vfRep, nil
}

// parsePackets pulls the rx/tx packet totals out of ethtool -S output. Not
// every driver reports plain {rx,tx}_packets; fall back to summing the
// per-queue xdp counters.
func parsePackets(out string, direction string) int {
	prefix := direction + "_packets"
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			if _, after, found := strings.Cut(trimmed, ":"); found {
				v, _ := strconv.Atoi(strings.TrimSpace(after))
				return v
			}
		}
	}

	total := 0
	queuePrefix := direction + "_queue_"
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, queuePrefix) && strings.Contains(trimmed, "_xdp_packets:") {
			if _, after, found := strings.Cut(trimmed, ":"); found {
				v, _ := strconv.Atoi(strings.TrimSpace(after))
				total += v
			}
		}
	}
	return total
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
