package plugins

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

const measureCPUName = "measure_cpu"

func init() {
	register(measureCPU{})
}

// measureCPU samples the driver host's CPU utilization while traffic flows.
// Useful on single-machine setups (kind, local podman) where the driver host
// carries the traffic itself; it needs no tools pod.
type measureCPU struct{}

func (measureCPU) Name() string { return measureCPUName }

func (measureCPU) Enable(ts *task.TestSettings, server *task.ServerTask, client *task.ClientTask, tenant bool) ([]task.Participant, error) {
	t, err := newMeasureCPUTask(ts, tenant)
	if err != nil {
		return nil, err
	}
	return []task.Participant{t}, nil
}

// CPU load is informational; there is no threshold to judge.
func (measureCPU) EvalResult(out types.PluginOutput, md types.TestMetadata) *types.PluginResult {
	return nil
}

// MeasureCPUTask samples in-process, without any cluster objects.
type MeasureCPUTask struct {
	task.PluginTask
	stop chan struct{}
}

func newMeasureCPUTask(ts *task.TestSettings, tenant bool) (*MeasureCPUTask, error) {
	t := &MeasureCPUTask{stop: make(chan struct{})}
	if err := t.InitPlugin(ts, t, "MeasureCPU", measureCPUName, "localhost", "", tenant); err != nil {
		return nil, err
	}
	return t, nil
}

// Initialize has no manifests to render; sampling happens in-process.
func (t *MeasureCPUTask) Initialize(ctx context.Context) error { return nil }

func (t *MeasureCPUTask) CreateTaskOperation(ctx context.Context) (task.TaskOperation, error) {
	thread := func() types.Output {
		t.TS.Coordinator.WaitOnBarrier()

		var total, peak float64
		samples := 0
		for !t.TS.Coordinator.ClientFinished() && !stopped(t.stop) {
			// Percent blocks for the sample interval, pacing the loop.
			pcts, err := cpu.PercentWithContext(ctx, t.SampleInterval, false)
			if err != nil || len(pcts) == 0 {
				t.Log.Errorw("Failed to sample CPU utilization", "err", err)
				continue
			}
			total += pcts[0]
			if pcts[0] > peak {
				peak = pcts[0]
			}
			samples++
		}
		if samples == 0 {
			return types.NewFailureOutput("no cpu samples collected")
		}

		result := map[string]any{
			"cpu_avg_percent": fmt.Sprintf("%.2f", total/float64(samples)),
			"cpu_max_percent": fmt.Sprintf("%.2f", peak),
			"samples":         samples,
		}
		if avg, err := load.AvgWithContext(ctx); err == nil {
			result["load1"] = avg.Load1
		}
		return types.PluginOutput{
			BaseOutput: types.NewBaseOutput(""),
			Plugin:     t.Metadata(),
			Command:    "gopsutil cpu.Percent",
			Result:     result,
			Name:       measureCPUName,
		}
	}

	return task.NewOperation(t.LogNameTask(), t.Log, task.Actions[types.Output]{
		Thread: thread,
		Cancel: func() { close(t.stop) },
	})
}
