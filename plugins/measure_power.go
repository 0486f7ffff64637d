package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

const measurePowerName = "measure_power"

func init() {
	register(measurePower{})
}

// measurePower samples the node's instantaneous power draw over IPMI while
// traffic flows, one monitor per participating node.
type measurePower struct{}

func (measurePower) Name() string { return measurePowerName }

func (measurePower) Enable(ts *task.TestSettings, server *task.ServerTask, client *task.ClientTask, tenant bool) ([]task.Participant, error) {
	srv, err := newMeasurePowerTask(ts, ts.NodeServerName, tenant)
	if err != nil {
		return nil, err
	}
	cli, err := newMeasurePowerTask(ts, ts.NodeClientName, tenant)
	if err != nil {
		return nil, err
	}
	return []task.Participant{srv, cli}, nil
}

// Power readings are informational; there is no threshold to judge.
func (measurePower) EvalResult(out types.PluginOutput, md types.TestMetadata) *types.PluginResult {
	return nil
}

var powerReadingRe = regexp.MustCompile(`\d+`)

// MeasurePowerTask runs ipmitool in a tools pod on one node, sampling until
// the client finishes.
type MeasurePowerTask struct {
	task.PluginTask
	stop chan struct{}
}

func newMeasurePowerTask(ts *task.TestSettings, nodeName string, tenant bool) (*MeasurePowerTask, error) {
	t := &MeasurePowerTask{stop: make(chan struct{})}
	pod := fmt.Sprintf("tools-pod-%s-measure-power", nodeName)
	if err := t.InitPlugin(ts, t, "MeasurePower", measurePowerName, nodeName, pod, tenant); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MeasurePowerTask) CreateTaskOperation(ctx context.Context) (task.TaskOperation, error) {
	const cmd = "ipmitool dcmi power reading"

	thread := func() types.Output {
		t.TS.Coordinator.WaitOnBarrier()
		total := 0
		samples := 0
		for !t.TS.Coordinator.ClientFinished() && !stopped(t.stop) {
			r := t.RunOcExec(ctx, cmd)
			if !r.Success() {
				t.Log.Errorw("Failed to read power", "cmd", cmd, "err", r.Err)
			} else {
				total += extractPowerReading(t.Log, r.Out)
				samples++
			}
			time.Sleep(t.SampleInterval)
		}
		if samples == 0 {
			return types.NewFailureOutput("no power samples collected")
		}
		return types.PluginOutput{
			BaseOutput: types.NewBaseOutput(""),
			Plugin:     t.Metadata(),
			Command:    cmd,
			Result: map[string]any{
				"measure_power": fmt.Sprintf("%.2f", float64(total)/float64(samples)),
			},
			Name: measurePowerName,
		}
	}

	return task.NewOperation(t.LogNameTask(), t.Log, task.Actions[types.Output]{
		Thread: thread,
		Cancel: func() { close(t.stop) },
	})
}

func extractPowerReading(log *zap.SugaredLogger, out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "Instantaneous power reading") {
			continue
		}
		if m := powerReadingRe.FindString(line); m != "" {
			v, _ := strconv.Atoi(m)
			return v
		}
	}
	log.Errorw("Could not find instantaneous power reading in ipmitool output")
	return 0
}
