package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficflow/tft/barrier"
	"github.com/trafficflow/tft/types"
)

type fakeRole struct {
	Task
	setup func(ctx context.Context) (TaskOperation, error)
	main  func(ctx context.Context) (TaskOperation, error)
	agg   func(res types.AggregatableOutput, a *types.AggregateOutput) error
}

func newFakeRole(t *testing.T, ts *TestSettings, name string) *fakeRole {
	t.Helper()
	f := &fakeRole{}
	require.NoError(t, f.init(ts, f, name, 0, "node", true))
	return f
}

func (f *fakeRole) CreateSetupOperation(ctx context.Context) (TaskOperation, error) {
	if f.setup == nil {
		return nil, nil
	}
	return f.setup(ctx)
}

func (f *fakeRole) CreateTaskOperation(ctx context.Context) (TaskOperation, error) {
	if f.main == nil {
		return nil, nil
	}
	return f.main(ctx)
}

func (f *fakeRole) AggregateRoleOutput(res types.AggregatableOutput, a *types.AggregateOutput) error {
	if f.agg == nil {
		return f.Task.AggregateRoleOutput(res, a)
	}
	return f.agg(res, a)
}

func testSettings() *TestSettings {
	return &TestSettings{
		TestCaseID:  types.TestCasePodToPodSameNode,
		TestType:    types.TestTypeIperfTCP,
		Duration:    time.Second,
		ClusterMode: types.ClusterModeSingle,
		Coordinator: barrier.NewCoordinator(),
		Log:         testLogger(),
	}
}

func TestNonTenantRequiresClusterSplit(t *testing.T) {
	ts := testSettings()
	f := &fakeRole{}
	err := f.init(ts, f, "infra", 0, "node", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant/infra cluster split")

	ts.ClusterMode = types.ClusterModeDPU
	require.NoError(t, f.init(ts, f, "infra", 0, "node", false))
}

func TestTaskLifecycle(t *testing.T) {
	ts := testSettings()
	ctx := context.Background()

	stop := make(chan struct{})
	f := newFakeRole(t, ts, "role")
	f.setup = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(f.LogNameSetup(), f.Log, Actions[types.Output]{
			Thread: func() types.Output {
				<-stop
				return types.NewBaseOutput("")
			},
			Cancel: func() { close(stop) },
		})
	}
	f.main = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(f.LogNameTask(), f.Log, Actions[types.Output]{
			Thread: func() types.Output {
				return types.FlowTestOutput{
					BaseOutput:  types.NewBaseOutput(""),
					TftMetadata: ts.TestMetadata(),
					Command:     "fake",
					Bitrate:     types.Bitrate{Tx: 1, Rx: 1},
				}
			},
		})
	}

	require.NoError(t, f.Initialize(ctx))
	require.NoError(t, f.StartSetup(ctx))
	require.NoError(t, f.StartTask(ctx))
	require.NoError(t, f.FinishTask())
	require.NoError(t, f.FinishSetup())

	agg := types.AggregateOutput{}
	require.NoError(t, f.AggregateOutput(&agg))
	require.NotNil(t, agg.FlowTest)
	assert.Equal(t, "fake", agg.FlowTest.Command)
}

func TestStartSetupTwicePanics(t *testing.T) {
	ts := testSettings()
	f := newFakeRole(t, ts, "role")
	f.setup = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(f.LogNameSetup(), f.Log, Actions[types.Output]{
			Thread: func() types.Output { return types.NewBaseOutput("") },
		})
	}
	require.NoError(t, f.StartSetup(context.Background()))
	assert.Panics(t, func() { _ = f.StartSetup(context.Background()) })
}

func TestAggregateWithoutResultIsNoop(t *testing.T) {
	ts := testSettings()
	f := newFakeRole(t, ts, "role")
	agg := types.AggregateOutput{}
	require.NoError(t, f.AggregateOutput(&agg))
	assert.Nil(t, agg.FlowTest)
	assert.Empty(t, agg.Plugins)
}

func TestAggregateSecondaryOutputNeedsRoleHook(t *testing.T) {
	ts := testSettings()
	ctx := context.Background()

	f := newFakeRole(t, ts, "role")
	f.main = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(f.LogNameTask(), f.Log, Actions[types.Output]{
			Thread: func() types.Output {
				return types.PluginOutput{BaseOutput: types.NewBaseOutput(""), Name: "p"}
			},
		})
	}
	require.NoError(t, f.StartTask(ctx))
	require.NoError(t, f.FinishTask())

	agg := types.AggregateOutput{}
	err := f.AggregateOutput(&agg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no aggregation defined")
}

// TestSetupFailureHaltsTestCase drives the phase loop the way the test driver
// does and fails the server's setup with a non-idempotent provisioning error.
// The loop must stop before any task operation starts, leaving the aggregate
// empty.
func TestSetupFailureHaltsTestCase(t *testing.T) {
	ts := testSettings()
	ctx := context.Background()

	server := newFakeRole(t, ts, "server")
	server.setup = func(ctx context.Context) (TaskOperation, error) {
		return nil, errors.New("pod server did not become ready")
	}

	var trafficStarted, monitorStarted bool
	client := newFakeRole(t, ts, "client")
	client.main = func(ctx context.Context) (TaskOperation, error) {
		trafficStarted = true
		return nil, nil
	}
	monitor := newFakeRole(t, ts, "monitor")
	monitor.main = func(ctx context.Context) (TaskOperation, error) {
		monitorStarted = true
		return nil, nil
	}

	tasks := []Participant{server, client, monitor}
	phases := []func(Participant) error{
		func(p Participant) error { return p.Initialize(ctx) },
		func(p Participant) error { return p.StartSetup(ctx) },
		func(p Participant) error { return p.StartTask(ctx) },
		func(p Participant) error { return p.FinishTask() },
		func(p Participant) error { return p.FinishSetup() },
	}
	var phaseErr error
loop:
	for _, phase := range phases {
		for _, tk := range tasks {
			if phaseErr = phase(tk); phaseErr != nil {
				break loop
			}
		}
	}
	require.Error(t, phaseErr)
	assert.Contains(t, phaseErr.Error(), "setup failed")
	assert.False(t, trafficStarted)
	assert.False(t, monitorStarted)

	agg := types.AggregateOutput{}
	for _, tk := range tasks {
		require.NoError(t, tk.AggregateOutput(&agg))
	}
	assert.Nil(t, agg.FlowTest)
	assert.Empty(t, agg.Plugins)
}

// TestLockstepTestCase drives a full test case in miniature: a server whose
// setup operation is the long-running process, one traffic client and two
// monitors, all synchronized through the coordinator.
func TestLockstepTestCase(t *testing.T) {
	ts := testSettings()
	ctx := context.Background()
	coord := ts.Coordinator
	coord.Reset(3) // client + two monitors

	serverStop := make(chan struct{})
	server := newFakeRole(t, ts, "server")
	server.setup = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(server.LogNameSetup(), server.Log, Actions[types.Output]{
			Thread: func() types.Output {
				<-serverStop
				return types.NewBaseOutput("server is persistent")
			},
			Cancel:    func() { close(serverStop) },
			WaitReady: coord.SetServerAlive,
		})
	}

	client := newFakeRole(t, ts, "client")
	client.main = func(ctx context.Context) (TaskOperation, error) {
		return NewOperation(client.LogNameTask(), client.Log, Actions[types.Output]{
			Thread: func() types.Output {
				coord.WaitOnServerAlive()
				coord.WaitOnBarrier()
				coord.SetClientFinished()
				return types.FlowTestOutput{
					BaseOutput: types.NewBaseOutput(""),
					Command:    "traffic",
					Bitrate:    types.Bitrate{Tx: 10, Rx: 10},
				}
			},
		})
	}

	newMonitor := func(name string) *fakeRole {
		m := newFakeRole(t, ts, name)
		m.main = func(ctx context.Context) (TaskOperation, error) {
			return NewOperation(m.LogNameTask(), m.Log, Actions[types.Output]{
				Thread: func() types.Output {
					coord.WaitOnBarrier()
					coord.WaitOnClientFinished()
					return types.PluginOutput{BaseOutput: types.NewBaseOutput(""), Name: name}
				},
			})
		}
		m.agg = func(res types.AggregatableOutput, a *types.AggregateOutput) error {
			a.AppendPlugin(res.(types.PluginOutput))
			return nil
		}
		return m
	}
	monitorA := newMonitor("monitor-a")
	monitorB := newMonitor("monitor-b")

	tasks := []Participant{server, client, monitorA, monitorB}
	phases := []func(Participant) error{
		func(p Participant) error { return p.Initialize(ctx) },
		func(p Participant) error { return p.StartSetup(ctx) },
		func(p Participant) error { return p.StartTask(ctx) },
		func(p Participant) error { return p.FinishTask() },
		func(p Participant) error { return p.FinishSetup() },
	}
	for _, phase := range phases {
		for _, tk := range tasks {
			require.NoError(t, phase(tk))
		}
	}

	agg := types.AggregateOutput{}
	for _, tk := range tasks {
		require.NoError(t, tk.AggregateOutput(&agg))
	}
	require.NotNil(t, agg.FlowTest)
	assert.Equal(t, "traffic", agg.FlowTest.Command)
	require.Len(t, agg.Plugins, 2)
	assert.Equal(t, "monitor-a", agg.Plugins[0].Name)
	assert.Equal(t, "monitor-b", agg.Plugins[1].Name)
}
