package task

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/types"
)

// SetupTimeout bounds the join of setup operations during teardown. A setup
// thread either already finished or supervises a long-running process that
// the cancel action kills; either way it must come down quickly.
const SetupTimeout = 5 * time.Second

// Hooks are the role-specific extension points of a Task. The lifecycle
// methods on Task are fixed; roles customize behavior only through these.
type Hooks interface {
	// CreateSetupOperation returns the operation providing the task's
	// environment, or nil when provisioning completed synchronously.
	CreateSetupOperation(ctx context.Context) (TaskOperation, error)

	// CreateTaskOperation returns the operation doing the task's main work
	// during the traffic window, or nil for tasks that have none.
	CreateTaskOperation(ctx context.Context) (TaskOperation, error)

	// AggregateRoleOutput folds a secondary result into the aggregate.
	// Roles that produce secondary output must override the default.
	AggregateRoleOutput(result types.AggregatableOutput, agg *types.AggregateOutput) error
}

// Participant is the surface the test driver runs tasks through. All
// participants of one test case move through the lifecycle phases in
// lockstep; no task enters a phase before every task left the previous one.
type Participant interface {
	LogName() string
	Initialize(ctx context.Context) error
	StartSetup(ctx context.Context) error
	FinishSetup() error
	StartTask(ctx context.Context) error
	FinishTask() error
	AggregateOutput(agg *types.AggregateOutput) error
}

// Server is the view protocol handlers and plugins get of a server role.
type Server interface {
	Participant
	GetServerTask() *ServerTask
}

// Client is the view protocol handlers and plugins get of a client role.
type Client interface {
	Participant
	GetClientTask() *ClientTask
}

// Task is the shared, non-virtual skeleton of every participant. Roles embed
// it and pass themselves in as the Hooks implementation; the lifecycle logic
// lives here and never in roles.
type Task struct {
	TS       *TestSettings
	Log      *zap.SugaredLogger
	PodName  string
	NodeName string
	Index    int
	Tenant   bool

	// Client is the kube client matching the task's tenancy. Nil when the
	// settings carry no cluster, as in pure in-process tests.
	Client *kube.Client
	LH     host.Host

	logName string
	hooks   Hooks

	setupOp TaskOperation
	taskOp  TaskOperation
	result  types.Output
}

func (t *Task) init(ts *TestSettings, hooks Hooks, logName string, index int, nodeName string, tenant bool) error {
	if !tenant && ts.ClusterMode == types.ClusterModeSingle {
		return errors.Errorf("task %s: a non-tenant task requires a tenant/infra cluster split", logName)
	}
	t.TS = ts
	t.Log = ts.Log
	t.logName = logName
	t.Index = index
	t.NodeName = nodeName
	t.Tenant = tenant
	if ts.Cluster != nil {
		t.Client = ts.Cluster.Client(tenant)
	}
	t.LH = ts.LocalHost
	t.hooks = hooks
	return nil
}

func (t *Task) LogName() string      { return t.logName }
func (t *Task) LogNameSetup() string { return t.logName + "/setup" }
func (t *Task) LogNameTask() string  { return t.logName + "/task" }

// Initialize is a no-op by default; roles that render manifests or create
// cluster objects override it.
func (t *Task) Initialize(ctx context.Context) error { return nil }

// StartSetup creates and starts the setup operation. It returns once the
// operation's environment is observable, or immediately when the role
// provisions synchronously.
func (t *Task) StartSetup(ctx context.Context) error {
	if t.setupOp != nil {
		panic(fmt.Sprintf("task %s: StartSetup called twice", t.logName))
	}
	op, err := t.hooks.CreateSetupOperation(ctx)
	if err != nil {
		return errors.Wrapf(err, "task %s: setup failed", t.logName)
	}
	if op != nil {
		t.setupOp = op
		op.Start()
	}
	return nil
}

// FinishSetup joins the setup operation. Its output only gets logged; the
// run's verdict comes from task results.
func (t *Task) FinishSetup() error {
	if t.setupOp == nil {
		return nil
	}
	op := t.setupOp
	t.setupOp = nil
	out, err := op.Finish(SetupTimeout)
	if err != nil {
		return errors.Wrapf(err, "task %s: failed to tear down setup", t.logName)
	}
	if !out.Succeeded() {
		t.Log.Errorw("Setup operation reported failure", "task", t.logName, "msg", out.Message())
	}
	return nil
}

// StartTask creates and starts the main operation for the traffic window.
func (t *Task) StartTask(ctx context.Context) error {
	if t.taskOp != nil {
		panic(fmt.Sprintf("task %s: StartTask called twice", t.logName))
	}
	op, err := t.hooks.CreateTaskOperation(ctx)
	if err != nil {
		return errors.Wrapf(err, "task %s: failed to start", t.logName)
	}
	if op != nil {
		t.taskOp = op
		op.Start()
	}
	return nil
}

// FinishTask joins the main operation and stores its output as the task's
// result.
func (t *Task) FinishTask() error {
	if t.taskOp == nil {
		return nil
	}
	if t.result != nil {
		panic(fmt.Sprintf("task %s: result already collected", t.logName))
	}
	t.Log.Infow("Completing execution", "task", t.logName)
	op := t.taskOp
	t.taskOp = nil
	out, err := op.Finish(t.TS.ExecTimeout())
	if err != nil {
		return errors.Wrapf(err, "task %s: failed to finish", t.logName)
	}
	t.result = out
	return nil
}

// Result returns the collected task output, nil before FinishTask.
func (t *Task) Result() types.Output { return t.result }

// AggregateOutput folds the task's result into the aggregate. Primary
// flow-test results go to the unique flow-test slot; everything else is
// delegated to the role hook. Outputs without structured data are skipped.
func (t *Task) AggregateOutput(agg *types.AggregateOutput) error {
	if t.result == nil {
		return nil
	}
	if !t.result.Succeeded() {
		t.Log.Errorw("Task failed", "task", t.logName, "msg", t.result.Message())
	}
	res, ok := t.result.(types.AggregatableOutput)
	if !ok {
		return nil
	}
	if flow, ok := res.(types.FlowTestOutput); ok {
		agg.SetFlowTest(flow)
		return nil
	}
	return t.hooks.AggregateRoleOutput(res, agg)
}

// CreateSetupOperation is the default hook: no setup operation.
func (t *Task) CreateSetupOperation(ctx context.Context) (TaskOperation, error) {
	return nil, nil
}

// CreateTaskOperation is the default hook: nothing to run during the traffic
// window.
func (t *Task) CreateTaskOperation(ctx context.Context) (TaskOperation, error) {
	return nil, nil
}

// AggregateRoleOutput is the default hook. Reaching it means a role produced
// secondary output without defining where it goes.
func (t *Task) AggregateRoleOutput(result types.AggregatableOutput, agg *types.AggregateOutput) error {
	return errors.Errorf("task %s: no aggregation defined for result type %T", t.logName, result)
}

// RunOc runs an oc command against the task's cluster and namespace.
func (t *Task) RunOc(ctx context.Context, cmd string) host.Result {
	return t.Client.Oc(ctx, cmd, t.TS.Namespace)
}

// RunOcExec runs a command inside the task's pod.
func (t *Task) RunOcExec(ctx context.Context, cmd string) host.Result {
	return t.Client.OcExec(ctx, t.PodName, cmd, t.TS.Namespace)
}
