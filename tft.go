// Package tft drives end-to-end traffic flow tests against a Kubernetes
// cluster: it walks the configured test plan, runs every test case over its
// connections, records the aggregated results and judges them against the
// configured thresholds.
package tft

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/barrier"
	"github.com/trafficflow/tft/evaluator"
	"github.com/trafficflow/tft/exitcodes"
	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/manifest"
	"github.com/trafficflow/tft/plugins"
	"github.com/trafficflow/tft/registry"
	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/testtype"
	"github.com/trafficflow/tft/types"
)

// TrafficFlowTests runs one full test plan against a cluster.
type TrafficFlowTests struct {
	ctx         context.Context
	config      *Config
	version     string
	registry    *registry.Registry
	cluster     *kube.Cluster
	localHost   host.Host
	renderer    *manifest.Renderer
	coordinator *barrier.Coordinator
	log         *zap.SugaredLogger
	runID       string

	running atomic.Bool
}

func New(ctx context.Context, config *Config, version string) (*TrafficFlowTests, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	log := config.Log

	log.Debugw("Creating traffic flow tests",
		"planFile", config.PlanFile,
		"evaluatorConfig", config.EvaluatorConfig,
		"clusterMode", config.ClusterMode)

	reg, err := registry.NewRegistry(registry.Config{
		Log:      log,
		PlanFile: config.PlanFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	lh := host.NewLocalHost(log)
	tenant := kube.NewClient(config.KubeconfigTenant, lh, log)
	var cluster *kube.Cluster
	if config.ClusterMode == types.ClusterModeDPU {
		infra := kube.NewClient(config.KubeconfigInfra, lh, log)
		cluster = kube.NewDPUCluster(tenant, infra)
	} else {
		cluster = kube.NewSingleCluster(tenant)
	}

	renderer, err := manifest.NewRenderer(config.ManifestsDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest renderer: %w", err)
	}

	return &TrafficFlowTests{
		ctx:         ctx,
		config:      config,
		version:     version,
		registry:    reg,
		cluster:     cluster,
		localHost:   lh,
		renderer:    renderer,
		coordinator: barrier.NewCoordinator(),
		log:         log,
		runID:       uuid.New().String(),
	}, nil
}

// RunID returns the identifier stamped onto this run's records and metrics.
func (t *TrafficFlowTests) RunID() string { return t.runID }

// Run executes every test plan once. A returned RuntimeError means the run
// could not complete; a TestFailureError means it completed but tests missed
// their thresholds.
func (t *TrafficFlowTests) Run(ctx context.Context) error {
	// A panicking participant thread already exits the process; this guards
	// the driver's own code paths.
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorw("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	t.ctx = ctx
	t.running.Store(true)
	defer t.running.Store(false)

	t.log.Infow("Starting traffic flow tests", "version", t.version, "run_id", t.runID)

	start := time.Now()
	overallPass := true
	plan := t.registry.Plan()
	for i := range plan.Tests {
		tp := &plan.Tests[i]
		rec, err := t.runTest(ctx, tp)
		if err != nil {
			t.log.Errorw("Runtime error running tests", "test", tp.Name, "error", err)
			return NewRuntimeError(err)
		}
		passed, err := t.evaluateAndReport(tp, rec, time.Since(start))
		if err != nil {
			return NewRuntimeError(err)
		}
		if !passed {
			overallPass = false
		}
	}

	t.log.Infow("Test run completed", "run_id", t.runID, "passed", overallPass)
	if !overallPass {
		return NewTestFailureError(fmt.Sprintf("run %s completed with failures", t.runID))
	}
	return nil
}

// Stopped reports whether no run is in flight.
func (t *TrafficFlowTests) Stopped() bool {
	return !t.running.Load()
}

func (t *TrafficFlowTests) runTest(ctx context.Context, tp *registry.TestPlan) (*types.RunRecord, error) {
	rec := &types.RunRecord{RunID: t.runID}

	client := t.cluster.Client(true)
	if err := client.ConfigureNamespace(ctx, tp.Namespace); err != nil {
		return nil, err
	}
	if err := client.Cleanup(ctx, tp.Namespace); err != nil {
		return nil, err
	}

	for _, tcID := range tp.TestCases {
		for ci := range tp.Connections {
			conn := &tp.Connections[ci]
			handler, err := testtype.Get(conn.TestType)
			if err != nil {
				return nil, err
			}
			directions := []bool{false}
			if handler.CanRunReverse() {
				directions = append(directions, true)
			}
			for instance := 0; instance < conn.Instances; instance++ {
				for _, reverse := range directions {
					agg, err := t.runTestCase(ctx, tp, conn, tcID, instance, reverse)
					if err != nil {
						return nil, err
					}
					rec.TftTests = append(rec.TftTests, agg)
					if err := client.Cleanup(ctx, tp.Namespace); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return rec, nil
}

func (t *TrafficFlowTests) runTestCase(
	ctx context.Context,
	tp *registry.TestPlan,
	conn *registry.Connection,
	tcID types.TestCaseType,
	instance int,
	reverse bool,
) (types.AggregateOutput, error) {
	agg := types.AggregateOutput{}

	duration := tp.Duration
	if t.config.DurationOverride != 0 {
		duration = t.config.DurationOverride
	}

	ts := task.NewTestSettings(task.Params{
		ConnectionName: conn.Name,
		TestCaseID:     tcID,
		TestType:       conn.TestType,
		Reverse:        reverse,
		Index:          instance,
		Duration:       duration,
		Namespace:      tp.Namespace,
		TestImage:      t.config.TestImage,

		NodeServerName:       conn.Server.Name,
		NodeClientName:       conn.Client.Name,
		ServerPodType:        conn.Server.PodType,
		ClientPodType:        conn.Client.PodType,
		ServerDefaultNetwork: conn.Server.DefaultNetwork,
		ClientDefaultNetwork: conn.Client.DefaultNetwork,
		ServerPersistent:     conn.Server.Persistent,

		ClusterMode: t.cluster.Mode,
		Coordinator: t.coordinator,
		Cluster:     t.cluster,
		LocalHost:   t.localHost,
		Renderer:    t.renderer,
		Log:         t.log,
	})

	t.log.Infow("Starting test case",
		"test", ts.TestString(), "connection", conn.Name, "instance", instance)
	t.log.Info(ts.InfoString())

	handler, err := testtype.Get(conn.TestType)
	if err != nil {
		return agg, err
	}
	server, client, err := handler.CreateServerClient(ts)
	if err != nil {
		return agg, err
	}

	tasks := []task.Participant{server, client}
	monitors := 0
	for _, name := range conn.Plugins {
		p, err := plugins.Get(name)
		if err != nil {
			return agg, err
		}
		more, err := p.Enable(ts, server.GetServerTask(), client.GetClientTask(), true)
		if err != nil {
			return agg, errors.Wrapf(err, "failed to enable plugin %s", name)
		}
		tasks = append(tasks, more...)
		monitors += len(more)
	}

	// One barrier arrival per traffic client and monitor thread. The server
	// thread never waits on the barrier; it signals readiness through the
	// server-alive latch instead.
	t.coordinator.Reset(1 + monitors)

	phases := []struct {
		name string
		f    func(task.Participant) error
	}{
		{"initialize", func(p task.Participant) error { return p.Initialize(ctx) }},
		{"start setup", func(p task.Participant) error { return p.StartSetup(ctx) }},
		{"start task", func(p task.Participant) error { return p.StartTask(ctx) }},
		{"finish task", func(p task.Participant) error { return p.FinishTask() }},
		{"finish setup", func(p task.Participant) error { return p.FinishSetup() }},
		{"aggregate", func(p task.Participant) error { return p.AggregateOutput(&agg) }},
	}
	for _, phase := range phases {
		for _, tk := range tasks {
			if err := phase.f(tk); err != nil {
				return agg, errors.Wrapf(err, "%s failed for %s", phase.name, tk.LogName())
			}
		}
	}

	return agg, nil
}

// evaluateAndReport persists the run record, evaluates it against the
// thresholds and prints the result table. It returns the plan's verdict.
func (t *TrafficFlowTests) evaluateAndReport(tp *registry.TestPlan, rec *types.RunRecord, elapsed time.Duration) (bool, error) {
	recordPath, err := t.writeRecord(tp, rec)
	if err != nil {
		return false, err
	}
	t.log.Infow("Wrote run record", "path", recordPath)

	eval, err := evaluator.NewEvaluator(t.config.EvaluatorConfig, t.log)
	if err != nil {
		return false, err
	}
	eval.EvalRun(rec)
	status := eval.PassFailStatus()

	if err := t.writeEvaluation(recordPath, eval); err != nil {
		return false, err
	}

	t.printResultsTable(tp, eval, status, elapsed)
	t.recordMetrics(rec, eval, status, elapsed)
	return status.Result, nil
}
