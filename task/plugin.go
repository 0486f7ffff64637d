package task

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/manifest"
	"github.com/trafficflow/tft/types"
)

// DefaultSampleInterval is the pause between monitor samples.
const DefaultSampleInterval = 200 * time.Millisecond

// PluginTask is the base of monitor roles. Plugins observe a test case from
// the side: their task operation typically waits on the barrier, samples
// until the client-finished latch trips and reports a PluginOutput.
type PluginTask struct {
	Task
	PluginName     string
	SampleInterval time.Duration

	manifestPath string
}

// InitPlugin wires a monitor role into the shared lifecycle.
func (p *PluginTask) InitPlugin(ts *TestSettings, hooks Hooks, logName, pluginName, nodeName, podName string, tenant bool) error {
	if err := p.Task.init(ts, hooks, logName, ts.Index, nodeName, tenant); err != nil {
		return err
	}
	p.PluginName = pluginName
	p.PodName = podName
	p.SampleInterval = DefaultSampleInterval
	return nil
}

// Initialize renders the tools pod manifest the monitor runs its sampling
// commands in. Monitors that sample in-process override this with a no-op.
func (p *PluginTask) Initialize(ctx context.Context) error {
	path, err := p.TS.Renderer.RenderToolsPod(manifest.PodParams{
		Name:      p.PodName,
		Namespace: p.TS.Namespace,
		NodeName:  p.NodeName,
		TestImage: p.TS.TestImage,
	})
	if err != nil {
		return err
	}
	p.manifestPath = path
	return nil
}

// CreateSetupOperation provisions the tools pod synchronously.
func (p *PluginTask) CreateSetupOperation(ctx context.Context) (TaskOperation, error) {
	if p.manifestPath == "" {
		return nil, nil
	}
	_, err := p.Client.EnsureRunning(ctx, kube.ManifestSpec{
		Path:      p.manifestPath,
		PodName:   p.PodName,
		Namespace: p.TS.Namespace,
	})
	return nil, err
}

// Metadata returns the plugin metadata block embedded into plugin outputs.
func (p *PluginTask) Metadata() types.PluginMetadata {
	return types.PluginMetadata{
		PluginName: p.PluginName,
		NodeName:   p.NodeName,
		PodName:    p.PodName,
	}
}

// AggregateRoleOutput appends the plugin result to the aggregate.
func (p *PluginTask) AggregateRoleOutput(result types.AggregatableOutput, agg *types.AggregateOutput) error {
	po, ok := result.(types.PluginOutput)
	if !ok {
		return errors.Errorf("plugin %s: unexpected result type %T", p.PluginName, result)
	}
	agg.AppendPlugin(po)
	return nil
}
