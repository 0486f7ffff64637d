package task

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/manifest"
	"github.com/trafficflow/tft/types"
)

// ClientTask is the base of every traffic client role. The client owns the
// traffic window: its task operation waits on the barrier, generates traffic
// against the server's resolved address and trips the client-finished latch.
type ClientTask struct {
	Task
	Server         *ServerTask
	Port           int
	PodType        types.PodType
	ConnectionMode types.ConnectionMode
	TestType       types.TestType
	TestCaseID     types.TestCaseType
	Reverse        bool

	manifestPath string
}

// InitClient wires a client role into the shared lifecycle.
func (c *ClientTask) InitClient(ts *TestSettings, hooks Hooks, logName string, server *ServerTask) error {
	if err := c.Task.init(ts, hooks, logName, ts.ClientIndex, ts.NodeClientName, ts.ClientIsTenant); err != nil {
		return err
	}
	c.Server = server
	c.Port = server.Port
	c.PodType = ts.ClientPodType
	c.ConnectionMode = ts.ConnectionMode
	c.TestType = ts.TestType
	c.TestCaseID = ts.TestCaseID
	c.Reverse = ts.Reverse
	c.PodName = podName(c.PodType, c.NodeName, "client", c.Port)
	return nil
}

// ClientTask exposes the base to protocol handlers and plugins.
func (c *ClientTask) GetClientTask() *ClientTask { return c }

// Initialize renders the client pod manifest.
func (c *ClientTask) Initialize(ctx context.Context) error {
	path, err := c.TS.Renderer.RenderPod(manifest.PodParams{
		Name:           c.PodName,
		Namespace:      c.TS.Namespace,
		NodeName:       c.NodeName,
		PodType:        c.PodType,
		DefaultNetwork: c.TS.ClientDefaultNetwork,
		TestImage:      c.TS.TestImage,
	})
	if err != nil {
		return err
	}
	c.manifestPath = path
	return nil
}

// CreateSetupOperation provisions the client pod synchronously. Clients need
// no long-running setup operation.
func (c *ClientTask) CreateSetupOperation(ctx context.Context) (TaskOperation, error) {
	_, err := c.Client.EnsureRunning(ctx, kube.ManifestSpec{
		Path:      c.manifestPath,
		PodName:   c.PodName,
		Namespace: c.TS.Namespace,
	})
	return nil, err
}

// TargetIP resolves the address the client directs traffic to, according to
// the test case's connection mode.
func (c *ClientTask) TargetIP(ctx context.Context) (string, error) {
	switch c.ConnectionMode {
	case types.ConnectionModeClusterIP:
		c.Log.Debugw("Directing traffic to cluster IP", "addr", c.Server.ClusterIPAddr)
		return c.Server.ClusterIPAddr, nil
	case types.ConnectionModeNodePortIP:
		c.Log.Debugw("Directing traffic to node port", "addr", c.Server.NodePortAddr)
		return c.Server.NodePortAddr, nil
	case types.ConnectionModeExternalIP:
		return c.podmanIP(ctx, c.Server.PodName)
	}
	return c.Client.PodIP(ctx, c.Server.PodName, c.TS.Namespace)
}

// podmanIP looks up the address of an external server container. The
// container may still be coming up when the client asks, so retry briefly.
func (c *ClientTask) podmanIP(ctx context.Context, name string) (string, error) {
	cmd := "podman inspect --format '{{.NetworkSettings.IPAddress}}' " + name
	for attempt := 0; attempt < 5; attempt++ {
		r := c.LH.Run(ctx, cmd)
		if r.Success() {
			if ip := strings.Trim(strings.TrimSpace(r.Out), "'"); ip != "" {
				return ip, nil
			}
		}
		time.Sleep(2 * time.Second)
	}
	return "", errors.Errorf("failed to determine podman IP of %s after 5 attempts", name)
}
