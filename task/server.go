package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/manifest"
	"github.com/trafficflow/tft/types"
)

func fromResult(r host.Result, force *bool) types.Output {
	return host.OutputFromResult(r, force)
}

// ExternalServerPodName is the container name used when the server runs
// outside the cluster under podman.
const ExternalServerPodName = "external-perf-server"

const (
	serverBasePort = 5201
	nodePortOffset = 25000
)

// ServerCommands supplies the protocol-specific commands of a perf server.
// The surrounding lifecycle (provisioning, readiness, cancelation) is shared.
type ServerCommands interface {
	// ServerCmd is the long-running foreground server process.
	ServerCmd(port int) string
	// CancelCmd kills the server process inside the pod.
	CancelCmd() string
	// PersistentArgs is the container entrypoint used when the server pod
	// itself runs the server process for the lifetime of the pod.
	PersistentArgs(port int) (command string, args string)
}

// ServerTask is the base of every traffic server role. Its setup operation IS
// the server process: the thread action supervises it for the whole traffic
// window and the cancel action kills it during teardown.
type ServerTask struct {
	Task
	Port           int
	PodType        types.PodType
	ConnectionMode types.ConnectionMode
	ExecPersistent bool

	// Addresses resolved during Initialize, consumed by the client.
	ClusterIPAddr string
	NodePortAddr  string

	commands     ServerCommands
	manifestPath string
}

// InitServer wires a server role into the shared lifecycle. Roles call it
// from their constructor, passing themselves as the Hooks implementation.
func (s *ServerTask) InitServer(ts *TestSettings, hooks Hooks, logName string, commands ServerCommands) error {
	if err := s.Task.init(ts, hooks, logName, ts.ServerIndex, ts.NodeServerName, ts.ServerIsTenant); err != nil {
		return err
	}
	s.Port = serverBasePort + ts.ServerIndex
	s.PodType = ts.ServerPodType
	s.ConnectionMode = ts.ConnectionMode
	s.ExecPersistent = ts.ServerIsPersistent
	s.commands = commands
	if s.ConnectionMode == types.ConnectionModeExternalIP {
		s.PodName = ExternalServerPodName
	} else {
		s.PodName = podName(s.PodType, s.NodeName, "server", s.Port)
	}
	return nil
}

// ServerTask exposes the base to protocol handlers and plugins.
func (s *ServerTask) GetServerTask() *ServerTask { return s }

// Initialize renders the server pod manifest and creates the ClusterIP and
// NodePort services in front of it. External servers have no cluster objects.
func (s *ServerTask) Initialize(ctx context.Context) error {
	if s.ConnectionMode == types.ConnectionModeExternalIP {
		return nil
	}

	command, args := "", ""
	if s.ExecPersistent {
		command, args = s.commands.PersistentArgs(s.Port)
	}
	path, err := s.TS.Renderer.RenderPod(manifest.PodParams{
		Name:           s.PodName,
		Namespace:      s.TS.Namespace,
		NodeName:       s.NodeName,
		PodType:        s.PodType,
		DefaultNetwork: s.TS.ServerDefaultNetwork,
		TestImage:      s.TS.TestImage,
		Command:        command,
		Args:           args,
	})
	if err != nil {
		return err
	}
	s.manifestPath = path

	svcName := s.PodName + "-cluster-ip"
	svcPath, err := s.TS.Renderer.RenderService(manifest.ServiceParams{
		Name:          svcName,
		Namespace:     s.TS.Namespace,
		ServerPodName: s.PodName,
		Port:          s.Port,
	})
	if err != nil {
		return err
	}
	if s.ClusterIPAddr, err = s.Client.ApplyService(ctx, svcPath, svcName, s.TS.Namespace); err != nil {
		return err
	}

	npName := s.PodName + "-node-port"
	npPath, err := s.TS.Renderer.RenderService(manifest.ServiceParams{
		Name:          npName,
		Namespace:     s.TS.Namespace,
		ServerPodName: s.PodName,
		Port:          s.Port,
		NodePort:      s.Port + nodePortOffset,
	})
	if err != nil {
		return err
	}
	if s.NodePortAddr, err = s.Client.ApplyService(ctx, npPath, npName, s.TS.Namespace); err != nil {
		return err
	}
	return nil
}

// CreateSetupOperation provisions the server pod (or podman container) and
// returns the operation supervising the server process. Its ready action
// confirms the server is observable and trips the server-alive latch.
func (s *ServerTask) CreateSetupOperation(ctx context.Context) (TaskOperation, error) {
	thCmd := s.commands.ServerCmd(s.Port)
	external := s.ConnectionMode == types.ConnectionModeExternalIP

	var cmd, cancelCmd string
	if external {
		cmd = fmt.Sprintf("podman run -i --init --replace --rm -p %d --name=%s %s %s",
			s.Port, s.PodName, s.TS.TestImage, thCmd)
		cancelCmd = fmt.Sprintf("podman rm --force %s", s.PodName)
	} else {
		if _, err := s.Client.EnsureRunning(ctx, kube.ManifestSpec{
			Path:      s.manifestPath,
			PodName:   s.PodName,
			Namespace: s.TS.Namespace,
		}); err != nil {
			return nil, err
		}
		cmd = thCmd
		cancelCmd = s.commands.CancelCmd()
	}

	s.Log.Infow("Starting server", "task", s.logName, "cmd", cmd)

	runCmd := func(c string, ignoreFailure bool) types.Output {
		var force *bool
		if ignoreFailure {
			// The server is a long-running process that normally dies by the
			// cancel action; its non-zero exit is not a failure.
			t := true
			force = &t
		}
		if external {
			return fromResult(s.LH.Run(ctx, c), force)
		}
		if s.ExecPersistent {
			return types.NewBaseOutput("server is persistent")
		}
		return fromResult(s.RunOcExec(ctx, c), force)
	}

	return NewOperation(s.LogNameSetup(), s.Log, Actions[types.Output]{
		Thread:    func() types.Output { return runCmd(cmd, true) },
		Cancel:    func() { runCmd(cancelCmd, false) },
		WaitReady: func() { s.confirmServerAlive(ctx) },
	})
}

// confirmServerAlive blocks until the server is observably running, then
// trips the server-alive latch. A server that never comes up leaves every
// peer stuck on the barrier, so failure here aborts the whole run.
func (s *ServerTask) confirmServerAlive(ctx context.Context) {
	alive := false
	if s.ConnectionMode == types.ConnectionModeExternalIP {
		deadline := time.Now().Add(time.Minute)
		for time.Now().Before(deadline) {
			r := s.LH.Run(ctx, fmt.Sprintf(
				"podman ps --filter status=running --filter name=%s --format '{{.Names}}'", s.PodName))
			if strings.Contains(r.Out, s.PodName) {
				alive = true
				break
			}
			time.Sleep(5 * time.Second)
		}
	} else {
		alive = s.Client.PodIsReady(ctx, s.PodName, s.TS.Namespace)
	}
	if !alive {
		s.Log.Fatalw("Server did not come up, aborting run",
			"task", s.logName, "pod", s.PodName)
	}
	s.TS.Coordinator.SetServerAlive()
}

func podName(pt types.PodType, nodeName, role string, port int) string {
	prefix := "normal-pod"
	switch pt {
	case types.PodTypeSriov:
		prefix = "sriov-pod"
	case types.PodTypeHostBacked:
		prefix = "host-pod"
	}
	return fmt.Sprintf("%s-%s-%s-%d", prefix, nodeName, role, port)
}
