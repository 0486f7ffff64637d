package task

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trafficflow/tft/barrier"
	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/kube"
	"github.com/trafficflow/tft/manifest"
	"github.com/trafficflow/tft/types"
)

// Params carries the raw per-connection configuration that TestSettings
// derives the concrete topology from.
type Params struct {
	ConnectionName string
	TestCaseID     types.TestCaseType
	TestType       types.TestType
	Reverse        bool
	Index          int
	Duration       time.Duration
	Namespace      string
	TestImage      string

	NodeServerName       string
	NodeClientName       string
	ServerPodType        types.PodType
	ClientPodType        types.PodType
	ServerDefaultNetwork string
	ClientDefaultNetwork string
	ServerPersistent     bool

	ClusterMode types.ClusterMode
	Coordinator *barrier.Coordinator
	Cluster     *kube.Cluster
	LocalHost   host.Host
	Renderer    *manifest.Renderer
	Log         *zap.SugaredLogger
}

// TestSettings resolves a test case ID plus the configured node roles into
// the concrete topology of one run: where the server lives, how the client
// reaches it, and which pod flavors both sides get.
type TestSettings struct {
	ConnectionName string
	TestCaseID     types.TestCaseType
	TestType       types.TestType
	Reverse        bool
	Index          int
	Duration       time.Duration
	Namespace      string
	TestImage      string

	NodeServerName       string
	NodeClientName       string
	ServerPodType        types.PodType
	ClientPodType        types.PodType
	ServerDefaultNetwork string
	ClientDefaultNetwork string
	ServerIsPersistent   bool
	ServerIsTenant       bool
	ClientIsTenant       bool
	ServerIndex          int
	ClientIndex          int

	ConnectionMode types.ConnectionMode
	NodeLocation   types.NodeLocation
	ClusterMode    types.ClusterMode

	Coordinator *barrier.Coordinator
	Cluster     *kube.Cluster
	LocalHost   host.Host
	Renderer    *manifest.Renderer
	Log         *zap.SugaredLogger
}

// NewTestSettings derives the full topology from the raw parameters. The
// server node collapses onto the client node for same-node cases, and pod
// flavors configured as SRIOV are overridden wherever the test case demands
// a host-backed pod.
func NewTestSettings(p Params) *TestSettings {
	serverNode := p.NodeServerName
	location := types.NodeLocationDiffNode
	if isSameNodeTest(p.TestCaseID) {
		serverNode = p.NodeClientName
		location = types.NodeLocationSameNode
	}

	return &TestSettings{
		ConnectionName: p.ConnectionName,
		TestCaseID:     p.TestCaseID,
		TestType:       p.TestType,
		Reverse:        p.Reverse,
		Index:          p.Index,
		Duration:       p.Duration,
		Namespace:      p.Namespace,
		TestImage:      p.TestImage,

		NodeServerName:       serverNode,
		NodeClientName:       p.NodeClientName,
		ServerPodType:        serverPodType(p.TestCaseID, p.ServerPodType),
		ClientPodType:        clientPodType(p.TestCaseID, p.ClientPodType),
		ServerDefaultNetwork: p.ServerDefaultNetwork,
		ClientDefaultNetwork: p.ClientDefaultNetwork,
		ServerIsPersistent:   p.ServerPersistent,
		ServerIsTenant:       true,
		ClientIsTenant:       true,
		ServerIndex:          p.Index,
		ClientIndex:          p.Index,

		ConnectionMode: connectionModeFor(p.TestCaseID),
		NodeLocation:   location,
		ClusterMode:    p.ClusterMode,

		Coordinator: p.Coordinator,
		Cluster:     p.Cluster,
		LocalHost:   p.LocalHost,
		Renderer:    p.Renderer,
		Log:         p.Log,
	}
}

// TestMetadata returns the metadata block embedded into the flow-test output.
func (ts *TestSettings) TestMetadata() types.TestMetadata {
	return types.TestMetadata{
		Reverse:    ts.Reverse,
		TestCaseID: ts.TestCaseID,
		TestType:   ts.TestType,
		Server: types.PodInfo{
			Name:     ts.NodeServerName,
			PodType:  ts.ServerPodType,
			IsTenant: ts.ServerIsTenant,
			Index:    ts.ServerIndex,
		},
		Client: types.PodInfo{
			Name:     ts.NodeClientName,
			PodType:  ts.ClientPodType,
			IsTenant: ts.ClientIsTenant,
			Index:    ts.ClientIndex,
		},
	}
}

// TestString returns the compact test identifier used in logs and results,
// eg. "5-NORMAL_TO_CLUSTER_IP_TO_NORMAL-SAME_NODE".
func (ts *TestSettings) TestString() string {
	direction := ""
	if ts.Reverse {
		direction = "-REV"
	}
	return fmt.Sprintf("%d-%s_TO_%s_TO_%s-%s%s",
		int(ts.TestCaseID), ts.ClientPodType, ts.ConnectionMode, ts.ServerPodType,
		ts.NodeLocation, direction)
}

// InfoString returns a multi-line description of the resolved configuration.
func (ts *TestSettings) InfoString() string {
	return fmt.Sprintf(`%s TEST CONFIGURATION
  Test Case %d: %s pod to %s to %s pod - %s
  Client Node: %s
    Tenant=%v
    Index=%d
  Server Node: %s
    Exec Persistence: %v
    Tenant=%v
    Index=%d`,
		ts.TestType,
		int(ts.TestCaseID), ts.ClientPodType, ts.ConnectionMode, ts.ServerPodType, ts.NodeLocation,
		ts.NodeClientName, ts.ClientIsTenant, ts.ClientIndex,
		ts.NodeServerName, ts.ServerIsPersistent, ts.ServerIsTenant, ts.ServerIndex)
}

// ExecTimeout is the join timeout for the traffic-generation operation:
// the nominal duration plus half again as slack for tool startup/teardown.
func (ts *TestSettings) ExecTimeout() time.Duration {
	return ts.Duration + ts.Duration/2
}

// connectionModeFor determines what address family the client directs
// traffic to for a given test case.
func connectionModeFor(id types.TestCaseType) types.ConnectionMode {
	switch id {
	case types.TestCasePodToClusterIPToPodSameNode,
		types.TestCasePodToClusterIPToPodDiffNode,
		types.TestCasePodToClusterIPToHostSameNode,
		types.TestCasePodToClusterIPToHostDiffNode,
		types.TestCaseHostToClusterIPToPodSameNode,
		types.TestCaseHostToClusterIPToPodDiffNode,
		types.TestCaseHostToClusterIPToHostSameNode,
		types.TestCaseHostToClusterIPToHostDiffNode:
		return types.ConnectionModeClusterIP
	case types.TestCasePodToNodePortToPodSameNode,
		types.TestCasePodToNodePortToPodDiffNode,
		types.TestCasePodToNodePortToHostSameNode,
		types.TestCasePodToNodePortToHostDiffNode,
		types.TestCaseHostToNodePortToPodSameNode,
		types.TestCaseHostToNodePortToPodDiffNode,
		types.TestCaseHostToNodePortToHostSameNode,
		types.TestCaseHostToNodePortToHostDiffNode:
		return types.ConnectionModeNodePortIP
	case types.TestCasePodToExternal, types.TestCaseHostToExternal:
		return types.ConnectionModeExternalIP
	}
	return types.ConnectionModePodIP
}

func isSameNodeTest(id types.TestCaseType) bool {
	switch id {
	case types.TestCasePodToPodSameNode,
		types.TestCasePodToHostSameNode,
		types.TestCasePodToClusterIPToPodSameNode,
		types.TestCasePodToClusterIPToHostSameNode,
		types.TestCasePodToNodePortToPodSameNode,
		types.TestCasePodToNodePortToHostSameNode,
		types.TestCaseHostToHostSameNode,
		types.TestCaseHostToPodSameNode,
		types.TestCaseHostToClusterIPToPodSameNode,
		types.TestCaseHostToClusterIPToHostSameNode,
		types.TestCaseHostToNodePortToPodSameNode,
		types.TestCaseHostToNodePortToHostSameNode:
		return true
	}
	return false
}

// serverPodType forces a host-backed server where the topology targets the
// host network, otherwise honors the configured flavor.
func serverPodType(id types.TestCaseType, configured types.PodType) types.PodType {
	switch id {
	case types.TestCasePodToHostSameNode,
		types.TestCasePodToHostDiffNode,
		types.TestCasePodToClusterIPToHostSameNode,
		types.TestCasePodToClusterIPToHostDiffNode,
		types.TestCaseHostToClusterIPToHostSameNode,
		types.TestCaseHostToClusterIPToHostDiffNode,
		types.TestCaseHostToNodePortToHostSameNode,
		types.TestCaseHostToNodePortToHostDiffNode:
		return types.PodTypeHostBacked
	}
	if configured == types.PodTypeSriov {
		return types.PodTypeSriov
	}
	return types.PodTypeNormal
}

// clientPodType forces a host-backed client for all host-originated cases.
func clientPodType(id types.TestCaseType, configured types.PodType) types.PodType {
	if id >= types.TestCaseHostToHostSameNode && id <= types.TestCaseHostToExternal {
		return types.PodTypeHostBacked
	}
	if configured == types.PodTypeSriov {
		return types.PodTypeSriov
	}
	return types.PodTypeNormal
}
