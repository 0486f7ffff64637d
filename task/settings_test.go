package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trafficflow/tft/types"
)

func settingsFor(id types.TestCaseType) *TestSettings {
	return NewTestSettings(Params{
		TestCaseID:     id,
		TestType:       types.TestTypeIperfTCP,
		Duration:       10 * time.Second,
		NodeServerName: "worker-1",
		NodeClientName: "worker-2",
	})
}

func TestConnectionModeDerivation(t *testing.T) {
	tests := []struct {
		id   types.TestCaseType
		want types.ConnectionMode
	}{
		{types.TestCasePodToPodSameNode, types.ConnectionModePodIP},
		{types.TestCasePodToHostDiffNode, types.ConnectionModePodIP},
		{types.TestCasePodToClusterIPToPodSameNode, types.ConnectionModeClusterIP},
		{types.TestCaseHostToClusterIPToHostDiffNode, types.ConnectionModeClusterIP},
		{types.TestCasePodToNodePortToPodSameNode, types.ConnectionModeNodePortIP},
		{types.TestCaseHostToNodePortToHostDiffNode, types.ConnectionModeNodePortIP},
		{types.TestCasePodToExternal, types.ConnectionModeExternalIP},
		{types.TestCaseHostToExternal, types.ConnectionModeExternalIP},
	}
	for _, tc := range tests {
		t.Run(tc.id.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, settingsFor(tc.id).ConnectionMode)
		})
	}
}

func TestSameNodeCollapsesServerNode(t *testing.T) {
	ts := settingsFor(types.TestCasePodToPodSameNode)
	assert.Equal(t, types.NodeLocationSameNode, ts.NodeLocation)
	assert.Equal(t, "worker-2", ts.NodeServerName)
	assert.Equal(t, "worker-2", ts.NodeClientName)

	ts = settingsFor(types.TestCasePodToPodDiffNode)
	assert.Equal(t, types.NodeLocationDiffNode, ts.NodeLocation)
	assert.Equal(t, "worker-1", ts.NodeServerName)
}

func TestHostBackedPodTypeOverrides(t *testing.T) {
	// Host-targeted topologies force a host-backed server regardless of the
	// configured flavor.
	ts := NewTestSettings(Params{
		TestCaseID:     types.TestCasePodToHostSameNode,
		ServerPodType:  types.PodTypeSriov,
		NodeClientName: "n",
	})
	assert.Equal(t, types.PodTypeHostBacked, ts.ServerPodType)
	assert.Equal(t, types.PodTypeNormal, ts.ClientPodType)

	// Host-originated cases force a host-backed client.
	ts = settingsFor(types.TestCaseHostToPodDiffNode)
	assert.Equal(t, types.PodTypeHostBacked, ts.ClientPodType)
	assert.Equal(t, types.PodTypeNormal, ts.ServerPodType)

	ts = settingsFor(types.TestCaseHostToExternal)
	assert.Equal(t, types.PodTypeHostBacked, ts.ClientPodType)

	// SRIOV survives where the topology does not override it.
	ts = NewTestSettings(Params{
		TestCaseID:     types.TestCasePodToPodDiffNode,
		ServerPodType:  types.PodTypeSriov,
		ClientPodType:  types.PodTypeSriov,
		NodeServerName: "a",
		NodeClientName: "b",
	})
	assert.Equal(t, types.PodTypeSriov, ts.ServerPodType)
	assert.Equal(t, types.PodTypeSriov, ts.ClientPodType)
}

func TestTestString(t *testing.T) {
	ts := settingsFor(types.TestCasePodToClusterIPToPodSameNode)
	assert.Equal(t, "5-NORMAL_TO_CLUSTER_IP_TO_NORMAL-SAME_NODE", ts.TestString())

	ts = settingsFor(types.TestCasePodToClusterIPToPodSameNode)
	ts.Reverse = true
	assert.Equal(t, "5-NORMAL_TO_CLUSTER_IP_TO_NORMAL-SAME_NODE-REV", ts.TestString())
}

func TestExecTimeoutAddsSlack(t *testing.T) {
	ts := settingsFor(types.TestCasePodToPodSameNode)
	assert.Equal(t, 15*time.Second, ts.ExecTimeout())
}

func TestTestMetadata(t *testing.T) {
	ts := settingsFor(types.TestCasePodToPodDiffNode)
	ts.Reverse = true
	md := ts.TestMetadata()
	assert.True(t, md.Reverse)
	assert.Equal(t, types.TestCasePodToPodDiffNode, md.TestCaseID)
	assert.Equal(t, types.TestTypeIperfTCP, md.TestType)
	assert.Equal(t, "worker-1", md.Server.Name)
	assert.Equal(t, "worker-2", md.Client.Name)
}
