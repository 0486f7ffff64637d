package types

import (
	"fmt"
	"strconv"
)

// TestType identifies the traffic protocol exercised by a flow test.
type TestType string

const (
	TestTypeIperfTCP         TestType = "IPERF_TCP"
	TestTypeIperfUDP         TestType = "IPERF_UDP"
	TestTypeHTTP             TestType = "HTTP"
	TestTypeNetPerfTCPStream TestType = "NETPERF_TCP_STREAM"
	TestTypeNetPerfTCPRR     TestType = "NETPERF_TCP_RR"
)

// ParseTestType converts a config string (eg. "iperf-tcp") into a TestType.
func ParseTestType(s string) (TestType, error) {
	switch s {
	case "iperf-tcp", "iperf_tcp", string(TestTypeIperfTCP):
		return TestTypeIperfTCP, nil
	case "iperf-udp", "iperf_udp", string(TestTypeIperfUDP):
		return TestTypeIperfUDP, nil
	case "http", string(TestTypeHTTP):
		return TestTypeHTTP, nil
	case "netperf-tcp-stream", string(TestTypeNetPerfTCPStream):
		return TestTypeNetPerfTCPStream, nil
	case "netperf-tcp-rr", string(TestTypeNetPerfTCPRR):
		return TestTypeNetPerfTCPRR, nil
	}
	return "", fmt.Errorf("unknown test type %q", s)
}

// PodType describes how a participant pod attaches to the network.
type PodType string

const (
	PodTypeNormal     PodType = "NORMAL"
	PodTypeSriov      PodType = "SRIOV"
	PodTypeHostBacked PodType = "HOSTBACKED"
)

// ParsePodType converts a config string into a PodType.
func ParsePodType(s string) (PodType, error) {
	switch s {
	case "", "normal", string(PodTypeNormal):
		return PodTypeNormal, nil
	case "sriov", string(PodTypeSriov):
		return PodTypeSriov, nil
	case "hostbacked", "host", string(PodTypeHostBacked):
		return PodTypeHostBacked, nil
	}
	return "", fmt.Errorf("unknown pod type %q", s)
}

// ClusterMode distinguishes a single cluster from a tenant/infra split.
type ClusterMode string

const (
	ClusterModeSingle ClusterMode = "single"
	ClusterModeDPU    ClusterMode = "dpu"
)

// ConnectionMode selects the address a client directs traffic to.
type ConnectionMode string

const (
	ConnectionModePodIP      ConnectionMode = "POD_IP"
	ConnectionModeClusterIP  ConnectionMode = "CLUSTER_IP"
	ConnectionModeNodePortIP ConnectionMode = "NODE_PORT_IP"
	ConnectionModeExternalIP ConnectionMode = "EXTERNAL_IP"
)

// NodeLocation says whether client and server share a node.
type NodeLocation string

const (
	NodeLocationSameNode NodeLocation = "SAME_NODE"
	NodeLocationDiffNode NodeLocation = "DIFF_NODE"
)

// TestCaseType enumerates the supported traffic test topologies.
type TestCaseType int

const (
	TestCasePodToPodSameNode TestCaseType = iota + 1
	TestCasePodToPodDiffNode
	TestCasePodToHostSameNode
	TestCasePodToHostDiffNode
	TestCasePodToClusterIPToPodSameNode
	TestCasePodToClusterIPToPodDiffNode
	TestCasePodToClusterIPToHostSameNode
	TestCasePodToClusterIPToHostDiffNode
	TestCasePodToNodePortToPodSameNode
	TestCasePodToNodePortToPodDiffNode
	TestCasePodToNodePortToHostSameNode
	TestCasePodToNodePortToHostDiffNode
	TestCaseHostToHostSameNode
	TestCaseHostToHostDiffNode
	TestCaseHostToPodSameNode
	TestCaseHostToPodDiffNode
	TestCaseHostToClusterIPToPodSameNode
	TestCaseHostToClusterIPToPodDiffNode
	TestCaseHostToClusterIPToHostSameNode
	TestCaseHostToClusterIPToHostDiffNode
	TestCaseHostToNodePortToPodSameNode
	TestCaseHostToNodePortToPodDiffNode
	TestCaseHostToNodePortToHostSameNode
	TestCaseHostToNodePortToHostDiffNode
	TestCasePodToExternal
	TestCaseHostToExternal
)

const (
	TestCaseTypeMin = TestCasePodToPodSameNode
	TestCaseTypeMax = TestCaseHostToExternal
)

var testCaseNames = map[TestCaseType]string{
	TestCasePodToPodSameNode:              "POD_TO_POD_SAME_NODE",
	TestCasePodToPodDiffNode:              "POD_TO_POD_DIFF_NODE",
	TestCasePodToHostSameNode:             "POD_TO_HOST_SAME_NODE",
	TestCasePodToHostDiffNode:             "POD_TO_HOST_DIFF_NODE",
	TestCasePodToClusterIPToPodSameNode:   "POD_TO_CLUSTER_IP_TO_POD_SAME_NODE",
	TestCasePodToClusterIPToPodDiffNode:   "POD_TO_CLUSTER_IP_TO_POD_DIFF_NODE",
	TestCasePodToClusterIPToHostSameNode:  "POD_TO_CLUSTER_IP_TO_HOST_SAME_NODE",
	TestCasePodToClusterIPToHostDiffNode:  "POD_TO_CLUSTER_IP_TO_HOST_DIFF_NODE",
	TestCasePodToNodePortToPodSameNode:    "POD_TO_NODE_PORT_TO_POD_SAME_NODE",
	TestCasePodToNodePortToPodDiffNode:    "POD_TO_NODE_PORT_TO_POD_DIFF_NODE",
	TestCasePodToNodePortToHostSameNode:   "POD_TO_NODE_PORT_TO_HOST_SAME_NODE",
	TestCasePodToNodePortToHostDiffNode:   "POD_TO_NODE_PORT_TO_HOST_DIFF_NODE",
	TestCaseHostToHostSameNode:            "HOST_TO_HOST_SAME_NODE",
	TestCaseHostToHostDiffNode:            "HOST_TO_HOST_DIFF_NODE",
	TestCaseHostToPodSameNode:             "HOST_TO_POD_SAME_NODE",
	TestCaseHostToPodDiffNode:             "HOST_TO_POD_DIFF_NODE",
	TestCaseHostToClusterIPToPodSameNode:  "HOST_TO_CLUSTER_IP_TO_POD_SAME_NODE",
	TestCaseHostToClusterIPToPodDiffNode:  "HOST_TO_CLUSTER_IP_TO_POD_DIFF_NODE",
	TestCaseHostToClusterIPToHostSameNode: "HOST_TO_CLUSTER_IP_TO_HOST_SAME_NODE",
	TestCaseHostToClusterIPToHostDiffNode: "HOST_TO_CLUSTER_IP_TO_HOST_DIFF_NODE",
	TestCaseHostToNodePortToPodSameNode:   "HOST_TO_NODE_PORT_TO_POD_SAME_NODE",
	TestCaseHostToNodePortToPodDiffNode:   "HOST_TO_NODE_PORT_TO_POD_DIFF_NODE",
	TestCaseHostToNodePortToHostSameNode:  "HOST_TO_NODE_PORT_TO_HOST_SAME_NODE",
	TestCaseHostToNodePortToHostDiffNode:  "HOST_TO_NODE_PORT_TO_HOST_DIFF_NODE",
	TestCasePodToExternal:                 "POD_TO_EXTERNAL",
	TestCaseHostToExternal:                "HOST_TO_EXTERNAL",
}

func (t TestCaseType) String() string {
	if name, ok := testCaseNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TEST_CASE_%d", int(t))
}

// Valid reports whether t is a known test case.
func (t TestCaseType) Valid() bool {
	_, ok := testCaseNames[t]
	return ok
}

var testCaseByName = func() map[string]TestCaseType {
	m := make(map[string]TestCaseType, len(testCaseNames))
	for t, name := range testCaseNames {
		m[name] = t
	}
	return m
}()

// ParseTestCaseType accepts either a numeric ID ("5") or a symbolic name
// ("POD_TO_POD_SAME_NODE").
func ParseTestCaseType(s string) (TestCaseType, error) {
	if t, ok := testCaseByName[s]; ok {
		return t, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !TestCaseType(n).Valid() {
		return 0, fmt.Errorf("unknown test case %q", s)
	}
	return TestCaseType(n), nil
}
