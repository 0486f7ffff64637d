package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficflow/tft/types"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryRequiresPlanFile(t *testing.T) {
	_, err := NewRegistry(Config{})
	require.Error(t, err)
}

func TestLoadPlanDefaults(t *testing.T) {
	path := writePlan(t, `
tft:
  - test_cases: "1"
    connections:
      - server:
          - name: worker-1
        client:
          - name: worker-2
`)
	r, err := NewRegistry(Config{PlanFile: path})
	require.NoError(t, err)

	plan := r.Plan()
	require.Len(t, plan.Tests, 1)
	tp := plan.Tests[0]
	assert.Equal(t, "Test 1", tp.Name)
	assert.Equal(t, "default", tp.Namespace)
	assert.Equal(t, "ft-logs", tp.LogsDir)
	assert.Equal(t, 3600*time.Second, tp.Duration)
	assert.Equal(t, []types.TestCaseType{types.TestCasePodToPodSameNode}, tp.TestCases)

	require.Len(t, tp.Connections, 1)
	conn := tp.Connections[0]
	assert.Equal(t, types.TestTypeIperfTCP, conn.TestType)
	assert.Equal(t, 1, conn.Instances)
	assert.Equal(t, "worker-1", conn.Server.Name)
	assert.Equal(t, "worker-2", conn.Client.Name)
	assert.Equal(t, types.PodTypeNormal, conn.Server.PodType)
	assert.Equal(t, "default/default", conn.Server.DefaultNetwork)
}

func TestLoadPlanFull(t *testing.T) {
	path := writePlan(t, `
tft:
  - name: offload
    namespace: traffic
    test_cases: "1-3,POD_TO_EXTERNAL"
    duration: 30
    logs: /tmp/ft-logs
    connections:
      - name: sriov-pair
        type: iperf-udp
        instances: 2
        server:
          - name: worker-1
            sriov: true
            persistent: true
            default-network: vlan/net1
        client:
          - name: worker-2
            sriov: true
        plugins:
          - measure_power
          - name: validate_offload
`)
	r, err := NewRegistry(Config{PlanFile: path})
	require.NoError(t, err)

	tp := r.Plan().Tests[0]
	assert.Equal(t, "offload", tp.Name)
	assert.Equal(t, "traffic", tp.Namespace)
	assert.Equal(t, 30*time.Second, tp.Duration)
	assert.Equal(t, []types.TestCaseType{
		types.TestCasePodToPodSameNode,
		types.TestCasePodToPodDiffNode,
		types.TestCasePodToHostSameNode,
		types.TestCasePodToExternal,
	}, tp.TestCases)

	conn := tp.Connections[0]
	assert.Equal(t, "sriov-pair", conn.Name)
	assert.Equal(t, types.TestTypeIperfUDP, conn.TestType)
	assert.Equal(t, 2, conn.Instances)
	assert.True(t, conn.Server.Persistent)
	assert.Equal(t, types.PodTypeSriov, conn.Server.PodType)
	assert.Equal(t, "vlan/net1", conn.Server.DefaultNetwork)
	assert.Equal(t, []string{"measure_power", "validate_offload"}, conn.Plugins)
}

func TestLoadPlanRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		plan string
	}{
		{"empty tft list", `tft: []`},
		{"missing connections", `
tft:
  - test_cases: "1"
`},
		{"two servers", `
tft:
  - test_cases: "1"
    connections:
      - server:
          - name: a
          - name: b
        client:
          - name: c
`},
		{"missing node name", `
tft:
  - test_cases: "1"
    connections:
      - server:
          - sriov: true
        client:
          - name: c
`},
		{"unknown test type", `
tft:
  - test_cases: "1"
    connections:
      - type: quic
        server:
          - name: a
        client:
          - name: b
`},
		{"unhandled test type", `
tft:
  - test_cases: "1"
    connections:
      - type: http
        server:
          - name: a
        client:
          - name: b
`},
		{"unknown plugin", `
tft:
  - test_cases: "1"
    connections:
      - server:
          - name: a
        client:
          - name: b
        plugins:
          - not_a_plugin
`},
		{"negative duration", `
tft:
  - test_cases: "1"
    duration: -5
    connections:
      - server:
          - name: a
        client:
          - name: b
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePlan(t, tc.plan)
			_, err := NewRegistry(Config{PlanFile: path})
			require.Error(t, err)
		})
	}
}

func TestParseTestCases(t *testing.T) {
	all, err := ParseTestCases("*")
	require.NoError(t, err)
	assert.Len(t, all, 26)

	all, err = ParseTestCases("")
	require.NoError(t, err)
	assert.Len(t, all, 26)

	cases, err := ParseTestCases(" 2 , 5-7 ,HOST_TO_EXTERNAL")
	require.NoError(t, err)
	assert.Equal(t, []types.TestCaseType{
		types.TestCasePodToPodDiffNode,
		types.TestCasePodToClusterIPToPodSameNode,
		types.TestCasePodToClusterIPToPodDiffNode,
		types.TestCasePodToClusterIPToHostSameNode,
		types.TestCaseHostToExternal,
	}, cases)

	_, err = ParseTestCases("9-5")
	require.Error(t, err)
	_, err = ParseTestCases("99")
	require.Error(t, err)
	_, err = ParseTestCases(",")
	require.Error(t, err)
}
