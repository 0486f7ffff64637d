package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTestType(t *testing.T) {
	tests := []struct {
		in   string
		want TestType
	}{
		{"iperf-tcp", TestTypeIperfTCP},
		{"iperf_udp", TestTypeIperfUDP},
		{"IPERF_TCP", TestTypeIperfTCP},
		{"netperf-tcp-stream", TestTypeNetPerfTCPStream},
		{"netperf-tcp-rr", TestTypeNetPerfTCPRR},
		{"http", TestTypeHTTP},
	}
	for _, tc := range tests {
		got, err := ParseTestType(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseTestType("quic")
	require.Error(t, err)
}

func TestParsePodType(t *testing.T) {
	got, err := ParsePodType("")
	require.NoError(t, err)
	assert.Equal(t, PodTypeNormal, got)

	got, err = ParsePodType("sriov")
	require.NoError(t, err)
	assert.Equal(t, PodTypeSriov, got)

	_, err = ParsePodType("bogus")
	require.Error(t, err)
}

func TestParseTestCaseType(t *testing.T) {
	got, err := ParseTestCaseType("5")
	require.NoError(t, err)
	assert.Equal(t, TestCasePodToClusterIPToPodSameNode, got)

	got, err = ParseTestCaseType("POD_TO_EXTERNAL")
	require.NoError(t, err)
	assert.Equal(t, TestCasePodToExternal, got)

	_, err = ParseTestCaseType("0")
	require.Error(t, err)
	_, err = ParseTestCaseType("27")
	require.Error(t, err)
	_, err = ParseTestCaseType("NOT_A_CASE")
	require.Error(t, err)
}

func TestTestCaseTypeStringRoundTrip(t *testing.T) {
	for id := TestCaseTypeMin; id <= TestCaseTypeMax; id++ {
		require.True(t, id.Valid())
		parsed, err := ParseTestCaseType(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
	assert.False(t, TestCaseType(0).Valid())
}
