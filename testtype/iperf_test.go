package testtype

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/types"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestGetReturnsRegisteredHandlers(t *testing.T) {
	for _, tt := range []types.TestType{
		types.TestTypeIperfTCP,
		types.TestTypeIperfUDP,
		types.TestTypeNetPerfTCPStream,
		types.TestTypeNetPerfTCPRR,
	} {
		h, err := Get(tt)
		require.NoError(t, err)
		assert.Equal(t, tt, h.TestType())
	}

	_, err := Get(types.TestTypeHTTP)
	require.Error(t, err)
}

func TestIperfReverseSupport(t *testing.T) {
	tcp, err := Get(types.TestTypeIperfTCP)
	require.NoError(t, err)
	assert.True(t, tcp.CanRunReverse())

	udp, err := Get(types.TestTypeIperfUDP)
	require.NoError(t, err)
	assert.False(t, udp.CanRunReverse())
}

func TestIperfServerCommands(t *testing.T) {
	s := &IperfServer{}
	assert.Equal(t, "iperf3 -s -p 5201 --one-off --json", s.ServerCmd(5201))
	assert.Equal(t, "killall iperf3", s.CancelCmd())

	cmd, args := s.PersistentArgs(5202)
	assert.Equal(t, "iperf3", cmd)
	assert.Equal(t, `["-s", "-p", "5202"]`, args)
}

func TestIperfCalculateBitrateTCP(t *testing.T) {
	raw := `{
		"end": {
			"sum_sent": {"bits_per_second": 9876543210.0},
			"sum_received": {"bits_per_second": 9123456789.0}
		}
	}`
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))

	h := iperfHandler{testType: types.TestTypeIperfTCP}
	br := h.calculateBitrate(testLogger(), parsed)
	assert.Equal(t, 9.8765, br.Tx)
	assert.Equal(t, 9.1235, br.Rx)
}

func TestIperfCalculateBitrateUDP(t *testing.T) {
	raw := `{"end": {"sum": {"bits_per_second": 25000000000.0}}}`
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))

	h := iperfHandler{testType: types.TestTypeIperfUDP}
	br := h.calculateBitrate(testLogger(), parsed)
	assert.Equal(t, 25.0, br.Tx)
	assert.Equal(t, br.Tx, br.Rx)
}

func TestIperfCalculateBitrateErrors(t *testing.T) {
	h := iperfHandler{testType: types.TestTypeIperfTCP}

	br := h.calculateBitrate(testLogger(), map[string]any{"error": "unable to connect"})
	assert.Equal(t, types.BitrateNA, br)

	br = h.calculateBitrate(testLogger(), map[string]any{"end": map[string]any{}})
	assert.Equal(t, types.BitrateNA, br)
}

func TestNestedFloat(t *testing.T) {
	m := map[string]any{"a": map[string]any{"b": 1.5}}
	assert.Equal(t, 1.5, nestedFloat(m, "a", "b"))
	assert.Equal(t, -1.0, nestedFloat(m, "a", "missing"))
	assert.Equal(t, -1.0, nestedFloat(m, "a", "b", "too-deep"))
	assert.Equal(t, -1.0, nestedFloat(map[string]any{"a": "nan"}, "a"))
}

func TestRoundGbps(t *testing.T) {
	assert.Equal(t, 9.8765, roundGbps(9876543210))
	assert.Equal(t, 0.001, roundGbps(1000000))
	assert.Equal(t, 25.0, roundGbps(25000000000))
}
