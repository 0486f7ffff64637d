package testtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficflow/tft/types"
)

const netperfStreamOutput = `MIGRATED TCP STREAM TEST from 0.0.0.0 (0.0.0.0) port 0 AF_INET to 10.0.0.5 () port 0 AF_INET
Recv   Send    Send
Socket Socket  Message  Elapsed
Size   Size    Size     Time     Throughput
bytes  bytes   bytes    secs.    10^6bits/sec

131072  16384  16384    10.00    9415.26
`

const netperfRROutput = `MIGRATED TCP REQUEST/RESPONSE TEST from 0.0.0.0 (0.0.0.0) port 0 AF_INET to 10.0.0.5 () port 0 AF_INET : first burst 0
Local /Remote
Socket Size   Request  Resp.   Elapsed  Trans.
Send   Recv   Size     Size    Time     Rate
bytes  Bytes  bytes    bytes   secs.    per sec

16384  131072 1        1       10.00    24054.71
16384  131072
`

func TestNetperfReverseUnsupported(t *testing.T) {
	for _, tt := range []types.TestType{types.TestTypeNetPerfTCPStream, types.TestTypeNetPerfTCPRR} {
		h, err := Get(tt)
		require.NoError(t, err)
		assert.False(t, h.CanRunReverse())
	}
}

func TestNetperfServerCommands(t *testing.T) {
	s := &NetPerfServer{}
	assert.Equal(t, "netserver -p 5201 -N", s.ServerCmd(5201))
	assert.Equal(t, "killall netserver", s.CancelCmd())

	cmd, args := s.PersistentArgs(5201)
	assert.Equal(t, "netserver", cmd)
	assert.Equal(t, `["-p", "5201", "-N"]`, args)
}

func TestNetperfParseStreamOutput(t *testing.T) {
	h := netperfHandler{testType: types.TestTypeNetPerfTCPStream}
	parsed, err := h.parseOutput(netperfStreamOutput)
	require.NoError(t, err)
	assert.Equal(t, "9415.26", parsed["Throughput 10^6bits/sec"])
	assert.Equal(t, "10.00", parsed["Elapsed Time Seconds"])

	br := h.calculateBitrate(parsed)
	assert.InDelta(t, 9.41526, br.Tx, 1e-9)
	assert.Equal(t, br.Tx, br.Rx)
}

func TestNetperfParseRROutput(t *testing.T) {
	h := netperfHandler{testType: types.TestTypeNetPerfTCPRR}
	parsed, err := h.parseOutput(netperfRROutput)
	require.NoError(t, err)
	assert.Equal(t, "24054.71", parsed["Transaction Rate Per Second"])

	br := h.calculateBitrate(parsed)
	assert.InDelta(t, 24054.71, br.Tx, 1e-9)
}

func TestNetperfParseOutputRejectsShortInput(t *testing.T) {
	h := netperfHandler{testType: types.TestTypeNetPerfTCPStream}
	_, err := h.parseOutput("garbage\n")
	require.Error(t, err)

	_, err = h.parseOutput("a\nb\nc\nd\ne\nf\nnot enough fields\n")
	require.Error(t, err)
}

func TestNetperfCalculateBitrateMalformed(t *testing.T) {
	h := netperfHandler{testType: types.TestTypeNetPerfTCPStream}
	assert.Equal(t, types.BitrateNA, h.calculateBitrate(map[string]any{}))
	assert.Equal(t, types.BitrateNA,
		h.calculateBitrate(map[string]any{"Throughput 10^6bits/sec": "NaNsense"}))
}
