package testtype

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

const (
	netperfServerExe = "netserver"
	netperfClientExe = "netperf"

	// Line index of the values row in netperf's tabular output.
	netperfValuesLine = 6
)

func init() {
	register(netperfHandler{testType: types.TestTypeNetPerfTCPStream})
	register(netperfHandler{testType: types.TestTypeNetPerfTCPRR})
}

type netperfHandler struct {
	testType types.TestType
}

func (h netperfHandler) TestType() types.TestType { return h.testType }

func (h netperfHandler) CanRunReverse() bool { return false }

func (h netperfHandler) CreateServerClient(ts *task.TestSettings) (task.Server, task.Client, error) {
	s := &NetPerfServer{}
	if err := s.InitServer(ts, s, "NetPerfServer", s); err != nil {
		return nil, nil, err
	}
	c := &NetPerfClient{handler: h}
	if err := c.InitClient(ts, c, "NetPerfClient", &s.ServerTask); err != nil {
		return nil, nil, err
	}
	return s, c, nil
}

func (h netperfHandler) testName() string {
	if h.testType == types.TestTypeNetPerfTCPRR {
		return "TCP_RR"
	}
	return "TCP_STREAM"
}

// NetPerfServer runs netserver inside the server pod.
type NetPerfServer struct {
	task.ServerTask
}

func (s *NetPerfServer) ServerCmd(port int) string {
	return fmt.Sprintf("%s -p %d -N", netperfServerExe, port)
}

func (s *NetPerfServer) CancelCmd() string {
	return "killall " + netperfServerExe
}

func (s *NetPerfServer) PersistentArgs(port int) (string, string) {
	return netperfServerExe, fmt.Sprintf(`["-p", "%d", "-N"]`, port)
}

// NetPerfClient generates the traffic and parses netperf's tabular output.
type NetPerfClient struct {
	task.ClientTask
	handler netperfHandler
}

func (c *NetPerfClient) CreateTaskOperation(ctx context.Context) (task.TaskOperation, error) {
	serverIP, err := c.TargetIP(ctx)
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("%s -H %s -p %d -t %s -l %d",
		netperfClientExe, serverIP, c.Port, c.handler.testName(), int(c.TS.Duration.Seconds()))
	if c.Reverse {
		c.Log.Infow("Reverse is not supported by netperf, running forward")
	}
	c.Log.Infow("Starting traffic client", "cmd", cmd, "target", serverIP)

	thread := func() types.Output {
		c.TS.Coordinator.WaitOnBarrier()
		r := c.RunOcExec(ctx, cmd)
		c.TS.Coordinator.SetClientFinished()
		if !r.Success() {
			return host.OutputFromResult(r, nil)
		}

		parsed, err := c.handler.parseOutput(r.Out)
		if err != nil {
			return types.NewFailureOutput(err.Error())
		}
		return types.FlowTestOutput{
			BaseOutput:  types.NewBaseOutput(""),
			TftMetadata: c.TS.TestMetadata(),
			Command:     cmd,
			Result:      parsed,
			Bitrate:     c.handler.calculateBitrate(parsed),
		}
	}

	return task.NewOperation(c.LogNameTask(), c.Log, task.Actions[types.Output]{
		Thread: thread,
	})
}

// parseOutput turns netperf's fixed-position table into named fields.
func (h netperfHandler) parseOutput(out string) (map[string]any, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) <= netperfValuesLine {
		return nil, fmt.Errorf("unexpected netperf output, got %d lines", len(lines))
	}

	var headers []string
	if h.testType == types.TestTypeNetPerfTCPStream {
		headers = []string{
			"Receive Socket Size Bytes",
			"Send Socket Size Bytes",
			"Send Message Size Bytes",
			"Elapsed Time Seconds",
			"Throughput 10^6bits/sec",
		}
	} else {
		headers = []string{
			"Socket Send Bytes",
			"Size Receive Bytes",
			"Request Size Bytes",
			"Response Size Bytes",
			"Elapsed Time Seconds",
			"Transaction Rate Per Second",
		}
	}

	values := strings.Fields(lines[netperfValuesLine])
	if len(values) < len(headers) {
		return nil, fmt.Errorf("unexpected netperf values row %q", lines[netperfValuesLine])
	}
	parsed := make(map[string]any, len(headers))
	for i, hdr := range headers {
		parsed[hdr] = values[i]
	}
	return parsed, nil
}

// calculateBitrate maps the protocol's headline number onto the bitrate pair:
// Gbps for TCP_STREAM, transactions per second for TCP_RR.
func (h netperfHandler) calculateBitrate(parsed map[string]any) types.Bitrate {
	key := "Throughput 10^6bits/sec"
	scale := 1e3
	if h.testType == types.TestTypeNetPerfTCPRR {
		key = "Transaction Rate Per Second"
		scale = 1
	}
	s, ok := parsed[key].(string)
	if !ok {
		return types.BitrateNA
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return types.BitrateNA
	}
	v /= scale
	return types.Bitrate{Tx: v, Rx: v}
}
