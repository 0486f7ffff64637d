package testtype

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/trafficflow/tft/host"
	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

const (
	iperfExe     = "iperf3"
	iperfUDPOpts = "-u -b 25G"
	iperfRevOpt  = "-R"
)

func init() {
	register(iperfHandler{testType: types.TestTypeIperfTCP})
	register(iperfHandler{testType: types.TestTypeIperfUDP})
}

type iperfHandler struct {
	testType types.TestType
}

func (h iperfHandler) TestType() types.TestType { return h.testType }

// Reverse mode relies on iperf3's -R flag, which only behaves for TCP.
func (h iperfHandler) CanRunReverse() bool {
	return h.testType == types.TestTypeIperfTCP
}

func (h iperfHandler) CreateServerClient(ts *task.TestSettings) (task.Server, task.Client, error) {
	s := &IperfServer{}
	if err := s.InitServer(ts, s, "IperfServer", s); err != nil {
		return nil, nil, err
	}
	c := &IperfClient{handler: h}
	if err := c.InitClient(ts, c, "IperfClient", &s.ServerTask); err != nil {
		return nil, nil, err
	}
	return s, c, nil
}

// calculateBitrate extracts the Gbps bitrate pair from parsed iperf3 JSON.
func (h iperfHandler) calculateBitrate(log *zap.SugaredLogger, result map[string]any) types.Bitrate {
	if msg, ok := result["error"]; ok {
		log.Errorw("An error occurred during the iperf test", "err", msg)
		return types.BitrateNA
	}
	if h.testType == types.TestTypeIperfTCP {
		tx := nestedFloat(result, "end", "sum_sent", "bits_per_second")
		rx := nestedFloat(result, "end", "sum_received", "bits_per_second")
		if tx < 0 || rx < 0 {
			log.Errorw("Malformed iperf tcp results, missing end.sum_sent/sum_received")
			return types.BitrateNA
		}
		return types.Bitrate{Tx: roundGbps(tx), Rx: roundGbps(rx)}
	}

	// UDP tests only carry sender traffic.
	tx := nestedFloat(result, "end", "sum", "bits_per_second")
	if tx < 0 {
		log.Errorw("Malformed iperf udp results, missing end.sum")
		return types.BitrateNA
	}
	g := roundGbps(tx)
	return types.Bitrate{Tx: g, Rx: g}
}

// IperfServer runs `iperf3 -s` inside the server pod for the whole traffic
// window.
type IperfServer struct {
	task.ServerTask
}

func (s *IperfServer) ServerCmd(port int) string {
	return fmt.Sprintf("%s -s -p %d --one-off --json", iperfExe, port)
}

func (s *IperfServer) CancelCmd() string {
	return "killall " + iperfExe
}

func (s *IperfServer) PersistentArgs(port int) (string, string) {
	return iperfExe, fmt.Sprintf(`["-s", "-p", "%d"]`, port)
}

// IperfClient generates the traffic and produces the flow-test output.
type IperfClient struct {
	task.ClientTask
	handler iperfHandler
}

// CreateTaskOperation builds the traffic-generation operation: wait on the
// barrier, run the iperf client to completion, trip the client-finished latch
// and parse the JSON report.
func (c *IperfClient) CreateTaskOperation(ctx context.Context) (task.TaskOperation, error) {
	serverIP, err := c.TargetIP(ctx)
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("%s -c %s -p %d --json -t %d",
		iperfExe, serverIP, c.Port, int(c.TS.Duration.Seconds()))
	if c.TestType == types.TestTypeIperfUDP {
		cmd += " " + iperfUDPOpts
	}
	if c.Reverse {
		cmd += " " + iperfRevOpt
	}
	c.Log.Infow("Starting traffic client", "cmd", cmd, "target", serverIP)

	thread := func() types.Output {
		c.TS.Coordinator.WaitOnBarrier()
		r := c.RunOcExec(ctx, cmd)
		c.TS.Coordinator.SetClientFinished()
		if !r.Success() {
			return host.OutputFromResult(r, nil)
		}

		var parsed map[string]any
		if err := json.Unmarshal([]byte(r.Out), &parsed); err != nil {
			return types.NewFailureOutput(fmt.Sprintf("failed to parse iperf output: %v", err))
		}
		return types.FlowTestOutput{
			BaseOutput:  types.NewBaseOutput(""),
			TftMetadata: c.TS.TestMetadata(),
			Command:     cmd,
			Result:      parsed,
			Bitrate:     c.handler.calculateBitrate(c.Log, parsed),
		}
	}

	return task.NewOperation(c.LogNameTask(), c.Log, task.Actions[types.Output]{
		Thread: thread,
	})
}

// AggregateOutput adds a console summary on top of the shared aggregation.
func (c *IperfClient) AggregateOutput(agg *types.AggregateOutput) error {
	if err := c.ClientTask.AggregateOutput(agg); err != nil {
		return err
	}
	if flow := agg.FlowTest; flow != nil && flow.Succeeded() {
		c.Log.Infow("Flow test results",
			"test", c.TS.TestString(),
			"bitrate_tx_gbps", flow.Bitrate.Tx,
			"bitrate_rx_gbps", flow.Bitrate.Rx)
	}
	return nil
}

// nestedFloat walks a parsed JSON object and returns the numeric leaf, or -1
// when any key is missing or the leaf is not a number.
func nestedFloat(m map[string]any, keys ...string) float64 {
	cur := any(m)
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return -1
		}
		if cur, ok = mm[k]; !ok {
			return -1
		}
	}
	f, ok := cur.(float64)
	if !ok {
		return -1
	}
	return f
}

// roundGbps converts bits per second to Gbps with 5 significant digits, the
// precision the result tables show.
func roundGbps(bps float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(bps/1e9, 'g', 5, 64), 64)
	return v
}
