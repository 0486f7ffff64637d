package tft

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trafficflow/tft/evaluator"
	"github.com/trafficflow/tft/metrics"
	"github.com/trafficflow/tft/registry"
	"github.com/trafficflow/tft/types"
)

// writeRecord serializes the run record into the plan's logs directory and
// returns the written path.
func (t *TrafficFlowTests) writeRecord(tp *registry.TestPlan, rec *types.RunRecord) (string, error) {
	if err := os.MkdirAll(tp.LogsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create logs dir %s: %w", tp.LogsDir, err)
	}
	path := filepath.Join(tp.LogsDir, fmt.Sprintf("%s.json", time.Now().Format("20060102-150405")))
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize run record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run record %s: %w", path, err)
	}
	return path, nil
}

// writeEvaluation places the evaluator's verdict next to the run record.
func (t *TrafficFlowTests) writeEvaluation(recordPath string, eval *evaluator.Evaluator) error {
	data, err := eval.DumpToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize evaluation: %w", err)
	}
	path := strings.TrimSuffix(recordPath, ".json") + "-eval.json"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write evaluation %s: %w", path, err)
	}
	t.log.Infow("Wrote evaluation", "path", path)
	return nil
}

// printResultsTable prints the per-test verdicts of one plan to the console.
func (t *TrafficFlowTests) printResultsTable(
	tp *registry.TestPlan,
	eval *evaluator.Evaluator,
	status evaluator.PassFailStatus,
	elapsed time.Duration,
) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetTitle(fmt.Sprintf("Traffic Flow Test Results: %s (%s)", tp.Name, formatDuration(elapsed)))

	w.AppendHeader(table.Row{
		"Test Case", "Type", "Reverse", "TX Gbps", "RX Gbps", "Status",
	})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test Case", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "TX Gbps", Align: text.AlignRight},
		{Name: "RX Gbps", Align: text.AlignRight},
	})

	for _, r := range eval.TestResults {
		w.AppendRow(table.Row{
			r.TestID.String(),
			string(r.TestType),
			r.Reverse,
			formatGbps(r.Bitrate.Tx),
			formatGbps(r.Bitrate.Rx),
			getResultString(r.Success),
		})
	}
	if len(eval.PluginResults) > 0 {
		w.AppendSeparator()
		for _, r := range eval.PluginResults {
			w.AppendRow(table.Row{
				r.TestID.String(),
				fmt.Sprintf("%s (plugin)", r.TestType),
				r.Reverse,
				"-",
				"-",
				getResultString(r.Success),
			})
		}
	}

	if status.Result {
		w.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		w.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	w.AppendFooter(table.Row{
		"TOTAL",
		"",
		"",
		fmt.Sprintf("%d passed", status.NumTftPassed+status.NumPluginPassed),
		fmt.Sprintf("%d failed", status.NumTftFailed+status.NumPluginFailed),
		getResultString(status.Result),
	})

	w.Render()
}

// recordMetrics emits the run's evaluation as Prometheus metrics.
func (t *TrafficFlowTests) recordMetrics(
	rec *types.RunRecord,
	eval *evaluator.Evaluator,
	status evaluator.PassFailStatus,
	elapsed time.Duration,
) {
	for _, r := range eval.TestResults {
		metrics.RecordFlowTest(rec.RunID, r.TestID.String(), string(r.TestType), r.Success)
		metrics.RecordBitrate(rec.RunID, r.TestID.String(), string(r.TestType), r.Bitrate.Tx, r.Bitrate.Rx)
	}

	result := "pass"
	if !status.Result {
		result = "fail"
	}
	total := status.NumTftPassed + status.NumTftFailed + status.NumPluginPassed + status.NumPluginFailed
	passed := status.NumTftPassed + status.NumPluginPassed
	failed := status.NumTftFailed + status.NumPluginFailed
	metrics.RecordRun(rec.RunID, result, total, passed, failed, elapsed)
}

// getResultString returns a glyph-prefixed pass/fail marker.
func getResultString(success bool) string {
	if success {
		return "✓ pass"
	}
	return "✗ fail"
}

// formatGbps renders a bitrate value, mapping the N/A sentinel to a dash.
func formatGbps(v float64) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// formatDuration formats a duration to seconds with 1 decimal place.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
