package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	MetricsNamespace = "tft"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	flowTestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "flow_tests_total",
		Help:      "Count of evaluated flow tests",
	}, []string{
		"run_id",
		"test_case",
		"test_type",
		"result",
	})

	flowTestBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "flow_test_bitrate_gbps",
		Help:      "Measured bitrate of a flow test in Gbps",
	}, []string{
		"run_id",
		"test_case",
		"test_type",
		"direction",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of traffic flow test runs",
	}, []string{
		"run_id",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests in a run",
	}, []string{
		"run_id",
	})

	runTestPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_passed",
		Help:      "Number of passed tests in a run",
	}, []string{
		"run_id",
	})

	runTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of failed tests in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of a run in seconds",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordFlowTest(runID string, testCase string, testType string, success bool) {
	result := "pass"
	if !success {
		result = "fail"
	}
	if Debug {
		zap.S().Debugw("metric inc",
			"m", "flow_tests_total",
			"run_id", runID,
			"test_case", testCase,
			"test_type", testType,
			"result", result)
	}
	flowTestsTotal.WithLabelValues(runID, testCase, testType, result).Inc()
}

func RecordBitrate(runID string, testCase string, testType string, tx float64, rx float64) {
	if tx >= 0 {
		flowTestBitrate.WithLabelValues(runID, testCase, testType, "tx").Set(tx)
	}
	if rx >= 0 {
		flowTestBitrate.WithLabelValues(runID, testCase, testType, "rx").Set(rx)
	}
}

func RecordRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestTotal.WithLabelValues(runID).Add(float64(total))
	runTestPassed.WithLabelValues(runID).Add(float64(passed))
	runTestFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
