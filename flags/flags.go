package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TFT"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Config = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("CONFIG"),
		Usage:    "Path to the test plan file (eg. 'config.yaml')",
	}
	EvaluatorConfig = &cli.StringFlag{
		Name:    "evaluator-config",
		Value:   "",
		EnvVars: prefixEnvVars("EVALUATOR_CONFIG"),
		Usage:   "Path to the bitrate threshold file used to judge results",
	}
	Kubeconfig = &cli.StringFlag{
		Name:    "kubeconfig",
		Value:   "",
		EnvVars: prefixEnvVars("KUBECONFIG"),
		Usage:   "Kubeconfig of the cluster under test (auto-detected when omitted)",
	}
	KubeconfigInfra = &cli.StringFlag{
		Name:    "kubeconfig-infra",
		Value:   "",
		EnvVars: prefixEnvVars("KUBECONFIG_INFRA"),
		Usage:   "Kubeconfig of the infra cluster when running against a DPU split",
	}
	TestImage = &cli.StringFlag{
		Name:    "test-image",
		Value:   "ghcr.io/ovn-org/kubernetes-traffic-flow-tests:latest",
		EnvVars: prefixEnvVars("TEST_IMAGE"),
		Usage:   "Container image used for traffic pods",
	}
	ManifestsDir = &cli.StringFlag{
		Name:    "manifests-dir",
		Value:   "./manifests",
		EnvVars: prefixEnvVars("MANIFESTS_DIR"),
		Usage:   "Directory where rendered pod and service manifests are written",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	LogFile = &cli.StringFlag{
		Name:    "log-file",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_FILE"),
		Usage:   "Optional log file, rotated on size",
	}
	Duration = &cli.DurationFlag{
		Name:    "duration",
		Value:   0,
		EnvVars: prefixEnvVars("DURATION"),
		Usage:   "Override the per-test traffic duration from the plan (e.g. '30s')",
	}
)

var requiredFlags = []cli.Flag{
	Config,
}

var optionalFlags = []cli.Flag{
	EvaluatorConfig,
	Kubeconfig,
	KubeconfigInfra,
	TestImage,
	ManifestsDir,
	LogLevel,
	LogFile,
	Duration,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
