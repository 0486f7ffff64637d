package tft

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/flags"
	"github.com/trafficflow/tft/types"
)

// Default kubeconfig locations probed when no --kubeconfig flag is given.
// The tenant/infra pair selects dpu mode; any of the single-cluster paths
// selects single mode.
const (
	kubeconfigTenant   = "/root/kubeconfig.tenantcluster"
	kubeconfigInfra    = "/root/kubeconfig.infracluster"
	kubeconfigSingle   = "/root/kubeconfig.nicmodecluster"
	kubeconfigSmartNIC = "/root/kubeconfig.smartniccluster"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string
	EvaluatorConfig  string
	KubeconfigTenant string
	KubeconfigInfra  string
	ClusterMode      types.ClusterMode
	TestImage        string
	ManifestsDir     string
	DurationOverride time.Duration // overrides the plan's per-test duration when non-zero
	Log              *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.Config.Name)
	if planFile == "" {
		return nil, errors.New("test plan file is required")
	}
	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}

	evaluatorConfig := ctx.String(flags.EvaluatorConfig.Name)
	if evaluatorConfig != "" {
		evaluatorConfig, err = filepath.Abs(evaluatorConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for evaluator config: %w", err)
		}
	}

	mode, tenant, infra, err := detectClusters(
		ctx.String(flags.Kubeconfig.Name),
		ctx.String(flags.KubeconfigInfra.Name),
	)
	if err != nil {
		return nil, err
	}

	manifestsDir, err := filepath.Abs(ctx.String(flags.ManifestsDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifests dir: %w", err)
	}

	return &Config{
		PlanFile:         absPlanFile,
		EvaluatorConfig:  evaluatorConfig,
		KubeconfigTenant: tenant,
		KubeconfigInfra:  infra,
		ClusterMode:      mode,
		TestImage:        ctx.String(flags.TestImage.Name),
		ManifestsDir:     manifestsDir,
		DurationOverride: ctx.Duration(flags.Duration.Name),
		Log:              log,
	}, nil
}

// detectClusters resolves the cluster mode and kubeconfig paths. Explicit
// flags win; otherwise the well-known locations are probed, preferring a
// single cluster over a tenant/infra split.
func detectClusters(explicitTenant, explicitInfra string) (types.ClusterMode, string, string, error) {
	if explicitTenant != "" {
		if explicitInfra != "" {
			return types.ClusterModeDPU, explicitTenant, explicitInfra, nil
		}
		return types.ClusterModeSingle, explicitTenant, "", nil
	}
	if explicitInfra != "" {
		return "", "", "", errors.New("kubeconfig-infra requires kubeconfig")
	}

	for _, path := range []string{kubeconfigSingle, kubeconfigSmartNIC} {
		if fileExists(path) {
			return types.ClusterModeSingle, path, "", nil
		}
	}
	if fileExists(kubeconfigTenant) && fileExists(kubeconfigInfra) {
		return types.ClusterModeDPU, kubeconfigTenant, kubeconfigInfra, nil
	}
	return "", "", "", errors.New("no kubeconfig found; pass --kubeconfig or place one at a default location")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
