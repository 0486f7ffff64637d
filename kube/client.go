// Package kube wraps kubectl/oc for the task layer: exec-in-pod command
// execution, manifest provisioning and per-namespace cleanup. Provisioning
// failures other than "already exists" are fatal to the run; the barrier
// protocol cannot tolerate a half-provisioned topology.
package kube

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trafficflow/tft/host"
)

// TestLabel marks every pod and service created for a test run, so cleanup
// can find them by selector.
const TestLabel = "tft-tests"

// ManifestSpec names a rendered manifest and the pod it is expected to create.
type ManifestSpec struct {
	Path      string
	PodName   string
	Namespace string
}

// Handle identifies a provisioned workload for teardown.
type Handle struct {
	PodName   string
	Namespace string
}

// Provisioner creates and destroys the workloads a test case needs. The task
// layer only sees this interface.
type Provisioner interface {
	EnsureRunning(ctx context.Context, spec ManifestSpec) (Handle, error)
	TearDown(ctx context.Context, h Handle) error
}

// Client talks to one cluster through the oc binary.
type Client struct {
	kubeconfig string
	host       host.Host
	log        *zap.SugaredLogger
}

var _ Provisioner = &Client{}

// NewClient returns a Client bound to the given kubeconfig. Commands execute
// through h, which tests may replace with a scripted fake.
func NewClient(kubeconfig string, h host.Host, log *zap.SugaredLogger) *Client {
	return &Client{kubeconfig: kubeconfig, host: h, log: log}
}

// Oc runs an oc subcommand against the cluster. Namespace may be empty for
// cluster-scoped commands.
func (c *Client) Oc(ctx context.Context, cmd string, namespace string) host.Result {
	full := "oc"
	if c.kubeconfig != "" {
		full += fmt.Sprintf(" --kubeconfig %q", c.kubeconfig)
	}
	if namespace != "" {
		full += fmt.Sprintf(" -n %q", namespace)
	}
	return c.host.Run(ctx, full+" "+cmd)
}

// OcExec runs a command inside a pod.
func (c *Client) OcExec(ctx context.Context, podName, cmd, namespace string) host.Result {
	return c.Oc(ctx, fmt.Sprintf("exec %s -- %s", podName, cmd), namespace)
}

// PodIP returns the status.podIP of a running pod.
func (c *Client) PodIP(ctx context.Context, podName, namespace string) (string, error) {
	r := c.Oc(ctx, fmt.Sprintf("get pod/%s -o=jsonpath='{.status.podIP}'", podName), namespace)
	ip := strings.Trim(strings.TrimSpace(r.Out), "'")
	if !r.Success() || ip == "" {
		return "", errors.Errorf("failed to get podIP for %s: %s", podName, r.Err)
	}
	return ip, nil
}

// ServiceClusterIP returns the spec.clusterIP of a service.
func (c *Client) ServiceClusterIP(ctx context.Context, svcName, namespace string) (string, error) {
	r := c.Oc(ctx, fmt.Sprintf("get service %s -o=jsonpath='{.spec.clusterIP}'", svcName), namespace)
	ip := strings.Trim(strings.TrimSpace(r.Out), "'")
	if !r.Success() || ip == "" {
		return "", errors.Errorf("failed to get clusterIP for service %s: %s", svcName, r.Err)
	}
	return ip, nil
}

// PodIsReady reports whether the pod exists and has reached the ready
// condition within the wait timeout.
func (c *Client) PodIsReady(ctx context.Context, podName, namespace string) bool {
	r := c.Oc(ctx, fmt.Sprintf("wait --for=condition=ready pod/%s --timeout=1m", podName), namespace)
	return r.Success()
}

// EnsureRunning applies the manifest and waits for its pod to become ready.
// An "already exists" failure is treated as success; the previous test case
// may have left the workload behind on purpose.
func (c *Client) EnsureRunning(ctx context.Context, spec ManifestSpec) (Handle, error) {
	r := c.Oc(ctx, fmt.Sprintf("apply -f %q", spec.Path), spec.Namespace)
	if !r.Success() && !alreadyExists(r) {
		return Handle{}, errors.Errorf("failed to apply manifest %s: %s", spec.Path, r.Err)
	}
	if spec.PodName != "" {
		c.log.Infow("Waiting for pod to become ready", "pod", spec.PodName)
		if !c.PodIsReady(ctx, spec.PodName, spec.Namespace) {
			return Handle{}, errors.Errorf("pod %s did not become ready", spec.PodName)
		}
	}
	return Handle{PodName: spec.PodName, Namespace: spec.Namespace}, nil
}

// TearDown deletes the provisioned pod. Missing workloads are not an error.
func (c *Client) TearDown(ctx context.Context, h Handle) error {
	r := c.Oc(ctx, fmt.Sprintf("delete pod %s --ignore-not-found", h.PodName), h.Namespace)
	if !r.Success() {
		return errors.Errorf("failed to delete pod %s: %s", h.PodName, r.Err)
	}
	return nil
}

// ApplyService applies a service manifest and returns its cluster IP.
// Tolerates "already exists" like EnsureRunning.
func (c *Client) ApplyService(ctx context.Context, manifestPath, svcName, namespace string) (string, error) {
	r := c.Oc(ctx, fmt.Sprintf("apply -f %q", manifestPath), namespace)
	if !r.Success() && !alreadyExists(r) {
		return "", errors.Errorf("failed to apply service manifest %s: %s", manifestPath, r.Err)
	}
	return c.ServiceClusterIP(ctx, svcName, namespace)
}

// Cleanup removes every labelled pod and service from the namespace. Pods and
// services are deleted concurrently; the namespace is shared between test
// cases and must be empty before the next one starts.
func (c *Client) Cleanup(ctx context.Context, namespace string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []string{"pods", "services"} {
		kind := kind
		g.Go(func() error {
			c.log.Infow("Cleaning labelled resources", "kind", kind, "namespace", namespace)
			r := c.Oc(gctx, fmt.Sprintf("delete %s -l %s --ignore-not-found", kind, TestLabel), namespace)
			if !r.Success() {
				return errors.Errorf("failed to delete %s in %s: %s", kind, namespace, r.Err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ConfigureNamespace labels the namespace for privileged test pods.
func (c *Client) ConfigureNamespace(ctx context.Context, namespace string) error {
	r := c.Oc(ctx, fmt.Sprintf(
		"label ns --overwrite %s pod-security.kubernetes.io/enforce=privileged", namespace), "")
	if !r.Success() {
		return errors.Errorf("failed to label namespace %s: %s", namespace, r.Err)
	}
	return nil
}

func alreadyExists(r host.Result) bool {
	return strings.Contains(r.Err, "already exists") || strings.Contains(r.Out, "already exists")
}
