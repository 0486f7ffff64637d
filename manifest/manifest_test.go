package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/types"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return r
}

func readManifest(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRenderPod(t *testing.T) {
	r := newTestRenderer(t)
	path, err := r.RenderPod(PodParams{
		Name:           "normal-pod-worker-1-server-5201",
		Namespace:      "default",
		NodeName:       "worker-1",
		PodType:        types.PodTypeNormal,
		DefaultNetwork: "default/default",
		TestImage:      "quay.io/example/tft:latest",
	})
	require.NoError(t, err)
	assert.Equal(t, "normal-pod-worker-1-server-5201.yaml", filepath.Base(path))

	out := readManifest(t, path)
	assert.Contains(t, out, "name: normal-pod-worker-1-server-5201")
	assert.Contains(t, out, "nodeName: worker-1")
	assert.Contains(t, out, "tft-tests")
	assert.Contains(t, out, "quay.io/example/tft:latest")
	assert.Contains(t, out, `command: ["sleep", "infinity"]`)
	assert.NotContains(t, out, "hostNetwork")
}

func TestRenderPodPersistentCommand(t *testing.T) {
	r := newTestRenderer(t)
	path, err := r.RenderPod(PodParams{
		Name:      "normal-pod-worker-1-server-5201",
		Namespace: "default",
		NodeName:  "worker-1",
		PodType:   types.PodTypeNormal,
		TestImage: "img",
		Command:   "iperf3",
		Args:      `["-s", "-p", "5201"]`,
	})
	require.NoError(t, err)

	out := readManifest(t, path)
	assert.Contains(t, out, `command: ["iperf3"]`)
	assert.Contains(t, out, `args: ["-s", "-p", "5201"]`)
	assert.NotContains(t, out, "sleep")
}

func TestRenderHostBackedPod(t *testing.T) {
	r := newTestRenderer(t)
	path, err := r.RenderPod(PodParams{
		Name:      "host-pod-worker-1-server-5201",
		Namespace: "default",
		NodeName:  "worker-1",
		PodType:   types.PodTypeHostBacked,
		TestImage: "img",
	})
	require.NoError(t, err)

	out := readManifest(t, path)
	assert.Contains(t, out, "hostNetwork: true")
}

func TestRenderToolsPod(t *testing.T) {
	r := newTestRenderer(t)
	path, err := r.RenderToolsPod(PodParams{
		Name:      "tools-pod-worker-1-measure-power",
		Namespace: "default",
		NodeName:  "worker-1",
		TestImage: "img",
	})
	require.NoError(t, err)

	out := readManifest(t, path)
	assert.Contains(t, out, "privileged: true")
	assert.Contains(t, out, "hostNetwork: true")
	assert.Contains(t, out, "/host/run")
}

func TestRenderService(t *testing.T) {
	r := newTestRenderer(t)

	path, err := r.RenderService(ServiceParams{
		Name:          "my-svc-cluster-ip",
		Namespace:     "default",
		ServerPodName: "normal-pod-worker-1-server-5201",
		Port:          5201,
	})
	require.NoError(t, err)
	out := readManifest(t, path)
	assert.Contains(t, out, "name: my-svc-cluster-ip")
	assert.Contains(t, out, "port: 5201")
	assert.Contains(t, out, "pod-name: normal-pod-worker-1-server-5201")
	assert.NotContains(t, out, "nodePort")

	path, err = r.RenderService(ServiceParams{
		Name:          "my-svc-node-port",
		Namespace:     "default",
		ServerPodName: "normal-pod-worker-1-server-5201",
		Port:          5201,
		NodePort:      30201,
	})
	require.NoError(t, err)
	out = readManifest(t, path)
	assert.Contains(t, out, "nodePort: 30201")
	assert.Contains(t, out, "type: NodePort")
}
