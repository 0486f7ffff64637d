// Package manifest renders the pod and service manifests a test case needs
// from embedded templates into a scratch directory, ready for oc apply.
package manifest

import (
	"embed"
	"os"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/trafficflow/tft/types"
)

//go:embed templates/*.yaml.tmpl
var templatesFS embed.FS

// Renderer writes rendered manifests below a single output directory.
type Renderer struct {
	outDir string
	log    *zap.SugaredLogger
	tmpl   *template.Template
}

// NewRenderer parses the embedded templates and ensures the output directory
// exists.
func NewRenderer(outDir string, log *zap.SugaredLogger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.yaml.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest templates")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create manifest output dir %s", outDir)
	}
	return &Renderer{outDir: outDir, log: log, tmpl: tmpl}, nil
}

// PodParams fills the pod templates. Command/Args override the default
// sleep entrypoint for persistent servers.
type PodParams struct {
	Name           string
	Namespace      string
	NodeName       string
	PodType        types.PodType
	DefaultNetwork string
	TestImage      string
	Command        string
	Args           string
}

// RenderPod writes the manifest for one participant pod and returns its path.
// The template is picked by pod flavor.
func (r *Renderer) RenderPod(p PodParams) (string, error) {
	name := "pod.yaml.tmpl"
	switch p.PodType {
	case types.PodTypeSriov:
		name = "sriov-pod.yaml.tmpl"
	case types.PodTypeHostBacked:
		name = "host-pod.yaml.tmpl"
	}
	return r.render(name, p.Name+".yaml", p)
}

// RenderToolsPod writes the manifest for a privileged tools pod used by
// monitor plugins to run their sampling commands on a node.
func (r *Renderer) RenderToolsPod(p PodParams) (string, error) {
	return r.render("tools-pod.yaml.tmpl", p.Name+".yaml", p)
}

// ServiceParams fills the service templates. A non-zero NodePort selects the
// NodePort template.
type ServiceParams struct {
	Name          string
	Namespace     string
	ServerPodName string
	Port          int
	NodePort      int
}

// RenderService writes a ClusterIP or NodePort service manifest targeting the
// server pod and returns its path.
func (r *Renderer) RenderService(p ServiceParams) (string, error) {
	name := "cluster-ip-service.yaml.tmpl"
	if p.NodePort != 0 {
		name = "node-port-service.yaml.tmpl"
	}
	return r.render(name, p.Name+".yaml", p)
}

func (r *Renderer) render(tmplName, outName string, data any) (string, error) {
	path := filepath.Join(r.outDir, outName)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create manifest file %s", path)
	}
	defer f.Close()

	if err := r.tmpl.ExecuteTemplate(f, tmplName, data); err != nil {
		return "", errors.Wrapf(err, "failed to render template %s", tmplName)
	}
	r.log.Debugw("Rendered manifest", "template", tmplName, "path", path)
	return path, nil
}
