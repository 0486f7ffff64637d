// Package registry loads and validates the run plan: which test cases to
// run, over which connections, with which plugins attached. Validation
// happens at load time so a bad plan fails before any cluster object exists.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/trafficflow/tft/plugins"
	"github.com/trafficflow/tft/testtype"
	"github.com/trafficflow/tft/types"
)

const (
	defaultNamespace = "default"
	defaultNetwork   = "default/default"
	defaultLogsDir   = "ft-logs"
	defaultDuration  = 3600 * time.Second
)

// Registry manages the loaded run plan.
type Registry struct {
	config Config
	plan   *Plan
	mu     sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log      *zap.SugaredLogger
	PlanFile string
}

// Plan is the validated run plan.
type Plan struct {
	Tests []TestPlan
}

// TestPlan is one "tft" entry: a namespace, a set of test cases and the
// connections to run each case over.
type TestPlan struct {
	Name        string
	Namespace   string
	TestCases   []types.TestCaseType
	Duration    time.Duration
	LogsDir     string
	Connections []Connection
}

// Connection describes one server/client pairing and its attached plugins.
type Connection struct {
	Name      string
	TestType  types.TestType
	Instances int
	Server    EndpointConf
	Client    EndpointConf
	Plugins   []string
}

// EndpointConf configures one side of a connection.
type EndpointConf struct {
	Name           string
	PodType        types.PodType
	DefaultNetwork string
	Persistent     bool
}

// NewRegistry creates a registry and loads the plan file.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Registry{config: cfg}
	if err := r.loadPlan(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	cfg.Log.Debugw("Registry loaded", "tests", len(r.plan.Tests))
	return r, nil
}

// Plan returns the validated run plan.
func (r *Registry) Plan() *Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plan
}

// GetConfig returns the registry configuration.
func (r *Registry) GetConfig() Config {
	return r.config
}

func (r *Registry) loadPlan(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading plan file: %w", err)
	}

	var raw rawPlan
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing plan file: %w", err)
	}

	plan, err := resolvePlan(&raw)
	if err != nil {
		return err
	}
	r.plan = plan
	return nil
}

type rawPlan struct {
	TFT []rawTest `yaml:"tft"`
}

type rawTest struct {
	Name        string          `yaml:"name"`
	Namespace   string          `yaml:"namespace"`
	TestCases   string          `yaml:"test_cases"`
	Duration    int             `yaml:"duration"`
	Logs        string          `yaml:"logs"`
	Connections []rawConnection `yaml:"connections"`
}

type rawConnection struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Instances int           `yaml:"instances"`
	Server    []rawEndpoint `yaml:"server"`
	Client    []rawEndpoint `yaml:"client"`
	Plugins   []rawPlugin   `yaml:"plugins"`
}

type rawEndpoint struct {
	Name           string `yaml:"name"`
	Sriov          bool   `yaml:"sriov"`
	Persistent     bool   `yaml:"persistent"`
	DefaultNetwork string `yaml:"default-network"`
}

// rawPlugin accepts either a plain string or a {name: ...} mapping.
type rawPlugin struct {
	Name string `yaml:"name"`
}

func (p *rawPlugin) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&p.Name)
	}
	var m struct {
		Name string `yaml:"name"`
	}
	if err := value.Decode(&m); err != nil {
		return err
	}
	p.Name = m.Name
	return nil
}

func resolvePlan(raw *rawPlan) (*Plan, error) {
	if len(raw.TFT) == 0 {
		return nil, fmt.Errorf(`plan needs a non-empty "tft" list`)
	}

	plan := &Plan{}
	for i, rt := range raw.TFT {
		tp, err := resolveTest(i, &rt)
		if err != nil {
			return nil, err
		}
		plan.Tests = append(plan.Tests, *tp)
	}
	return plan, nil
}

func resolveTest(idx int, rt *rawTest) (*TestPlan, error) {
	tp := &TestPlan{
		Name:      rt.Name,
		Namespace: rt.Namespace,
		LogsDir:   rt.Logs,
		Duration:  time.Duration(rt.Duration) * time.Second,
	}
	if tp.Name == "" {
		tp.Name = fmt.Sprintf("Test %d", idx+1)
	}
	if tp.Namespace == "" {
		tp.Namespace = defaultNamespace
	}
	if tp.LogsDir == "" {
		tp.LogsDir = defaultLogsDir
	}
	if rt.Duration < 0 {
		return nil, fmt.Errorf("%s: duration expects a positive number of seconds", tp.Name)
	}
	if tp.Duration == 0 {
		tp.Duration = defaultDuration
	}

	cases, err := ParseTestCases(rt.TestCases)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tp.Name, err)
	}
	tp.TestCases = cases

	if len(rt.Connections) == 0 {
		return nil, fmt.Errorf("%s: connections list is mandatory", tp.Name)
	}
	for i, rc := range rt.Connections {
		conn, err := resolveConnection(tp.Name, i, &rc)
		if err != nil {
			return nil, err
		}
		tp.Connections = append(tp.Connections, *conn)
	}
	return tp, nil
}

func resolveConnection(testName string, idx int, rc *rawConnection) (*Connection, error) {
	conn := &Connection{
		Name:      rc.Name,
		Instances: rc.Instances,
	}
	if conn.Name == "" {
		conn.Name = fmt.Sprintf("Connection %s/%d", testName, idx+1)
	}
	if conn.Instances == 0 {
		conn.Instances = 1
	}
	if conn.Instances < 0 {
		return nil, fmt.Errorf("%s: instances expects a positive number", conn.Name)
	}

	typeName := rc.Type
	if typeName == "" {
		typeName = "iperf-tcp"
	}
	tt, err := types.ParseTestType(typeName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", conn.Name, err)
	}
	if _, err := testtype.Get(tt); err != nil {
		return nil, fmt.Errorf("%s: %w", conn.Name, err)
	}
	conn.TestType = tt

	if len(rc.Server) != 1 {
		return nil, fmt.Errorf("%s: exactly one server entry is supported", conn.Name)
	}
	if len(rc.Client) != 1 {
		return nil, fmt.Errorf("%s: exactly one client entry is supported", conn.Name)
	}
	conn.Server = resolveEndpoint(rc.Server[0])
	conn.Client = resolveEndpoint(rc.Client[0])
	if conn.Server.Name == "" || conn.Client.Name == "" {
		return nil, fmt.Errorf("%s: server and client need a node name", conn.Name)
	}

	for _, rp := range rc.Plugins {
		if _, err := plugins.Get(rp.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", conn.Name, err)
		}
		conn.Plugins = append(conn.Plugins, rp.Name)
	}
	return conn, nil
}

func resolveEndpoint(re rawEndpoint) EndpointConf {
	pt := types.PodTypeNormal
	if re.Sriov {
		pt = types.PodTypeSriov
	}
	network := re.DefaultNetwork
	if network == "" {
		network = defaultNetwork
	}
	return EndpointConf{
		Name:           re.Name,
		PodType:        pt,
		DefaultNetwork: network,
		Persistent:     re.Persistent,
	}
}

// ParseTestCases expands a test-case selector: "*" or "" selects every case,
// otherwise a comma-separated list of IDs, names and numeric ranges
// ("1-9,15,POD_TO_EXTERNAL").
func ParseTestCases(s string) ([]types.TestCaseType, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		all := make([]types.TestCaseType, 0, int(types.TestCaseTypeMax))
		for t := types.TestCaseTypeMin; t <= types.TestCaseTypeMax; t++ {
			all = append(all, t)
		}
		return all, nil
	}

	var cases []types.TestCaseType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if isRange {
			start, err := types.ParseTestCaseType(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("bad test case range %q: %w", part, err)
			}
			end, err := types.ParseTestCaseType(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("bad test case range %q: %w", part, err)
			}
			if end < start {
				return nil, fmt.Errorf("bad test case range %q: end before start", part)
			}
			for t := start; t <= end; t++ {
				cases = append(cases, t)
			}
			continue
		}
		t, err := types.ParseTestCaseType(part)
		if err != nil {
			return nil, err
		}
		cases = append(cases, t)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("test case selector %q selects nothing", s)
	}
	return cases, nil
}
