// Package plugins hosts the monitor plugins that observe a test case from the
// side: power draw, hardware offload validation and CPU load. Plugins attach
// extra participant tasks to a test case and may judge their own recorded
// output during evaluation.
package plugins

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/trafficflow/tft/task"
	"github.com/trafficflow/tft/types"
)

// Plugin attaches monitor tasks to a test case.
type Plugin interface {
	Name() string

	// Enable builds the monitor tasks for one test case. The perf server and
	// client are handed in so monitors can target the pods under test.
	Enable(ts *task.TestSettings, server *task.ServerTask, client *task.ClientTask, tenant bool) ([]task.Participant, error)

	// EvalResult judges a recorded plugin output. Plugins without pass/fail
	// semantics return nil.
	EvalResult(out types.PluginOutput, md types.TestMetadata) *types.PluginResult
}

var registry = map[string]Plugin{}

func register(p Plugin) {
	registry[p.Name()] = p
}

// Get returns the plugin registered under name.
func Get(name string) (Plugin, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown plugin %q (have %v)", name, Names())
	}
	return p, nil
}

// Names lists the registered plugin names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func stopped(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
